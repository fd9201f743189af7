package ocr

import (
	"context"
	"strings"
	"time"

	"docparse-backend/internal/shared/telemetry"
)

// PageRecognizer reads the text of a single PNG page.
type PageRecognizer interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// PagedBackend runs a recognizer over every page of a document, one page at
// a time, and joins the trimmed page texts with newlines.
type PagedBackend struct {
	kind        Kind
	pages       PageSource
	recognizer  PageRecognizer
	pageTimeout time.Duration
}

// NewPagedBackend wires a page source to a recognizer. pageTimeout bounds each
// recognizer call; 0 disables it.
func NewPagedBackend(kind Kind, pages PageSource, recognizer PageRecognizer, pageTimeout time.Duration) *PagedBackend {
	return &PagedBackend{kind: kind, pages: pages, recognizer: recognizer, pageTimeout: pageTimeout}
}

// Extract implements Backend.
func (b *PagedBackend) Extract(ctx context.Context, path string) (string, error) {
	pages, err := b.pages.Load(ctx, path)
	if err != nil {
		return "", &ExtractionError{Backend: b.kind, Err: err}
	}
	if len(pages) == 0 {
		return "", nil
	}

	texts := make([]string, 0, len(pages))
	for i, page := range pages {
		text, err := b.recognizePage(ctx, i+1, page)
		if err != nil {
			return "", &ExtractionError{Backend: b.kind, Page: i + 1, Err: err}
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, "\n"), nil
}

func (b *PagedBackend) recognizePage(ctx context.Context, n int, page []byte) (string, error) {
	if b.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.pageTimeout)
		defer cancel()
	}
	started := time.Now()
	text, err := b.recognizer.Recognize(ctx, page)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	telemetry.Info("ocr.page.done", map[string]any{
		"backend":    string(b.kind),
		"page":       n,
		"chars":      len(text),
		"durationMs": time.Since(started).Milliseconds(),
	})
	return text, nil
}

var _ Backend = (*PagedBackend)(nil)
