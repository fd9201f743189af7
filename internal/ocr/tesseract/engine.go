// Package tesseract runs page recognition on the local tesseract engine.
package tesseract

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"docparse-backend/internal/ocr"
)

// recognizer is the part of *gosseract.Client the engine drives.
type recognizer interface {
	SetImageFromBytes(data []byte) error
	Text() (string, error)
	Close() error
}

// Engine wraps one engine handle. The handle is not safe for concurrent use,
// so Recognize calls are serialized.
type Engine struct {
	mu     sync.Mutex
	client recognizer
}

// New creates the engine once for the process with the given languages
// (tesseract codes, e.g. "eng", "tur").
func New(languages []string) (*Engine, error) {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("tesseract languages %v: %w", languages, err)
		}
	}
	return &Engine{client: client}, nil
}

func newWithRecognizer(r recognizer) *Engine {
	return &Engine{client: r}
}

// Recognize implements ocr.PageRecognizer.
func (e *Engine) Recognize(ctx context.Context, png []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := e.client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("tesseract set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract text: %w", err)
	}
	return text, nil
}

// Close releases the engine handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}

var _ ocr.PageRecognizer = (*Engine)(nil)
