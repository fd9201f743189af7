package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Kind selects an OCR backend by its wire name.
type Kind string

const (
	// KindLocal runs the on-host recognition engine.
	KindLocal Kind = "easyocr"
	// KindVision sends page images to a remote vision model.
	KindVision Kind = "llm_ocr"
)

var (
	// ErrUnsupportedBackend is returned for selectors other than easyocr and llm_ocr.
	ErrUnsupportedBackend = errors.New("unsupported ocr backend")
	// ErrExtractionFailed wraps any engine, rasterizer or network failure.
	ErrExtractionFailed = errors.New("ocr extraction failed")
)

// ParseKind maps a request selector to a Kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.TrimSpace(raw)) {
	case KindLocal:
		return KindLocal, nil
	case KindVision:
		return KindVision, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedBackend, raw)
	}
}

// Backend extracts the full text of the document at path.
type Backend interface {
	Extract(ctx context.Context, path string) (string, error)
}

// ExtractionError records which backend and page failed. Page is 0 when the
// failure happened before recognition (rasterizing, decoding).
type ExtractionError struct {
	Backend Kind
	Page    int
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("ocr %s page %d: %v", e.Backend, e.Page, e.Err)
	}
	return fmt.Sprintf("ocr %s: %v", e.Backend, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Is makes every ExtractionError match ErrExtractionFailed.
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}

// Registry maps selectors to backends. It is filled once at startup.
type Registry struct {
	mu       sync.RWMutex
	backends map[Kind]Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: map[Kind]Backend{}}
}

// Register installs backend under kind, replacing any previous entry.
func (r *Registry) Register(kind Kind, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[kind] = backend
}

// Get returns the backend for kind or ErrUnsupportedBackend.
func (r *Registry) Get(kind Kind) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	backend, ok := r.backends[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, kind)
	}
	return backend, nil
}

// Kinds lists the registered selectors.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.backends))
	for _, k := range []Kind{KindLocal, KindVision} {
		if _, ok := r.backends[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
