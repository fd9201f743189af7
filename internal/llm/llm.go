package llm

import (
	"context"
	"errors"
)

// JSONCompleter returns a JSON-mode chat completion for a system and user message.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

// VisionTranscriber sends one PNG page to a vision model and returns its text.
type VisionTranscriber interface {
	Transcribe(ctx context.Context, system string, png []byte) (string, error)
}

// ErrNotConfigured is returned by the placeholder client.
var ErrNotConfigured = errors.New("llm provider not configured")

// PlaceholderClient stands in when no provider key is configured so the
// service can boot and serve the local OCR backend.
type PlaceholderClient struct{}

// CompleteJSON returns ErrNotConfigured.
func (PlaceholderClient) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return "", ErrNotConfigured
}

// Transcribe returns ErrNotConfigured.
func (PlaceholderClient) Transcribe(ctx context.Context, system string, png []byte) (string, error) {
	return "", ErrNotConfigured
}

var (
	_ JSONCompleter     = PlaceholderClient{}
	_ VisionTranscriber = PlaceholderClient{}
)
