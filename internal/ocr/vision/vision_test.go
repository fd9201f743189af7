package vision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docparse-backend/internal/llm"
	"docparse-backend/internal/ocr"
)

type fakeTranscriber struct {
	system string
	pages  [][]byte
	reply  string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, system string, png []byte) (string, error) {
	f.system = system
	f.pages = append(f.pages, png)
	return f.reply, nil
}

type onePage struct{}

func (onePage) Load(ctx context.Context, path string) ([][]byte, error) {
	return [][]byte{[]byte("png")}, nil
}

func TestRecognizeSendsFixedPrompt(t *testing.T) {
	fake := &fakeTranscriber{reply: " VERGİ KİMLİK NO 1234567890 \n"}
	backend := ocr.NewPagedBackend(ocr.KindVision, onePage{}, New(fake), 0)

	got, err := backend.Extract(context.Background(), "invoice.png")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "VERGİ KİMLİK NO 1234567890" {
		t.Fatalf("unexpected text %q", got)
	}
	if fake.system != SystemPrompt || !strings.Contains(fake.system, "'VERGİ KİMLİK NO'") {
		t.Fatalf("unexpected system prompt %q", fake.system)
	}
	if len(fake.pages) != 1 || string(fake.pages[0]) != "png" {
		t.Fatalf("unexpected pages %v", fake.pages)
	}
}

func TestUnconfiguredProviderFailsExtraction(t *testing.T) {
	backend := ocr.NewPagedBackend(ocr.KindVision, onePage{}, New(llm.PlaceholderClient{}), 0)

	_, err := backend.Extract(context.Background(), "invoice.png")
	if !errors.Is(err, ocr.ErrExtractionFailed) || !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("expected extraction failure wrapping ErrNotConfigured, got %v", err)
	}
}
