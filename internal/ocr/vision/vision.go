// Package vision reads page text with a remote vision model.
package vision

import (
	"context"

	"docparse-backend/internal/llm"
	"docparse-backend/internal/ocr"
)

// SystemPrompt is sent with every page image.
const SystemPrompt = "You are an OCR engine. Extract **all text and numeric data** from the document, " +
	"including the labels and the values in the associated fields. " +
	"Specifically, ensure the text and number in the 'VERGİ KİMLİK NO' field are captured. " +
	"Return ONLY the extracted text, formatted clearly."

// Reader adapts a vision transcriber to ocr.PageRecognizer.
type Reader struct {
	transcriber llm.VisionTranscriber
}

// New returns a Reader backed by transcriber.
func New(transcriber llm.VisionTranscriber) *Reader {
	return &Reader{transcriber: transcriber}
}

// Recognize implements ocr.PageRecognizer.
func (r *Reader) Recognize(ctx context.Context, png []byte) (string, error) {
	return r.transcriber.Transcribe(ctx, SystemPrompt, png)
}

var _ ocr.PageRecognizer = (*Reader)(nil)
