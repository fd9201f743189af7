package openai

import (
	"context"
	"encoding/base64"
	"fmt"

	"docparse-backend/internal/llm"
)

// Transcribe sends a single PNG page as a data URL with the given system prompt.
func (c *Client) Transcribe(ctx context.Context, system string, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("openai transcribe: empty image")
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	reqBody := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			}},
		},
	}
	return c.chat(ctx, "transcribe", reqBody)
}

var _ llm.VisionTranscriber = (*Client)(nil)
