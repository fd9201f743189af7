package openai

import (
	"context"

	"docparse-backend/internal/llm"
)

// CompleteJSON asks the model for a JSON object. Temperature is pinned to 0
// except on gpt-5 models, which reject it.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	reqBody := chatRequest{
		Messages:       messages,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if !isGPT5(c.model) {
		temp := float32(0)
		reqBody.Temperature = &temp
	}
	return c.chat(ctx, "complete_json", reqBody)
}

var _ llm.JSONCompleter = (*Client)(nil)
