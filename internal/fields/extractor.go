package fields

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"docparse-backend/internal/llm"
	"docparse-backend/internal/ocr"
	"docparse-backend/internal/shared/telemetry"
)

// Result is the outcome of one extraction. Values holds exactly the requested
// keys in request order.
type Result struct {
	Values         Values
	Degraded       bool
	TypeMismatches []string
}

// Extractor prompts a language model for the requested fields.
type Extractor struct {
	model   llm.JSONCompleter
	timeout time.Duration
}

// NewExtractor returns an extractor. timeout bounds the model call; 0 disables it.
func NewExtractor(model llm.JSONCompleter, timeout time.Duration) *Extractor {
	return &Extractor{model: model, timeout: timeout}
}

// Extract asks the model for schema's fields in rawText. A reply that is not a
// JSON object degrades to all-null values without error. Model transport
// failures wrap ocr.ErrExtractionFailed.
func (e *Extractor) Extract(ctx context.Context, rawText string, schema Schema) (Result, error) {
	if schema.Len() == 0 {
		return Result{Values: Values{}}, nil
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	reply, err := e.model.CompleteJSON(ctx, SystemPrompt, BuildPrompt(rawText, schema))
	if err != nil {
		return Result{}, fmt.Errorf("%w: field model: %w", ocr.ErrExtractionFailed, err)
	}

	parsed, err := parseReply(reply)
	if err != nil {
		telemetry.Warn("fields.degraded", map[string]any{
			"error":      err.Error(),
			"replyBytes": len(reply),
			"fields":     schema.Len(),
		})
		return Result{Values: nullValues(schema), Degraded: true}, nil
	}

	values := project(schema, parsed)
	return Result{Values: values, TypeMismatches: typeMismatches(schema, values)}, nil
}

var fencePattern = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*\\s*\\n?(.*?)\\n?\\s*```$")

// parseReply strips one surrounding markdown fence and decodes a JSON object.
func parseReply(reply string) (Values, error) {
	trimmed := strings.TrimSpace(reply)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}
	if trimmed == "" {
		return nil, fmt.Errorf("empty reply")
	}
	return decodeOrdered([]byte(trimmed))
}

// project keeps exactly the requested keys: missing ones become null, extra
// ones are dropped.
func project(schema Schema, parsed Values) Values {
	out := make(Values, 0, schema.Len())
	for _, f := range schema.fields {
		val, _ := parsed.Get(f.Key)
		out = append(out, Value{Key: f.Key, Value: val})
	}
	return out
}

func nullValues(schema Schema) Values {
	out := make(Values, 0, schema.Len())
	for _, f := range schema.fields {
		out = append(out, Value{Key: f.Key})
	}
	return out
}
