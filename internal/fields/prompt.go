package fields

import (
	"fmt"
	"strings"
)

// SystemPrompt accompanies every extraction request.
const SystemPrompt = "You extract structured data as JSON."

// BuildPrompt renders the user message for raw text and the requested fields.
func BuildPrompt(rawText string, schema Schema) string {
	lines := []string{
		"You are a strict information extraction engine.",
		"You will be given the full OCR text of a document and a list of fields to extract.",
		"For each field, you must return a JSON object mapping field keys to extracted values.",
		"If a value cannot be found, return null for that field.",
		"",
		"Fields:",
	}
	for _, f := range schema.fields {
		lines = append(lines, fmt.Sprintf(`- key: "%s", name: "%s", description: "%s", type: "%s"`,
			f.Key, f.Name, f.Description, f.Type))
	}
	lines = append(lines,
		"",
		"Full OCR text:",
		rawText,
		"",
		"Return ONLY valid JSON in this format:",
		"{",
		`  "field_key_1": "value or null",`,
		`  "field_key_2": "value or null"`,
		"}",
	)
	return strings.Join(lines, "\n")
}
