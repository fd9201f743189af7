package fields

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Spec describes one field the caller wants extracted. Type is advisory.
type Spec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// Field is a Spec with its request key.
type Field struct {
	Key string
	Spec
}

// Schema is the ordered set of requested fields. It decodes from a JSON object
// and keeps the caller's key order.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from fields in order. Duplicate keys are rejected.
func NewSchema(fields ...Field) (Schema, error) {
	s := Schema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if err := s.add(f); err != nil {
			return Schema{}, err
		}
	}
	return s, nil
}

func (s *Schema) add(f Field) error {
	if s.index == nil {
		s.index = map[string]int{}
	}
	if _, dup := s.index[f.Key]; dup {
		return fmt.Errorf("duplicate field key %q", f.Key)
	}
	s.index[f.Key] = len(s.fields)
	s.fields = append(s.fields, f)
	return nil
}

// Len returns the number of fields.
func (s Schema) Len() int { return len(s.fields) }

// Fields returns the fields in request order.
func (s Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Keys returns the field keys in request order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s.fields))
	for i, f := range s.fields {
		keys[i] = f.Key
	}
	return keys
}

// Has reports whether key was requested.
func (s Schema) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Get returns the spec for key.
func (s Schema) Get(key string) (Spec, bool) {
	i, ok := s.index[key]
	if !ok {
		return Spec{}, false
	}
	return s.fields[i].Spec, true
}

// MarshalJSON writes the schema as an object in request order.
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		spec, err := json.Marshal(f.Spec)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(spec)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// specWire detects missing members; name, description and type are required.
type specWire struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Type        *string `json:"type"`
}

// UnmarshalJSON reads an object of key -> spec, preserving key order.
func (s *Schema) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("fields must be an object")
	}

	out := Schema{index: map[string]int{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("fields: %w", err)
		}
		key, _ := tok.(string)

		var wire specWire
		if err := dec.Decode(&wire); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		var missing []string
		if wire.Name == nil {
			missing = append(missing, "name")
		}
		if wire.Description == nil {
			missing = append(missing, "description")
		}
		if wire.Type == nil {
			missing = append(missing, "type")
		}
		if len(missing) > 0 {
			return fmt.Errorf("field %q: missing %s", key, strings.Join(missing, ", "))
		}
		f := Field{Key: key, Spec: Spec{Name: *wire.Name, Description: *wire.Description, Type: *wire.Type}}
		if err := out.add(f); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	*s = out
	return nil
}
