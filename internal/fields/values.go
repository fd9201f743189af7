package fields

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Value is one extracted key/value pair. Value is nil, a string, a json.Number,
// or whatever JSON the model produced; it is never coerced.
type Value struct {
	Key   string
	Value any
}

// Values is an extraction result in request key order.
type Values []Value

// Get returns the value for key.
func (v Values) Get(key string) (any, bool) {
	for _, kv := range v {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Map returns the values as a plain map.
func (v Values) Map() map[string]any {
	out := make(map[string]any, len(v))
	for _, kv := range v {
		out[kv.Key] = kv.Value
	}
	return out
}

// MarshalJSON writes an object in key order. A nil Values marshals as {}.
func (v Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", kv.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object preserving key order; numbers stay json.Number.
func (v *Values) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = nil
		return nil
	}
	out, err := decodeOrdered(data)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

var errNotObject = errors.New("not a JSON object")

// decodeOrdered decodes exactly one JSON object and nothing after it.
func decodeOrdered(data []byte) (Values, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errNotObject
	}
	out := Values{}
	seen := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		if i, dup := seen[key]; dup {
			out[i].Value = val
			continue
		}
		seen[key] = len(out)
		out = append(out, Value{Key: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	return out, nil
}
