// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

// package codec provides binary-safe JSON serialization for auth-state
// records. Raw key material is tagged with a Buffer marker object so byte
// sequences survive the textual storage format intact.
package codec // import "github.com/toeirei/sigilstore/internal/codec"

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// bufferMarker is the type tag used to mark encoded byte sequences inside
// the stored JSON. It matches the wire form produced by other clients of the
// same table, so stores can be shared across implementations.
const bufferMarker = "Buffer"

// Buffer is a byte sequence that serializes to the tagged marker object
// {"type":"Buffer","data":"<base64>"} instead of the default base64 string.
type Buffer []byte

// MarshalJSON encodes the buffer as a marker object with base64 payload.
func (b Buffer) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"type": bufferMarker,
		"data": base64.StdEncoding.EncodeToString(b),
	})
}

// UnmarshalJSON accepts the marker object (base64 string or legacy numeric
// array payload) as well as a bare base64 string.
func (b *Buffer) UnmarshalJSON(data []byte) error {
	// Bare base64 string form.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("codec: invalid base64 buffer: %w", err)
		}
		*b = raw
		return nil
	}

	var m struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("codec: invalid buffer value: %w", err)
	}
	raw, ok, err := decodeMarkerData(m.Data)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("codec: unrecognized buffer payload")
	}
	*b = raw
	return nil
}

// decodeMarkerData decodes the "data" payload of a marker object. It accepts
// a base64 string or the legacy array-of-bytes form.
func decodeMarkerData(data json.RawMessage) (Buffer, bool, error) {
	if len(data) == 0 {
		return nil, false, nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, false, fmt.Errorf("codec: invalid base64 buffer: %w", err)
		}
		return raw, true, nil
	}
	var nums []byte
	if err := json.Unmarshal(data, &nums); err == nil {
		return nums, true, nil
	}
	return nil, false, nil
}

// Marshal serializes a value to the textual storage form. Byte sequences
// held as Buffer values are tagged so they can be reconstructed later.
func Marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("codec: marshal failed: %w", err)
	}
	return string(data), nil
}

// Unmarshal parses stored text into a generic value and revives all tagged
// byte sequences back into Buffer values. Values without markers pass
// through as plain decoded JSON.
func Unmarshal(text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("codec: unmarshal failed: %w", err)
	}
	return revive(v), nil
}

// Decode parses stored text directly into a typed destination. Buffer fields
// on the destination handle their own marker reconstruction.
func Decode(text string, out any) error {
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("codec: decode failed: %w", err)
	}
	return nil
}

// Canonicalize re-serializes a value that arrived already parsed (a JSON
// column returning structured data rather than raw text) and runs it back
// through Unmarshal. Marker reconstruction therefore always happens on one
// canonical path regardless of what the driver hands back.
func Canonicalize(v any) (any, error) {
	text, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return Unmarshal(text)
}

// revive walks a decoded JSON tree and converts marker objects into Buffer
// values. Everything else is returned unchanged.
func revive(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if b, ok := reviveMarker(t); ok {
			return b
		}
		for k, val := range t {
			t[k] = revive(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = revive(val)
		}
		return t
	default:
		return v
	}
}

// reviveMarker reports whether m is a buffer marker object and, if so,
// returns the reconstructed bytes.
func reviveMarker(m map[string]any) (Buffer, bool) {
	if len(m) != 2 {
		return nil, false
	}
	typ, ok := m["type"].(string)
	if !ok || typ != bufferMarker {
		return nil, false
	}
	switch data := m["data"].(type) {
	case string:
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, false
		}
		return raw, true
	case []any:
		// Legacy array-of-bytes payload.
		raw := make(Buffer, 0, len(data))
		for _, n := range data {
			f, ok := n.(float64)
			if !ok {
				return nil, false
			}
			raw = append(raw, byte(f))
		}
		return raw, true
	default:
		return nil, false
	}
}
