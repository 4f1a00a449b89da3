// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

// package security holds the Secret wrapper used for database passwords and
// other sensitive configuration so accidental formatting or marshaling does
// not reveal them.
package security // import "github.com/toeirei/sigilstore/internal/security"

import (
	"encoding/json"
	"fmt"
	"io"
)

// Secret is a thin wrapper around a byte slice intended to hold sensitive
// material (database passwords, auth tokens). It implements redaction
// helpers so accidental formatting or JSON marshaling does not reveal data.
type Secret []byte

// String redacts the secret for fmt.Print* convenience.
func (s Secret) String() string { return "[SECRET]" }

// Format implements fmt.Formatter to ensure `%v`, `%#v` and friends are redacted.
func (s Secret) Format(f fmt.State, c rune) {
	if _, err := io.WriteString(f, "[SECRET]"); err != nil {
		_ = err // intentionally ignore write error when formatting secrets for logs
	}
}

// Reveal returns the secret as a plain string for handing to a driver DSN.
func (s Secret) Reveal() string { return string(s) }

// Empty reports whether the secret holds no material.
func (s Secret) Empty() bool { return len(s) == 0 }

// Zero overwrites the underlying byte slice with zeros.
func (s *Secret) Zero() {
	if s == nil || *s == nil {
		return
	}
	for i := range *s {
		(*s)[i] = 0
	}
}

// MarshalJSON redacts secrets in JSON marshaling.
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal("[SECRET]") }

// MarshalText redacts secrets for text encoding (YAML config dumps).
func (s Secret) MarshalText() ([]byte, error) { return []byte("[SECRET]"), nil }

// FromString creates a Secret from a string input.
func FromString(in string) Secret { return Secret([]byte(in)) }
