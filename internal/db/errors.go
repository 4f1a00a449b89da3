// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"errors"
	"strings"
)

// ErrRetriesExhausted is returned by the Executor when a statement failed
// for the entire retry budget. The Store coerces it back to an empty result
// so callers see the historical behavior; the raw Query escape hatch
// surfaces it.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ErrConnect is wrapped around handle-creation failures, which are fatal and
// never retried by the Connector itself.
var ErrConnect = errors.New("connection failed")

// isConnectionError reports whether a driver error looks like a dead or
// unreachable connection rather than a statement problem. Conservative,
// string-based, to avoid importing every driver's error types here.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	le := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"invalid connection",
		"bad connection",
		"closed network connection",
		"server has gone away",
	} {
		if strings.Contains(le, marker) {
			return true
		}
	}
	return false
}
