// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/toeirei/sigilstore/internal/config"
)

// testConfig returns a SQLite-backed configuration pointing at a fresh
// database file under the test's temp dir. SQLite keeps these tests free of
// external services, the same way the cross-backend store is exercised in CI.
func testConfig(t *testing.T, table string) config.Config {
	t.Helper()
	return config.Config{
		Engine:     "sqlite",
		Database:   filepath.Join(t.TempDir(), "auth.db"),
		Table:      table,
		RetryDelay: time.Millisecond,
		MaxRetries: 3,
	}
}

// newTestStore opens a Store over a fresh SQLite database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(testConfig(t, "auth"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
