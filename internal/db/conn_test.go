// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/toeirei/sigilstore/internal/config"
)

func TestEnsureTableSurvivesReopen(t *testing.T) {
	cfg := testConfig(t, "auth")
	ctx := context.Background()

	first, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := first.Write(ctx, "session-a", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A second store over the same database must find the table intact and
	// its bootstrap DDL must not disturb existing rows.
	second, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("second NewStore failed: %v", err)
	}
	defer func() { _ = second.Close() }()

	got, err := second.Read(ctx, "session-a")
	if err != nil || got == nil {
		t.Fatalf("data lost across reopen: %#v, %v", got, err)
	}
}

func TestConnectorReopensAfterClose(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "session-a", map[string]any{"k": 1}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// Closing releases the handle; the next operation reopens lazily.
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	got, err := s.Read(ctx, "session-a")
	if err != nil || got == nil {
		t.Fatalf("Read after close failed: %#v, %v", got, err)
	}
}

func TestConnectFailureIsFatal(t *testing.T) {
	cfg := config.Config{
		Engine:     "sqlite",
		Database:   "/nonexistent-dir/does/not/exist/auth.db",
		Table:      "auth",
		RetryDelay: time.Millisecond,
		MaxRetries: 2,
	}
	conn, err := NewConnector(cfg)
	if err != nil {
		t.Fatalf("NewConnector failed: %v", err)
	}
	if _, err := conn.DB(context.Background(), false); !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

func TestTableNameValidationRejected(t *testing.T) {
	cfg := testConfig(t, "auth; DROP TABLE users")
	if _, err := NewStore(cfg); err == nil {
		t.Fatal("expected invalid table name to be rejected")
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent("auth", "mysql"); got != "`auth`" {
		t.Fatalf("mysql quoting wrong: %s", got)
	}
	if got := quoteIdent("auth", "postgres"); got != `"auth"` {
		t.Fatalf("postgres quoting wrong: %s", got)
	}
}
