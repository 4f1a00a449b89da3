// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func TestQuerySurfacesExhaustion(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Query(context.Background(), "SELECT value FROM no_such_table WHERE id = ?", "x")
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
}

func TestReadCoercesExhaustionToAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Dropping the table makes every statement fail; reads must degrade to
	// "absent" rather than surface the outage.
	if err := s.DropTable(ctx); err != nil {
		t.Fatalf("DropTable failed: %v", err)
	}
	got, err := s.Read(ctx, "session-x")
	if err != nil {
		t.Fatalf("Read must not error on exhaustion, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %#v", got)
	}
}

func TestWriteSwallowsExhaustion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.DropTable(ctx); err != nil {
		t.Fatalf("DropTable failed: %v", err)
	}
	// The write is lost, but per contract the caller sees no error.
	if err := s.Write(ctx, "session-x", map[string]any{"k": 1}); err != nil {
		t.Fatalf("Write must swallow exhaustion, got %v", err)
	}
	if err := s.Remove(ctx, "session-x"); err != nil {
		t.Fatalf("Remove must swallow exhaustion, got %v", err)
	}
}

func TestTransientOpenFailureRecovers(t *testing.T) {
	failures := 2
	orig := sqlOpenFunc
	sqlOpenFunc = func(driverName, dsn string) (*sql.DB, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("transient: connection refused")
		}
		return orig(driverName, dsn)
	}
	t.Cleanup(func() { sqlOpenFunc = orig })

	s := newTestStore(t)
	ctx := context.Background()

	// Fewer failures than the retry budget: the statement must succeed.
	if err := s.Write(ctx, "session-a", map[string]any{"k": 1}); err != nil {
		t.Fatalf("Write failed after transient open errors: %v", err)
	}
	got, err := s.Read(ctx, "session-a")
	if err != nil || got == nil {
		t.Fatalf("Read after recovery failed: %#v, %v", got, err)
	}
	if failures != 0 {
		t.Fatalf("expected all injected failures consumed, %d left", failures)
	}
}
