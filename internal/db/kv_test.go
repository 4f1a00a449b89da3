// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"bytes"
	"context"
	"testing"

	"github.com/toeirei/sigilstore/internal/codec"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := map[string]any{
		"keyPair": map[string]any{
			"public":  codec.Buffer{1, 2, 3},
			"private": codec.Buffer{4, 5, 6},
		},
		"keyId": float64(12),
	}
	if err := s.Write(ctx, "pre-key-12", in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := s.Read(ctx, "pre-key-12")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", got)
	}
	pair := m["keyPair"].(map[string]any)
	pub, ok := pair["public"].(codec.Buffer)
	if !ok || !bytes.Equal(pub, []byte{1, 2, 3}) {
		t.Fatalf("public key corrupted: %#v", pair["public"])
	}
	if m["keyId"].(float64) != 12 {
		t.Fatalf("keyId corrupted: %#v", m["keyId"])
	}
}

func TestWriteUpsertReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "session-a", map[string]any{"v": "one"}); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if err := s.Write(ctx, "session-a", map[string]any{"v": "two"}); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	got, err := s.Read(ctx, "session-a")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.(map[string]any)["v"] != "two" {
		t.Fatalf("upsert did not replace value: %#v", got)
	}

	// Exactly one row for the id.
	rows, err := s.Query(ctx, "SELECT id FROM \"auth\" WHERE id = ?", "session-a")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", len(rows))
	}
}

func TestReadAbsentReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Read(context.Background(), "session-missing")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent record, got %#v", got)
	}
}

func TestRemoveThenReadNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "sender-key-x", map[string]any{"k": 1}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Remove(ctx, "sender-key-x"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	got, err := s.Read(ctx, "sender-key-x")
	if err != nil || got != nil {
		t.Fatalf("expected nil after remove, got %#v, %v", got, err)
	}
	// Removing again is a no-op.
	if err := s.Remove(ctx, "sender-key-x"); err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}
}

func TestWriteNilRemoves(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "session-n", map[string]any{"k": 1}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Write(ctx, "session-n", nil); err != nil {
		t.Fatalf("nil Write failed: %v", err)
	}
	got, err := s.Read(ctx, "session-n")
	if err != nil || got != nil {
		t.Fatalf("nil write must remove the record, got %#v, %v", got, err)
	}
}

func TestClearExceptCreds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := map[string]any{"k": "v"}
	for _, id := range []string{RecordCreds, "session-a", "pre-key-1", "app-state-sync-key-z"} {
		if err := s.Write(ctx, id, seed); err != nil {
			t.Fatalf("Write(%q) failed: %v", id, err)
		}
	}

	if err := s.ClearExceptCreds(ctx); err != nil {
		t.Fatalf("ClearExceptCreds failed: %v", err)
	}

	if got, _ := s.Read(ctx, RecordCreds); got == nil {
		t.Fatal("creds must survive clear")
	}
	for _, id := range []string{"session-a", "pre-key-1", "app-state-sync-key-z"} {
		if got, _ := s.Read(ctx, id); got != nil {
			t.Fatalf("record %q must be gone after clear", id)
		}
	}
}

func TestRemoveAllIncludingCreds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{RecordCreds, "session-a"} {
		if err := s.Write(ctx, id, map[string]any{"k": "v"}); err != nil {
			t.Fatalf("Write(%q) failed: %v", id, err)
		}
	}
	if err := s.RemoveAll(ctx); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if got, _ := s.Read(ctx, RecordCreds); got != nil {
		t.Fatal("creds must be gone after RemoveAll")
	}
	// Clearing an already-empty table is a no-op.
	if err := s.RemoveAll(ctx); err != nil {
		t.Fatalf("second RemoveAll failed: %v", err)
	}
}

func TestDropTableIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.DropTable(ctx); err != nil {
		t.Fatalf("DropTable failed: %v", err)
	}
	if err := s.DropTable(ctx); err != nil {
		t.Fatalf("DropTable on absent table failed: %v", err)
	}
}
