// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package authstate

import (
	"bytes"
	"context"
	"testing"

	"github.com/toeirei/sigilstore/internal/codec"
	"github.com/toeirei/sigilstore/internal/model"
)

func TestKeysSetGetRoundTrip(t *testing.T) {
	state := openTestState(t, testConfig(t))
	ctx := context.Background()

	record := map[string]any{
		"keyPair": map[string]any{
			"public":  codec.Buffer{1, 2, 3},
			"private": codec.Buffer{4, 5, 6},
		},
	}
	if err := state.Keys.Set(ctx, map[model.KeyCategory]map[string]any{
		model.CategoryPreKey: {"12": record},
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := state.Keys.Get(ctx, model.CategoryPreKey, []string{"12", "13"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected entries for every requested id, got %d", len(got))
	}
	if got["13"] != nil {
		t.Fatalf("absent id must map to nil, got %#v", got["13"])
	}
	loaded, ok := got["12"].(map[string]any)
	if !ok {
		t.Fatalf("expected generic map for pre-key, got %T", got["12"])
	}
	pub := loaded["keyPair"].(map[string]any)["public"]
	if b, ok := pub.(codec.Buffer); !ok || !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Fatalf("binary key material corrupted: %#v", pub)
	}
}

func TestKeysSetNilRemoves(t *testing.T) {
	state := openTestState(t, testConfig(t))
	ctx := context.Background()

	if err := state.Keys.Set(ctx, map[model.KeyCategory]map[string]any{
		model.CategorySession: {"abc": map[string]any{"v": 1}},
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := state.Keys.Set(ctx, map[model.KeyCategory]map[string]any{
		model.CategorySession: {"abc": nil},
	}); err != nil {
		t.Fatalf("nil Set failed: %v", err)
	}

	got, err := state.Keys.Get(ctx, model.CategorySession, []string{"abc"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	v, present := got["abc"]
	if !present {
		t.Fatal("requested id missing from result mapping")
	}
	if v != nil {
		t.Fatalf("expected nil after deletion, got %#v", v)
	}
}

func TestKeysGetRevivesAppStateSyncKey(t *testing.T) {
	state := openTestState(t, testConfig(t))
	ctx := context.Background()

	if err := state.Keys.Set(ctx, map[model.KeyCategory]map[string]any{
		model.CategoryAppStateSyncKey: {"AAAA": map[string]any{
			"keyData":   codec.Buffer{7, 7, 7},
			"timestamp": float64(1700000000),
		}},
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := state.Keys.Get(ctx, model.CategoryAppStateSyncKey, []string{"AAAA"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	data, ok := got["AAAA"].(*model.AppStateSyncKeyData)
	if !ok {
		t.Fatalf("expected *model.AppStateSyncKeyData, got %T", got["AAAA"])
	}
	if !bytes.Equal(data.KeyData, []byte{7, 7, 7}) || data.Timestamp != 1700000000 {
		t.Fatalf("sync key corrupted: %#v", data)
	}
}

func TestKeysRejectUnknownCategory(t *testing.T) {
	state := openTestState(t, testConfig(t))
	ctx := context.Background()

	if _, err := state.Keys.Get(ctx, "bogus", []string{"a"}); err == nil {
		t.Fatal("expected error for unknown category in Get")
	}
	if err := state.Keys.Set(ctx, map[model.KeyCategory]map[string]any{
		"bogus": {"a": map[string]any{}},
	}); err == nil {
		t.Fatal("expected error for unknown category in Set")
	}
}
