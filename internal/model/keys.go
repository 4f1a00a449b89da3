// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"fmt"
	"strings"

	"github.com/toeirei/sigilstore/internal/codec"
)

// KeyCategory names a class of derived key records. Records are addressed in
// the backing table as "{category}-{id}".
type KeyCategory string

const (
	CategoryPreKey              KeyCategory = "pre-key"
	CategorySession             KeyCategory = "session"
	CategorySenderKey           KeyCategory = "sender-key"
	CategoryAppStateSyncKey     KeyCategory = "app-state-sync-key"
	CategoryAppStateSyncVersion KeyCategory = "app-state-sync-version"
	CategorySenderKeyMemory     KeyCategory = "sender-key-memory"
)

// KeyCategories lists every recognized category, longest names first so
// prefix matching in SplitRecordID is unambiguous ("sender-key-memory"
// before "sender-key").
var KeyCategories = []KeyCategory{
	CategoryAppStateSyncVersion,
	CategoryAppStateSyncKey,
	CategorySenderKeyMemory,
	CategorySenderKey,
	CategorySession,
	CategoryPreKey,
}

// ParseKeyCategory validates a category string.
func ParseKeyCategory(s string) (KeyCategory, error) {
	c := KeyCategory(s)
	if !c.Valid() {
		return "", fmt.Errorf("model: unknown key category %q", s)
	}
	return c, nil
}

// Valid reports whether c is a recognized category.
func (c KeyCategory) Valid() bool {
	for _, known := range KeyCategories {
		if c == known {
			return true
		}
	}
	return false
}

// RecordID composes the table id for a key record.
func (c KeyCategory) RecordID(id string) string {
	return string(c) + "-" + id
}

// SplitRecordID decomposes a table id back into category and key id. The
// credentials singleton and unrecognized ids report ok=false.
func SplitRecordID(record string) (KeyCategory, string, bool) {
	for _, c := range KeyCategories {
		prefix := string(c) + "-"
		if strings.HasPrefix(record, prefix) {
			return c, record[len(prefix):], true
		}
	}
	return "", "", false
}

// Revive converts a generically decoded record value into its typed form.
// Only app-state sync keys have one; every other category passes through
// unchanged, as does nil.
func (c KeyCategory) Revive(value any) (any, error) {
	if value == nil || c != CategoryAppStateSyncKey {
		return value, nil
	}
	text, err := codec.Marshal(value)
	if err != nil {
		return nil, err
	}
	data := &AppStateSyncKeyData{}
	if err := codec.Decode(text, data); err != nil {
		return nil, err
	}
	return data, nil
}
