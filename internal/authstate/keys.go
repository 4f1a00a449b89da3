// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package authstate

import (
	"context"
	"fmt"

	"github.com/toeirei/sigilstore/internal/db"
	"github.com/toeirei/sigilstore/internal/model"
)

// KeyStore is the batched get/set surface for derived key material. Records
// are addressed as "{category}-{id}" in the backing table.
type KeyStore struct {
	store *db.Store
}

// Get reads the records for the given ids within one category. The result
// maps every requested id, with nil for records that are absent (or were
// unreachable for the whole retry budget). App-state sync keys come back as
// *model.AppStateSyncKeyData; other categories as generic decoded values.
func (k *KeyStore) Get(ctx context.Context, category model.KeyCategory, ids []string) (map[string]any, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("authstate: unknown key category %q", category)
	}
	out := make(map[string]any, len(ids))
	for _, id := range ids {
		value, err := k.store.Read(ctx, category.RecordID(id))
		if err != nil {
			return nil, err
		}
		if value != nil {
			value, err = category.Revive(value)
			if err != nil {
				return nil, fmt.Errorf("authstate: revive %s record %q: %w", category, id, err)
			}
		}
		out[id] = value
	}
	return out, nil
}

// Set writes or removes key records per category: a present value is
// upserted, a nil value removes the record. The batch is issued one
// statement per id with no enclosing transaction; a failure partway leaves
// earlier writes durable.
func (k *KeyStore) Set(ctx context.Context, data map[model.KeyCategory]map[string]any) error {
	for category, entries := range data {
		if !category.Valid() {
			return fmt.Errorf("authstate: unknown key category %q", category)
		}
		for id, value := range entries {
			recordID := category.RecordID(id)
			var err error
			if value == nil {
				err = k.store.Remove(ctx, recordID)
			} else {
				err = k.store.Write(ctx, recordID, value)
			}
			if err != nil {
				return fmt.Errorf("authstate: set %s record %q: %w", category, id, err)
			}
		}
	}
	return nil
}
