// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// backupRecord is one table row in a backup stream.
type backupRecord struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

// backupEnvelope is the on-disk backup format: a gzip-compressed JSON
// document versioned for forward compatibility.
type backupEnvelope struct {
	SchemaVersion int            `json:"schemaVersion"`
	Table         string         `json:"table"`
	Records       []backupRecord `json:"records"`
}

const backupSchemaVersion = 1

// Export writes a gzip-compressed JSON dump of every record to w. Unlike
// the key-value operations, export surfaces store failures: a partial
// backup is worse than no backup.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	rows, err := s.exec.Query(ctx, fmt.Sprintf("SELECT id, value FROM %s ORDER BY id", s.table))
	if err != nil {
		return fmt.Errorf("db: export query: %w", err)
	}

	env := backupEnvelope{
		SchemaVersion: backupSchemaVersion,
		Table:         s.conn.Table(),
		Records:       make([]backupRecord, 0, len(rows)),
	}
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			if b, ok := row["id"].([]byte); ok {
				id = string(b)
			}
		}
		text := valueText(row["value"])
		if id == "" || text == "" {
			continue
		}
		env.Records = append(env.Records, backupRecord{ID: id, Value: json.RawMessage(text)})
	}

	zw := gzip.NewWriter(w)
	enc := json.NewEncoder(zw)
	if err := enc.Encode(&env); err != nil {
		_ = zw.Close()
		return fmt.Errorf("db: export encode: %w", err)
	}
	return zw.Close()
}

// Import replays a backup stream as upserts. Existing records with the same
// ids are overwritten; everything else is left alone, so import is a
// non-destructive merge and repeat imports converge on the same state.
func (s *Store) Import(ctx context.Context, r io.Reader) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("db: import: not a backup stream: %w", err)
	}
	defer func() { _ = zr.Close() }()

	var env backupEnvelope
	if err := json.NewDecoder(zr).Decode(&env); err != nil {
		return fmt.Errorf("db: import decode: %w", err)
	}
	if env.SchemaVersion > backupSchemaVersion {
		return fmt.Errorf("db: import: unsupported backup schema version %d", env.SchemaVersion)
	}

	for _, rec := range env.Records {
		if rec.ID == "" || len(rec.Value) == 0 {
			continue
		}
		if err := s.WriteText(ctx, rec.ID, string(rec.Value)); err != nil {
			return fmt.Errorf("db: import record %q: %w", rec.ID, err)
		}
	}
	return nil
}
