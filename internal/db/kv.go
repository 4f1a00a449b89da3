// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/toeirei/sigilstore/internal/codec"
	"github.com/toeirei/sigilstore/internal/config"
	"github.com/toeirei/sigilstore/internal/logging"
)

// RecordCreds is the id of the singleton credentials record.
const RecordCreds = "creds"

// Store provides the key-value semantics over the auth-state table: one
// record per string id, values held as codec-serialized JSON text. All
// operations are idempotent.
type Store struct {
	exec   *Executor
	conn   *Connector
	table  string // quoted, validated identifier
	engine string
}

// NewStore wires a Connector and Executor for the given configuration. The
// connection itself stays closed until the first operation needs it.
func NewStore(cfg config.Config) (*Store, error) {
	conn, err := NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{
		exec:   NewExecutor(conn, cfg),
		conn:   conn,
		table:  quoteIdent(conn.Table(), conn.Engine()),
		engine: conn.Engine(),
	}, nil
}

// Read returns the codec-revived value for id, or nil when the record is
// absent, stored empty, or the store was unreachable for the whole retry
// budget (the historical empty-result coercion; see ErrRetriesExhausted).
func (s *Store) Read(ctx context.Context, id string) (any, error) {
	text, ok, err := s.ReadText(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return codec.Unmarshal(text)
}

// ReadText returns the raw stored text for id. The boolean reports whether
// a non-empty value was found.
func (s *Store) ReadText(ctx context.Context, id string) (string, bool, error) {
	rows, err := s.exec.Query(ctx, fmt.Sprintf("SELECT value FROM %s WHERE id = ?", s.table), id)
	if err != nil {
		if errors.Is(err, ErrRetriesExhausted) {
			logging.Warnf("db: read of %q gave up, treating as absent: %v", id, err)
			return "", false, nil
		}
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	text := valueText(rows[0]["value"])
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}

// valueText normalizes the value column across drivers. JSON columns come
// back as text or bytes from the stdlib drivers; a driver that hands back
// parsed structures is re-serialized so revival runs through one path.
func valueText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		text, err := codec.Marshal(t)
		if err != nil {
			logging.Warnf("db: unserializable value cell (%T): %v", v, err)
			return ""
		}
		return text
	}
}

// Write upserts value under id. A nil value removes the record; absence and
// null are not distinguished to callers.
func (s *Store) Write(ctx context.Context, id string, value any) error {
	if value == nil {
		return s.Remove(ctx, id)
	}
	text, err := codec.Marshal(value)
	if err != nil {
		return err
	}
	return s.WriteText(ctx, id, text)
}

// WriteText upserts already-serialized text under id.
func (s *Store) WriteText(ctx context.Context, id, text string) error {
	var query string
	switch s.engine {
	case "mysql":
		query = fmt.Sprintf("INSERT INTO %s (id, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)", s.table)
	default:
		query = fmt.Sprintf("INSERT INTO %s (id, value) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET value = EXCLUDED.value", s.table)
	}
	return s.swallowExhaustion("write", id, s.exec.Exec(ctx, query, id, text))
}

// Remove deletes the record for id. Removing an absent record is a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.swallowExhaustion("remove", id,
		s.exec.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table), id))
}

// ClearExceptCreds deletes every record except the credentials singleton.
func (s *Store) ClearExceptCreds(ctx context.Context) error {
	return s.swallowExhaustion("clear", RecordCreds,
		s.exec.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id != ?", s.table), RecordCreds))
}

// RemoveAll deletes every record in the table, credentials included.
func (s *Store) RemoveAll(ctx context.Context) error {
	return s.swallowExhaustion("remove-all", "*",
		s.exec.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)))
}

// DropTable drops the backing table entirely. Idempotent: dropping an
// absent table is not an error.
func (s *Store) DropTable(ctx context.Context) error {
	return s.swallowExhaustion("drop", "*",
		s.exec.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", s.table)))
}

// Query is the raw escape hatch to the retrying executor. Unlike the
// key-value operations it surfaces ErrRetriesExhausted to the caller.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return s.exec.Query(ctx, query, args...)
}

// Close releases the connection handle.
func (s *Store) Close() error {
	return s.conn.Close()
}

// swallowExhaustion preserves the historical contract for mutations: a
// statement that failed for the whole retry budget is logged and dropped
// rather than surfaced. Errors that are not exhaustion (serialization,
// invalid configuration) still propagate.
func (s *Store) swallowExhaustion(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRetriesExhausted) {
		logging.Warnf("db: %s of %q gave up, change lost: %v", op, id, err)
		return nil
	}
	return err
}
