// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/toeirei/sigilstore/internal/config"
	"github.com/toeirei/sigilstore/internal/logging"
)

// Executor runs parameterized statements against the Connector, retrying a
// bounded number of times with a fixed delay. No back-off, no jitter: the
// policy tolerates brief connection blips, nothing more.
type Executor struct {
	conn     *Connector
	delay    time.Duration
	attempts int
}

// NewExecutor builds an Executor with the retry policy from cfg.
func NewExecutor(conn *Connector, cfg config.Config) *Executor {
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = config.DefaultRetryDelay
	}
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = config.DefaultMaxRetries
	}
	return &Executor{conn: conn, delay: delay, attempts: attempts}
}

// Query runs a statement that returns rows. On exhaustion it returns nil
// rows and an error wrapping ErrRetriesExhausted.
func (e *Executor) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	var rows []map[string]any
	err := e.retry(ctx, query, func(ctx context.Context, force bool) error {
		rows = nil
		db, err := e.conn.DB(ctx, force)
		if err != nil {
			return err
		}
		return QueryRawInto(ctx, db, &rows, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Exec runs a statement that returns no rows.
func (e *Executor) Exec(ctx context.Context, query string, args ...any) error {
	return e.retry(ctx, query, func(ctx context.Context, force bool) error {
		db, err := e.conn.DB(ctx, force)
		if err != nil {
			return err
		}
		_, err = ExecRaw(ctx, db, query, args...)
		return err
	})
}

// retry applies the fixed-delay policy to fn. After a failure that looks
// like a dead connection the next attempt forces a reopen instead of
// reusing a session the server already dropped.
func (e *Executor) retry(ctx context.Context, query string, fn func(ctx context.Context, force bool) error) error {
	var lastErr error
	force := false
	for attempt := 1; attempt <= e.attempts; attempt++ {
		err := fn(ctx, force)
		if err == nil {
			return nil
		}
		lastErr = err
		force = isConnectionError(err)
		logging.Debugf("db: attempt %d/%d failed for %q: %v", attempt, e.attempts, query, err)
		if attempt < e.attempts {
			time.Sleep(e.delay)
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, e.attempts, lastErr)
}
