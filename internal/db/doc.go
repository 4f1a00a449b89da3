// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

// Package db contains the persistence core of Sigilstore: a lazily-opened
// single-connection handle to the backing database, a fixed-delay retrying
// query executor, and the key-value operations over the auth-state table.
//
// The layering is strict: Store -> Executor -> Connector -> database/sql.
// The Connector owns exactly one connection (the pool is capped at one) and
// checks liveness reactively before each use. The Executor retries each
// statement a bounded number of times and reports exhaustion through the
// ErrRetriesExhausted sentinel; the Store maps that sentinel back to the
// historical "empty result" behavior for reads and swallows it with a
// warning for writes, so transient outages never surface to the protocol
// layer.
package db // import "github.com/toeirei/sigilstore/internal/db"
