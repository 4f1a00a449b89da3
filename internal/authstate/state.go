// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

// package authstate is the public surface of Sigilstore. It hands the
// protocol layer a mutable in-memory credential bundle plus batched access
// to derived key records, all persisted through the retrying key-value
// store.
package authstate // import "github.com/toeirei/sigilstore/internal/authstate"

import (
	"context"
	"fmt"
	"io"

	"github.com/toeirei/sigilstore/internal/codec"
	"github.com/toeirei/sigilstore/internal/config"
	"github.com/toeirei/sigilstore/internal/db"
	"github.com/toeirei/sigilstore/internal/logging"
	"github.com/toeirei/sigilstore/internal/model"
)

// CredentialsGenerator produces a fresh default credential bundle for a
// session with no persisted state. The protocol layer may supply its own.
type CredentialsGenerator func() (*model.Credentials, error)

// Option customizes Open.
type Option func(*options)

type options struct {
	generate CredentialsGenerator
}

// WithCredentialsGenerator overrides the default credential bundle
// generator used when no "creds" record exists.
func WithCredentialsGenerator(gen CredentialsGenerator) Option {
	return func(o *options) { o.generate = gen }
}

// State is the auth-state handle returned to the protocol layer.
type State struct {
	// Creds is the mutable in-memory credential bundle. Mutations are only
	// persisted by SaveCreds.
	Creds *model.Credentials
	// Keys provides batched get/set over derived key records.
	Keys *KeyStore

	store *db.Store
}

// Open connects the auth state to its backing table. The credentials record
// is read immediately; when absent, a fresh default bundle is synthesized in
// memory and stays unpersisted until SaveCreds is called.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*State, error) {
	o := options{generate: model.NewCredentials}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := db.NewStore(cfg)
	if err != nil {
		return nil, err
	}

	text, found, err := store.ReadText(ctx, db.RecordCreds)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var creds *model.Credentials
	if found {
		creds = &model.Credentials{}
		if err := codec.Decode(text, creds); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("authstate: stored credentials are malformed: %w", err)
		}
	} else {
		creds, err = o.generate()
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		logging.Debugf("authstate: no stored credentials, generated fresh bundle")
	}

	return &State{
		Creds: creds,
		Keys:  &KeyStore{store: store},
		store: store,
	}, nil
}

// SaveCreds persists the current in-memory credential bundle.
func (s *State) SaveCreds(ctx context.Context) error {
	return s.store.Write(ctx, db.RecordCreds, s.Creds)
}

// Clear removes every key record while keeping the credentials.
func (s *State) Clear(ctx context.Context) error {
	return s.store.ClearExceptCreds(ctx)
}

// RemoveCreds removes every record including the credentials. The in-memory
// bundle is left untouched; the caller decides whether the session lives on.
func (s *State) RemoveCreds(ctx context.Context) error {
	return s.store.RemoveAll(ctx)
}

// DropTable drops the backing table entirely.
func (s *State) DropTable(ctx context.Context) error {
	return s.store.DropTable(ctx)
}

// Query exposes the retrying executor directly. Unlike the typed
// operations, it surfaces db.ErrRetriesExhausted.
func (s *State) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return s.store.Query(ctx, query, args...)
}

// Export streams a compressed dump of all records; see db.Store.Export.
func (s *State) Export(ctx context.Context, w io.Writer) error {
	return s.store.Export(ctx, w)
}

// Import replays a dump produced by Export as upserts.
func (s *State) Import(ctx context.Context, r io.Reader) error {
	return s.store.Import(ctx, r)
}

// Close releases the database handle.
func (s *State) Close() error {
	return s.store.Close()
}
