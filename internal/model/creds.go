// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

// package model holds the persisted auth-state data structures: the
// long-lived credential bundle and the categorized key records derived from
// it during a session.
package model // import "github.com/toeirei/sigilstore/internal/model"

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/curve25519"

	"github.com/toeirei/sigilstore/internal/codec"
)

// KeyPair is an X25519 key pair as stored in the credential bundle.
type KeyPair struct {
	Public  codec.Buffer `json:"public"`
	Private codec.Buffer `json:"private"`
}

// SignedKeyPair is a pre-key pair published with a signature from the
// identity key. Signing happens in the protocol layer, which owns the
// XEdDSA implementation; a freshly generated bundle carries an empty
// signature until then.
type SignedKeyPair struct {
	KeyPair   KeyPair      `json:"keyPair"`
	Signature codec.Buffer `json:"signature"`
	KeyID     uint32       `json:"keyId"`
}

// AccountSettings carries per-account behavior flags synced by the server.
type AccountSettings struct {
	UnarchiveChats bool `json:"unarchiveChats"`
}

// AppStateSyncKeyFingerprint identifies the device set an app-state sync key
// was shared with.
type AppStateSyncKeyFingerprint struct {
	RawID         int   `json:"rawId"`
	CurrentIndex  int   `json:"currentIndex"`
	DeviceIndexes []int `json:"deviceIndexes"`
}

// AppStateSyncKeyData is the typed form of an "app-state-sync-key" record.
type AppStateSyncKeyData struct {
	KeyData     codec.Buffer                `json:"keyData"`
	Fingerprint *AppStateSyncKeyFingerprint `json:"fingerprint"`
	Timestamp   int64                       `json:"timestamp"`
}

// Credentials is the singleton "creds" record: everything a session needs to
// resume an authenticated connection. The protocol layer mutates it in
// memory and persists snapshots explicitly.
type Credentials struct {
	NoiseKey                KeyPair       `json:"noiseKey"`
	PairingEphemeralKeyPair KeyPair       `json:"pairingEphemeralKeyPair"`
	SignedIdentityKey       KeyPair       `json:"signedIdentityKey"`
	SignedPreKey            SignedKeyPair `json:"signedPreKey"`

	RegistrationID          uint32 `json:"registrationId"`
	AdvSecretKey            string `json:"advSecretKey"`
	NextPreKeyID            uint32 `json:"nextPreKeyId"`
	FirstUnuploadedPreKeyID uint32 `json:"firstUnuploadedPreKeyId"`

	AccountSyncCounter int             `json:"accountSyncCounter"`
	AccountSettings    AccountSettings `json:"accountSettings"`

	DeviceID    string       `json:"deviceId"`
	PhoneID     string       `json:"phoneId"`
	IdentityID  codec.Buffer `json:"identityId"`
	BackupToken codec.Buffer `json:"backupToken"`

	Registered               bool  `json:"registered"`
	ProcessedHistoryMessages []any `json:"processedHistoryMessages"`
}

// NewCredentials generates a fresh, unregistered credential bundle.
func NewCredentials() (*Credentials, error) {
	noise, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	pairing, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	identity, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	preKey, err := newKeyPair()
	if err != nil {
		return nil, err
	}

	advSecret, err := randomBytes(32)
	if err != nil {
		return nil, err
	}
	identityID, err := randomBytes(20)
	if err != nil {
		return nil, err
	}
	backupToken, err := randomBytes(20)
	if err != nil {
		return nil, err
	}
	regID, err := randomRegistrationID()
	if err != nil {
		return nil, err
	}

	return &Credentials{
		NoiseKey:                noise,
		PairingEphemeralKeyPair: pairing,
		SignedIdentityKey:       identity,
		SignedPreKey:            SignedKeyPair{KeyPair: preKey, KeyID: 1},

		RegistrationID:          regID,
		AdvSecretKey:            base64.StdEncoding.EncodeToString(advSecret),
		NextPreKeyID:            1,
		FirstUnuploadedPreKeyID: 1,

		AccountSettings: AccountSettings{UnarchiveChats: false},

		DeviceID:    uuid.NewString(),
		PhoneID:     uuid.NewString(),
		IdentityID:  identityID,
		BackupToken: backupToken,

		ProcessedHistoryMessages: []any{},
	}, nil
}

// newKeyPair generates an X25519 key pair.
func newKeyPair() (KeyPair, error) {
	priv, err := randomBytes(curve25519.ScalarSize)
	if err != nil {
		return KeyPair{}, err
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("model: derive public key: %w", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// randomRegistrationID draws a registration id in the protocol range
// [1, 16380].
func randomRegistrationID() (uint32, error) {
	raw, err := randomBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(raw)%16380 + 1, nil
}

func randomBytes(n int) (codec.Buffer, error) {
	b := make(codec.Buffer, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("model: entropy unavailable: %w", err)
	}
	return b, nil
}
