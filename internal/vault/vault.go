// Package vault provides authenticated encryption for PII profiles.
//
// Profiles are persisted only as (ciphertext, nonce, tag); decryption fails
// closed on any tag mismatch. DataHash gives a nonce-independent digest so
// profile changes can be detected without decrypting anything.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

// ErrDecrypt is returned for any authentication or decoding failure. The
// cause is deliberately not distinguished to callers.
var ErrDecrypt = fmt.Errorf("vault: decryption failed")

// Address is one profile address. Current marks the subject's present
// residence, which scores higher during location matching.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip,omitempty"`
	Current bool   `json:"current,omitempty"`
}

type Phone struct {
	Number string `json:"number"`
	Type   string `json:"type,omitempty"`
}

// ProfileData is the plaintext shape of a PII profile. Instances must stay
// inside a bounded decrypt-use-discard scope and never reach logs or
// persistent storage.
type ProfileData struct {
	FullName       string    `json:"full_name"`
	Aliases        []string  `json:"aliases,omitempty"`
	DateOfBirth    string    `json:"date_of_birth,omitempty"`
	Addresses      []Address `json:"addresses,omitempty"`
	PhoneNumbers   []Phone   `json:"phone_numbers,omitempty"`
	EmailAddresses []string  `json:"email_addresses,omitempty"`
	Relatives      []string  `json:"relatives,omitempty"`
}

// Vault seals and opens profiles with AES-256-GCM.
type Vault struct {
	aead cipher.AEAD
}

// New builds a vault from a 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

// FromHex builds a vault from a 64-character hex key.
func FromHex(hexKey string) (*Vault, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("vault: invalid hex key: %w", err)
	}
	return New(key)
}

// Encrypt seals a profile. Returns (ciphertext, nonce, tag); the tag is kept
// separate from the ciphertext in storage.
func (v *Vault) Encrypt(p ProfileData) (ciphertext, nonce, tag []byte, err error) {
	plaintext, err := canonicalJSON(p)
	if err != nil {
		return nil, nil, nil, err
	}
	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, err
	}
	sealed := v.aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - tagSize
	return sealed[:split], nonce, sealed[split:], nil
}

// Decrypt opens a sealed profile, failing closed on tag mismatch.
func (v *Vault) Decrypt(ciphertext, nonce, tag []byte) (ProfileData, error) {
	if len(nonce) != nonceSize || len(tag) != tagSize {
		return ProfileData{}, ErrDecrypt
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ProfileData{}, ErrDecrypt
	}
	var p ProfileData
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return ProfileData{}, ErrDecrypt
	}
	return p, nil
}

// DataHash returns the SHA-256 of the profile's canonical serialization.
// Identical plaintext always hashes identically regardless of nonce.
func DataHash(p ProfileData) string {
	canonical, _ := canonicalJSON(p)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

func canonicalJSON(p ProfileData) ([]byte, error) {
	// Struct marshaling is deterministic in Go, which is all canonical
	// means here.
	return json.Marshal(p)
}
