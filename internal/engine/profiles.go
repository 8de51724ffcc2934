package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"erasure/internal/domain"
	"erasure/internal/events"
	"erasure/internal/vault"
)

// CreateProfile seals and stores a PII profile. Only the label and the data
// hash ever appear outside the vault.
func (e Engine) CreateProfile(ctx context.Context, label string, data vault.ProfileData, actorID string) (domain.Profile, error) {
	if e.Vault == nil {
		return domain.Profile{}, errors.New("vault not configured")
	}
	if data.FullName == "" {
		return domain.Profile{}, errors.New("full_name is required")
	}
	if label == "" {
		label = "default"
	}
	ciphertext, nonce, tag, err := e.Vault.Encrypt(data)
	if err != nil {
		return domain.Profile{}, err
	}
	now := e.nowRFC3339()
	p := domain.Profile{
		ProfileID:  uuid.NewString(),
		Label:      label,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		AuthTag:    tag,
		DataHash:   vault.DataHash(data),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProfile(ctx, tx, p); err != nil {
		return domain.Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "profile.created", "profile", p.ProfileID, actorID, events.EventPayload{
		"label":     p.Label,
		"data_hash": p.DataHash,
	}); err != nil {
		return domain.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// UpdateProfile re-seals a profile. The data hash detects whether the
// plaintext actually changed; unchanged data still rotates the nonce.
func (e Engine) UpdateProfile(ctx context.Context, profileID string, data vault.ProfileData, actorID string) (domain.Profile, bool, error) {
	if e.Vault == nil {
		return domain.Profile{}, false, errors.New("vault not configured")
	}
	existing, err := e.Repo.GetProfile(ctx, profileID)
	if err != nil {
		return domain.Profile{}, false, err
	}
	newHash := vault.DataHash(data)
	changed := newHash != existing.DataHash

	ciphertext, nonce, tag, err := e.Vault.Encrypt(data)
	if err != nil {
		return domain.Profile{}, false, err
	}
	existing.Ciphertext = ciphertext
	existing.Nonce = nonce
	existing.AuthTag = tag
	existing.DataHash = newHash
	existing.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, false, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateProfile(ctx, tx, existing); err != nil {
		return domain.Profile{}, false, err
	}
	if err := e.Events.Append(ctx, tx, "profile.updated", "profile", profileID, actorID, events.EventPayload{
		"data_hash": newHash,
		"changed":   changed,
	}); err != nil {
		return domain.Profile{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, false, err
	}
	return existing, changed, nil
}

// DeleteProfile removes the sealed profile row.
func (e Engine) DeleteProfile(ctx context.Context, profileID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteProfile(ctx, tx, profileID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "profile.deleted", "profile", profileID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadProfile decrypts a profile for a bounded matching pass. Callers must
// not persist or log the returned plaintext.
func (e Engine) LoadProfile(ctx context.Context, profileID string) (vault.ProfileData, error) {
	if e.Vault == nil {
		return vault.ProfileData{}, errors.New("vault not configured")
	}
	p, err := e.Repo.GetProfile(ctx, profileID)
	if err != nil {
		return vault.ProfileData{}, err
	}
	return e.Vault.Decrypt(p.Ciphertext, p.Nonce, p.AuthTag)
}
