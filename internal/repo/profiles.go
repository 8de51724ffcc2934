package repo

import (
	"context"
	"database/sql"

	"erasure/internal/domain"
)

const profileColumns = `profile_id,label,ciphertext,nonce,auth_tag,data_hash,created_at,updated_at`

func scanProfile(s scanner) (domain.Profile, error) {
	var p domain.Profile
	err := s.Scan(&p.ProfileID, &p.Label, &p.Ciphertext, &p.Nonce, &p.AuthTag, &p.DataHash, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProfile(ctx context.Context, tx *sql.Tx, p domain.Profile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO pii_profiles(`+profileColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		p.ProfileID, p.Label, p.Ciphertext, p.Nonce, p.AuthTag, p.DataHash, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) UpdateProfile(ctx context.Context, tx *sql.Tx, p domain.Profile) error {
	res, err := tx.ExecContext(ctx, `UPDATE pii_profiles SET label=?, ciphertext=?, nonce=?, auth_tag=?, data_hash=?, updated_at=? WHERE profile_id=?`,
		p.Label, p.Ciphertext, p.Nonce, p.AuthTag, p.DataHash, p.UpdatedAt, p.ProfileID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetProfile(ctx context.Context, profileID string) (domain.Profile, error) {
	return scanProfile(r.DB.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM pii_profiles WHERE profile_id=?`, profileID))
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+profileColumns+` FROM pii_profiles ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeleteProfile(ctx context.Context, tx *sql.Tx, profileID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM pii_profiles WHERE profile_id=?`, profileID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
