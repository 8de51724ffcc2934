package repo

import (
	"context"
	"database/sql"

	"erasure/internal/domain"
)

const artifactColumns = `artifact_id,run_id,kind,content_type,uri,metadata_json,created_at`

func scanArtifact(s scanner) (domain.Artifact, error) {
	var a domain.Artifact
	var metadata sql.NullString
	err := s.Scan(&a.ArtifactID, &a.RunID, &a.Kind, &a.ContentType, &a.URI, &metadata, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.MetadataJSON = stringPtr(metadata)
	return a, nil
}

func (r Repo) InsertArtifact(ctx context.Context, tx *sql.Tx, a domain.Artifact) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO run_artifacts(`+artifactColumns+`) VALUES (?,?,?,?,?,?,?)`,
		a.ArtifactID, a.RunID, a.Kind, a.ContentType, a.URI, nullableStringPtr(a.MetadataJSON), a.CreatedAt)
	return err
}

func (r Repo) ListArtifacts(ctx context.Context, runID string) ([]domain.Artifact, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+artifactColumns+` FROM run_artifacts WHERE run_id=? ORDER BY created_at ASC, artifact_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
