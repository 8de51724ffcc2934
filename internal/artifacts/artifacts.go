// Package artifacts stores run evidence on disk with an index row in the
// database: confirmation page snapshots, scrape outputs, submission receipts.
package artifacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"erasure/internal/domain"
	"erasure/internal/repo"
)

type Store struct {
	Root string
	DB   *sql.DB
	Repo repo.Repo
	Now  func() time.Time
}

func New(root string, db *sql.DB) *Store {
	return &Store{Root: root, DB: db, Repo: repo.Repo{DB: db}, Now: time.Now}
}

// SaveJSON writes the payload under the run's artifact directory and records
// the index row atomically with respect to the database.
func (s *Store) SaveJSON(ctx context.Context, runID, kind string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	dir := filepath.Join(s.Root, runID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	artifactID := uuid.NewString()
	path := filepath.Join(dir, artifactID+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a := domain.Artifact{
		ArtifactID:  artifactID,
		RunID:       runID,
		Kind:        kind,
		ContentType: "application/json",
		URI:         path,
		CreatedAt:   s.Now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.InsertArtifact(ctx, tx, a); err != nil {
		// The orphaned file is harmless; the index row is authoritative.
		return err
	}
	return tx.Commit()
}

// Read returns the stored bytes for an artifact.
func (s *Store) Read(ctx context.Context, artifactID string) (domain.Artifact, []byte, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT artifact_id,run_id,kind,content_type,uri,metadata_json,created_at FROM run_artifacts WHERE artifact_id=?`, artifactID)
	if err != nil {
		return domain.Artifact{}, nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return domain.Artifact{}, nil, repo.ErrNotFound
	}
	var a domain.Artifact
	var metadata sql.NullString
	if err := rows.Scan(&a.ArtifactID, &a.RunID, &a.Kind, &a.ContentType, &a.URI, &metadata, &a.CreatedAt); err != nil {
		return domain.Artifact{}, nil, err
	}
	if metadata.Valid {
		a.MetadataJSON = &metadata.String
	}
	data, err := os.ReadFile(a.URI)
	if err != nil {
		return a, nil, err
	}
	return a, data, nil
}
