package repo

import (
	"context"
	"database/sql"

	"erasure/internal/domain"
)

const listingColumns = `listing_id,broker_id,profile_id,status,listing_url,listing_snapshot,matched_fields,confidence,discovered_at,removal_sent_at,verified_at,last_checked_at,recheck_after,notes`

func scanListing(s scanner) (domain.BrokerListing, error) {
	var l domain.BrokerListing
	var url, snapshot, matched, removalSent, verifiedAt, lastChecked, recheckAfter, notes sql.NullString
	err := s.Scan(&l.ListingID, &l.BrokerID, &l.ProfileID, &l.Status, &url, &snapshot, &matched,
		&l.Confidence, &l.DiscoveredAt, &removalSent, &verifiedAt, &lastChecked, &recheckAfter, &notes)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.ListingURL = stringPtr(url)
	l.SnapshotJSON = stringPtr(snapshot)
	l.MatchedFieldsJSON = stringPtr(matched)
	l.RemovalSentAt = stringPtr(removalSent)
	l.VerifiedAt = stringPtr(verifiedAt)
	l.LastCheckedAt = stringPtr(lastChecked)
	l.RecheckAfter = stringPtr(recheckAfter)
	l.Notes = stringPtr(notes)
	return l, nil
}

func (r Repo) InsertListing(ctx context.Context, tx *sql.Tx, l domain.BrokerListing) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO broker_listings(`+listingColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ListingID, l.BrokerID, l.ProfileID, l.Status, nullableStringPtr(l.ListingURL), nullableStringPtr(l.SnapshotJSON),
		nullableStringPtr(l.MatchedFieldsJSON), l.Confidence, l.DiscoveredAt, nullableStringPtr(l.RemovalSentAt),
		nullableStringPtr(l.VerifiedAt), nullableStringPtr(l.LastCheckedAt), nullableStringPtr(l.RecheckAfter), nullableStringPtr(l.Notes))
	return err
}

func (r Repo) UpdateListing(ctx context.Context, tx *sql.Tx, l domain.BrokerListing) error {
	res, err := tx.ExecContext(ctx, `UPDATE broker_listings SET status=?, listing_url=?, listing_snapshot=?, matched_fields=?, confidence=?, removal_sent_at=?, verified_at=?, last_checked_at=?, recheck_after=?, notes=? WHERE listing_id=?`,
		l.Status, nullableStringPtr(l.ListingURL), nullableStringPtr(l.SnapshotJSON), nullableStringPtr(l.MatchedFieldsJSON),
		l.Confidence, nullableStringPtr(l.RemovalSentAt), nullableStringPtr(l.VerifiedAt), nullableStringPtr(l.LastCheckedAt),
		nullableStringPtr(l.RecheckAfter), nullableStringPtr(l.Notes), l.ListingID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetListing(ctx context.Context, listingID string) (domain.BrokerListing, error) {
	return scanListing(r.DB.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM broker_listings WHERE listing_id=?`, listingID))
}

func (r Repo) GetListingTx(ctx context.Context, tx *sql.Tx, listingID string) (domain.BrokerListing, error) {
	return scanListing(tx.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM broker_listings WHERE listing_id=?`, listingID))
}

// FindListingByURL deduplicates discovery: the same listing URL for the same
// broker and profile maps to the existing row.
func (r Repo) FindListingByURL(ctx context.Context, tx *sql.Tx, brokerID, profileID, url string) (domain.BrokerListing, error) {
	return scanListing(tx.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM broker_listings WHERE broker_id=? AND profile_id=? AND listing_url=?`, brokerID, profileID, url))
}

type ListingFilters struct {
	BrokerID  string
	ProfileID string
	Status    string
	Limit     int
}

func (r Repo) ListListings(ctx context.Context, f ListingFilters) ([]domain.BrokerListing, error) {
	var clauses []string
	var args []any
	if f.BrokerID != "" {
		clauses = append(clauses, "broker_id=?")
		args = append(args, f.BrokerID)
	}
	if f.ProfileID != "" {
		clauses = append(clauses, "profile_id=?")
		args = append(args, f.ProfileID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + listingColumns + ` FROM broker_listings ` + whereClause(clauses) + ` ORDER BY discovered_at DESC, listing_id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BrokerListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// DueRechecks returns submitted or pending listings whose recheck window has
// opened.
func (r Repo) DueRechecks(ctx context.Context, now string, limit int) ([]domain.BrokerListing, error) {
	query := `SELECT ` + listingColumns + ` FROM broker_listings
WHERE status IN ('removal_submitted','pending_verification') AND recheck_after IS NOT NULL AND recheck_after<=?
ORDER BY recheck_after ASC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BrokerListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) CountListingsByStatus(ctx context.Context, profileID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM broker_listings WHERE profile_id=? GROUP BY status`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
