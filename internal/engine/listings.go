package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"erasure/internal/domain"
	"erasure/internal/events"
	"erasure/internal/match"
	"erasure/internal/repo"
)

// listingTransitions is the allowed lifecycle graph. Same-status updates are
// always permitted so re-scans can refresh confidence without a transition.
var listingTransitions = map[string][]string{
	domain.ListingFound:               {domain.ListingRemovalSubmitted, domain.ListingManualRequired, domain.ListingRemoved, domain.ListingFailed},
	domain.ListingRemovalSubmitted:    {domain.ListingPendingVerification, domain.ListingRemoved, domain.ListingManualRequired, domain.ListingFailed},
	domain.ListingPendingVerification: {domain.ListingRemoved, domain.ListingRemovalSubmitted, domain.ListingManualRequired, domain.ListingFailed},
	domain.ListingRemoved:             {domain.ListingReappeared},
	domain.ListingReappeared:          {domain.ListingRemovalSubmitted, domain.ListingManualRequired, domain.ListingFailed},
	domain.ListingManualRequired:      {domain.ListingRemovalSubmitted, domain.ListingRemoved, domain.ListingFailed},
	domain.ListingFailed:              {domain.ListingManualRequired},
}

func ensureListingTransition(from, to string) error {
	if from == to {
		return nil
	}
	for _, allowed := range listingTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("listing cannot move from %s to %s", from, to)
}

// RecordMatch persists a confirmed match. Re-discovery of a known URL
// refreshes the row; a URL previously marked removed comes back as
// reappeared.
func (e Engine) RecordMatch(ctx context.Context, brokerID, profileID string, c match.Candidate, confidence float64, matchedFields []string) (string, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	snapshot := marshalJSON(c)
	fields := marshalJSON(matchedFields)

	if c.URL != "" {
		existing, err := e.Repo.FindListingByURL(ctx, tx, brokerID, profileID, c.URL)
		if err == nil {
			existing.Confidence = confidence
			existing.SnapshotJSON = snapshot
			existing.MatchedFieldsJSON = fields
			existing.LastCheckedAt = &now
			if existing.Status == domain.ListingRemoved {
				existing.Status = domain.ListingReappeared
				if err := e.Repo.UpdateListing(ctx, tx, existing); err != nil {
					return "", err
				}
				if err := e.Events.Append(ctx, tx, "listing.reappeared", "listing", existing.ListingID, "system", events.EventPayload{
					"broker_id":  brokerID,
					"confidence": confidence,
				}); err != nil {
					return "", err
				}
			} else if err := e.Repo.UpdateListing(ctx, tx, existing); err != nil {
				return "", err
			}
			return existing.ListingID, tx.Commit()
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
	}

	l := domain.BrokerListing{
		ListingID:         uuid.NewString(),
		BrokerID:          brokerID,
		ProfileID:         profileID,
		Status:            domain.ListingFound,
		ListingURL:        optionalString(c.URL),
		SnapshotJSON:      snapshot,
		MatchedFieldsJSON: fields,
		Confidence:        confidence,
		DiscoveredAt:      now,
		LastCheckedAt:     &now,
	}
	if err := e.Repo.InsertListing(ctx, tx, l); err != nil {
		return "", err
	}
	if err := e.Events.Append(ctx, tx, "listing.found", "listing", l.ListingID, "system", events.EventPayload{
		"broker_id":  brokerID,
		"confidence": confidence,
	}); err != nil {
		return "", err
	}
	return l.ListingID, tx.Commit()
}

// TransitionListing applies one lifecycle step and stamps the timestamps the
// new status implies.
func (e Engine) TransitionListing(ctx context.Context, listingID, status, notes string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	l, err := e.Repo.GetListingTx(ctx, tx, listingID)
	if err != nil {
		return err
	}
	if err := ensureListingTransition(l.Status, status); err != nil {
		return err
	}

	now := e.nowRFC3339()
	prior := l.Status
	l.Status = status
	l.LastCheckedAt = &now
	if notes != "" {
		l.Notes = &notes
	}
	switch status {
	case domain.ListingRemovalSubmitted:
		l.RemovalSentAt = &now
		l.RecheckAfter = optionalString(e.recheckAfter(l.BrokerID))
	case domain.ListingPendingVerification:
		l.RecheckAfter = optionalString(e.recheckAfter(l.BrokerID))
	case domain.ListingRemoved:
		l.VerifiedAt = &now
		l.RecheckAfter = nil
	}

	if err := e.Repo.UpdateListing(ctx, tx, l); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "listing.status", "listing", listingID, "system", events.EventPayload{
		"from": prior,
		"to":   status,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// recheckAfter computes the next verification time from the broker's catalog
// cadence, defaulting to 30 days.
func (e Engine) recheckAfter(brokerID string) string {
	days := 30
	if e.Catalog != nil {
		if b, ok := e.Catalog.Get(brokerID); ok && b.RecheckDays > 0 {
			days = b.RecheckDays
		}
	}
	return e.now().UTC().Add(time.Duration(days) * 24 * time.Hour).Format(time.RFC3339)
}

// EnqueueHumanAction records a manual step. When the action is tied to a
// listing the listing moves to manual_required.
func (e Engine) EnqueueHumanAction(ctx context.Context, listingID, brokerID, actionNeeded, instructions string, priority int) (string, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	q := domain.HumanQueueItem{
		QueueID:      uuid.NewString(),
		ListingID:    optionalString(listingID),
		BrokerID:     brokerID,
		ActionNeeded: actionNeeded,
		Instructions: optionalString(instructions),
		Priority:     priority,
		Status:       "pending",
		CreatedAt:    now,
	}
	if err := e.Repo.InsertQueueItem(ctx, tx, q); err != nil {
		return "", err
	}

	if listingID != "" {
		l, err := e.Repo.GetListingTx(ctx, tx, listingID)
		if err != nil {
			return "", err
		}
		if l.Status != domain.ListingManualRequired {
			if err := ensureListingTransition(l.Status, domain.ListingManualRequired); err == nil {
				l.Status = domain.ListingManualRequired
				l.LastCheckedAt = &now
				if err := e.Repo.UpdateListing(ctx, tx, l); err != nil {
					return "", err
				}
			}
		}
	}

	if err := e.Events.Append(ctx, tx, "queue.enqueued", "queue_item", q.QueueID, "system", events.EventPayload{
		"broker_id":     brokerID,
		"action_needed": actionNeeded,
	}); err != nil {
		return "", err
	}
	return q.QueueID, tx.Commit()
}

// CompleteQueueItem marks a manual step done, exactly once.
func (e Engine) CompleteQueueItem(ctx context.Context, queueID, notes, actorID string) (domain.HumanQueueItem, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.HumanQueueItem{}, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	ok, err := e.Repo.CompleteQueueItem(ctx, tx, queueID, notes, now)
	if err != nil {
		return domain.HumanQueueItem{}, err
	}
	if !ok {
		return domain.HumanQueueItem{}, fmt.Errorf("queue item %s not pending", queueID)
	}
	if err := e.Events.Append(ctx, tx, "queue.completed", "queue_item", queueID, actorID, nil); err != nil {
		return domain.HumanQueueItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.HumanQueueItem{}, err
	}
	return e.Repo.GetQueueItem(ctx, queueID)
}
