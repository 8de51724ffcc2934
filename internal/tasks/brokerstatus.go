package tasks

import (
	"context"
)

// StatusSink applies a listing lifecycle transition.
type StatusSink interface {
	TransitionListing(ctx context.Context, listingID, status, notes string) error
}

// BrokerUpdateStatus advances a listing through its removal lifecycle, e.g.
// found -> removal_submitted after a form submission.
type BrokerUpdateStatus struct {
	Listings StatusSink
}

func (b *BrokerUpdateStatus) Execute(ctx context.Context, inv Invocation) (Result, error) {
	listingID, err := stringInput(inv.Input, "listing_id")
	if err != nil {
		return Result{}, err
	}
	status, err := stringInput(inv.Input, "status")
	if err != nil {
		return Result{}, err
	}
	notes := optionalString(inv.Input, "notes")

	if err := b.Listings.TransitionListing(ctx, listingID, status, notes); err != nil {
		return Result{}, Permanent("listing_transition", "updating listing %s: %v", listingID, err)
	}
	return Result{Output: map[string]any{"listing_id": listingID, "status": status}}, nil
}
