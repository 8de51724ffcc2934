package tasks

import (
	"context"
)

// QueueSink enqueues work that needs a person: captchas behind logins,
// mail-in removals, phone verifications.
type QueueSink interface {
	EnqueueHumanAction(ctx context.Context, listingID, brokerID, actionNeeded, instructions string, priority int) (queueID string, err error)
}

// QueueHumanAction records a manual step and succeeds immediately; the run
// does not wait for the person.
type QueueHumanAction struct {
	Queue QueueSink
}

func (q *QueueHumanAction) Execute(ctx context.Context, inv Invocation) (Result, error) {
	brokerID := optionalString(inv.Input, "broker_id")
	if brokerID == "" {
		brokerID = optionalString(inv.Params, "broker_id")
	}
	if brokerID == "" {
		return Result{}, Permanent("input_missing", "broker_id required")
	}
	action, err := stringInput(inv.Input, "action_needed")
	if err != nil {
		return Result{}, err
	}
	priority, _ := intInput(inv.Input, "priority")

	queueID, err := q.Queue.EnqueueHumanAction(ctx,
		optionalString(inv.Input, "listing_id"), brokerID, action,
		optionalString(inv.Input, "instructions"), priority)
	if err != nil {
		return Result{}, Transient("queue_store", "enqueueing action: %v", err)
	}
	return Result{Output: map[string]any{"queue_id": queueID, "action_needed": action}}, nil
}
