package tasks

import (
	"context"
	"time"
)

// inlineDelayMax is the longest delay served by sleeping in place. Anything
// longer parks the run and releases the worker.
const inlineDelayMax = 300 * time.Second

// WaitDelay pauses a plan, typically between a removal submission and its
// verification scrape.
type WaitDelay struct{}

func (WaitDelay) Execute(ctx context.Context, inv Invocation) (Result, error) {
	seconds, ok := intInput(inv.Input, "delay_seconds")
	if !ok || seconds < 0 {
		return Result{}, Permanent("input_missing", "delay_seconds must be a non-negative number")
	}
	delay := time.Duration(seconds) * time.Second

	if delay > inlineDelayMax {
		resume := inv.Now().Add(delay)
		return Result{
			Output:   map[string]any{"deferred": true, "resume_at": resume.UTC().Format(time.RFC3339)},
			ResumeAt: &resume,
		}, nil
	}

	select {
	case <-ctx.Done():
		return Result{}, Transient("canceled", "delay interrupted: %v", ctx.Err())
	case <-time.After(delay):
	}
	return Result{Output: map[string]any{"waited_seconds": seconds}}, nil
}
