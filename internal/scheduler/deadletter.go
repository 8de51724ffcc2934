package scheduler

import (
	"sync"
)

// DeadLetter tracks consecutive scan failures per broker. Brokers that keep
// failing get their schedules disabled instead of burning retries forever.
type DeadLetter struct {
	mu        sync.Mutex
	threshold int
	failures  map[string]int
}

func NewDeadLetter(threshold int) *DeadLetter {
	if threshold < 1 {
		threshold = 3
	}
	return &DeadLetter{threshold: threshold, failures: map[string]int{}}
}

// RecordFailure increments the broker's consecutive failure count and
// reports whether the threshold was reached.
func (d *DeadLetter) RecordFailure(brokerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[brokerID]++
	return d.failures[brokerID] >= d.threshold
}

// RecordSuccess resets the broker's count. One good scan clears the slate.
func (d *DeadLetter) RecordSuccess(brokerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failures, brokerID)
}

func (d *DeadLetter) Failures(brokerID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures[brokerID]
}
