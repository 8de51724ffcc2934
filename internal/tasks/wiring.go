package tasks

import (
	"erasure/internal/plan"
)

// connectorTypes are executed by external connectors (headless browser,
// mailbox, captcha service). Deployments without a connector get a permanent
// failure rather than a silent skip.
var connectorTypes = []plan.TaskType{
	plan.TypeScrapeStatic,
	plan.TypeScrapeRendered,
	plan.TypeFormSubmit,
	plan.TypeEmailSend,
	plan.TypeEmailCheck,
	plan.TypeEmailClickVerify,
	plan.TypeCaptchaSolve,
	plan.TypeDiscoverSearch,
}

// DefaultRegistry wires the built-in executors and marks connector-backed
// types unconfigured. Callers overwrite individual entries as connectors
// come online.
func DefaultRegistry(m *MatchIdentity, b *BrokerUpdateStatus, q *QueueHumanAction, h *HTTPRequest) *Registry {
	r := NewRegistry()
	r.Register(plan.TypeHTTPRequest, h)
	r.Register(plan.TypeWaitDelay, WaitDelay{})
	r.Register(plan.TypeMatchIdentity, m)
	r.Register(plan.TypeBrokerUpdateStatus, b)
	r.Register(plan.TypeQueueHumanAction, q)
	for _, t := range connectorTypes {
		r.Register(t, Unconfigured{Kind: t})
	}
	return r
}
