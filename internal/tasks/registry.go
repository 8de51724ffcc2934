// Package tasks holds the executors behind each plan task type. Executors
// receive fully resolved inputs and report classified errors; the runner owns
// retries, approvals, and persistence.
package tasks

import (
	"context"
	"fmt"
	"time"

	"erasure/internal/plan"
)

// Invocation is everything an executor may read: the resolved input, the run
// parameters, accumulated task outputs, and the plan's targets.
type Invocation struct {
	RunID   string
	TaskID  string
	Input   map[string]any
	Params  map[string]any
	State   map[string]any
	Targets map[string]plan.Target
	Now     func() time.Time
}

// Result is an executor's output. When ResumeAt is set the runner parks the
// run instead of continuing, and re-executes the task after that time.
type Result struct {
	Output   map[string]any
	ResumeAt *time.Time
}

type Executor interface {
	Execute(ctx context.Context, inv Invocation) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, inv Invocation) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, inv Invocation) (Result, error) {
	return f(ctx, inv)
}

// Registry maps task types to executors. Lookups of unregistered types fail
// permanently; plans are validated against the closed type set before any
// lookup happens.
type Registry struct {
	executors map[plan.TaskType]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: map[plan.TaskType]Executor{}}
}

func (r *Registry) Register(t plan.TaskType, e Executor) {
	r.executors[t] = e
}

func (r *Registry) Get(t plan.TaskType) (Executor, error) {
	e, ok := r.executors[t]
	if !ok {
		return nil, Permanent("executor_missing", "no executor registered for task type %s", t)
	}
	return e, nil
}

// Unconfigured stands in for connector-backed task types that have no
// connector wired. It fails permanently so runs surface the gap instead of
// retrying into it.
type Unconfigured struct {
	Kind plan.TaskType
}

func (u Unconfigured) Execute(context.Context, Invocation) (Result, error) {
	return Result{}, Permanent("connector_missing", "no connector configured for %s", u.Kind)
}

func stringInput(input map[string]any, key string) (string, error) {
	v, ok := input[key]
	if !ok || v == nil {
		return "", Permanent("input_missing", "required input %q missing", key)
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	if s == "" {
		return "", Permanent("input_missing", "required input %q empty", key)
	}
	return s, nil
}

func optionalString(input map[string]any, key string) string {
	v, ok := input[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func intInput(input map[string]any, key string) (int, bool) {
	switch n := input[key].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func floatInput(input map[string]any, key string) (float64, bool) {
	switch n := input[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
