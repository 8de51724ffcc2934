package tasks

import (
	"errors"
	"fmt"
)

// ExecError is a classified task failure. Transient failures are retried when
// the task is also idempotent; permanent failures fail the task immediately.
type ExecError struct {
	Code      string
	Message   string
	Transient bool
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func Transient(code, format string, args ...any) *ExecError {
	return &ExecError{Code: code, Message: fmt.Sprintf(format, args...), Transient: true}
}

func Permanent(code, format string, args ...any) *ExecError {
	return &ExecError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsTransient reports whether an executor error may be retried. Unclassified
// errors are treated as permanent.
func IsTransient(err error) bool {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Transient
	}
	return false
}

// Code extracts the machine error code, defaulting to task_error.
func Code(err error) string {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return "task_error"
}

var transientHTTPStatuses = map[int]bool{
	408: true, 409: true, 425: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
}

// TransientHTTPStatus reports whether an HTTP status is worth retrying.
func TransientHTTPStatus(status int) bool {
	return transientHTTPStatuses[status]
}
