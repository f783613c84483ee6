package task

import "errors"

// Errors reported synchronously by the monitor operations.
var (
	ErrInvalidParameters     = errors.New("invalid parameters")
	ErrUnknownProcess        = errors.New("unknown process")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrNotRegistered         = errors.New("not registered")
)

// Outcomes delivered to a blocked waiter when its task is retired.
var (
	ErrCancelled   = errors.New("task cancelled")
	ErrProcessGone = errors.New("process exited")
	ErrClosed      = errors.New("monitor closed")
)

// ErrNoCallerIdentity is returned by transports that cannot tell which
// process is calling.
var ErrNoCallerIdentity = errors.New("caller identity unavailable")
