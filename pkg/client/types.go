package client

import "github.com/loykin/rtmon/internal/task"

// Params describe a periodic task: C is the execution budget and T the
// period, both in milliseconds.
type Params = task.Params

// TaskInfo is the daemon's view of one monitored task.
type TaskInfo = task.Info

// Errors returned by both clients. Remote failures wrap these, so callers
// can test with errors.Is.
var (
	ErrInvalidParameters     = task.ErrInvalidParameters
	ErrUnknownProcess        = task.ErrUnknownProcess
	ErrDuplicateRegistration = task.ErrDuplicateRegistration
	ErrNotRegistered         = task.ErrNotRegistered
	ErrCancelled             = task.ErrCancelled
	ErrProcessGone           = task.ErrProcessGone
	ErrClosed                = task.ErrClosed
	ErrNoCallerIdentity      = task.ErrNoCallerIdentity
)

// ErrorResponse is the JSON body of a failed HTTP call.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// HealthResponse is returned by the daemon's health endpoint.
type HealthResponse struct {
	OK    bool `json:"ok"`
	Tasks int  `json:"tasks"`
}
