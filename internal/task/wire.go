package task

import "errors"

// Error kinds carried by the HTTP API.
const (
	KindInvalidParameters     = "invalid_parameters"
	KindUnknownProcess        = "unknown_process"
	KindDuplicateRegistration = "duplicate_registration"
	KindNotRegistered         = "not_registered"
	KindCancelled             = "cancelled"
	KindProcessGone           = "process_gone"
	KindClosed                = "closed"
	KindNoCallerIdentity      = "no_caller_identity"
	KindInternal              = "internal"
)

var kinds = []struct {
	kind string
	err  error
}{
	{KindInvalidParameters, ErrInvalidParameters},
	{KindUnknownProcess, ErrUnknownProcess},
	{KindDuplicateRegistration, ErrDuplicateRegistration},
	{KindNotRegistered, ErrNotRegistered},
	{KindCancelled, ErrCancelled},
	{KindProcessGone, ErrProcessGone},
	{KindClosed, ErrClosed},
	{KindNoCallerIdentity, ErrNoCallerIdentity},
}

// KindOf classifies err; unknown errors are KindInternal.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// RemoteError is an error reported by a remote monitor. It unwraps to the
// matching sentinel so callers can use errors.Is across the wire.
type RemoteError struct {
	Kind    string
	Message string
	err     error
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error { return e.err }

// FromKind rebuilds an error received with kind and message.
func FromKind(kind, msg string) error {
	re := &RemoteError{Kind: kind, Message: msg}
	for _, k := range kinds {
		if k.kind == kind {
			re.err = k.err
			break
		}
	}
	if re.Message == "" {
		if re.err != nil {
			re.Message = re.err.Error()
		} else {
			re.Message = kind
		}
	}
	return re
}
