package rpc

import (
	"errors"

	"github.com/creachadair/jrpc2"

	"github.com/loykin/rtmon/internal/task"
)

// JSON-RPC error codes reported by the control socket.
const (
	CodeInvalidParameters     = jrpc2.Code(-32010)
	CodeUnknownProcess        = jrpc2.Code(-32011)
	CodeDuplicateRegistration = jrpc2.Code(-32012)
	CodeNotRegistered         = jrpc2.Code(-32013)
	CodeCancelled             = jrpc2.Code(-32014)
	CodeProcessGone           = jrpc2.Code(-32015)
	CodeClosed                = jrpc2.Code(-32016)
	CodeNoCallerIdentity      = jrpc2.Code(-32017)
)

var codes = []struct {
	code jrpc2.Code
	err  error
}{
	{CodeInvalidParameters, task.ErrInvalidParameters},
	{CodeUnknownProcess, task.ErrUnknownProcess},
	{CodeDuplicateRegistration, task.ErrDuplicateRegistration},
	{CodeNotRegistered, task.ErrNotRegistered},
	{CodeCancelled, task.ErrCancelled},
	{CodeProcessGone, task.ErrProcessGone},
	{CodeClosed, task.ErrClosed},
	{CodeNoCallerIdentity, task.ErrNoCallerIdentity},
}

// toRPCError maps monitor errors onto JSON-RPC errors with stable codes.
func toRPCError(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return &jrpc2.Error{Code: c.code, Message: err.Error()}
		}
	}
	return err
}

// FromRPCError turns an error returned by a jrpc2 client call back into
// one that matches the monitor's sentinel errors.
func FromRPCError(err error) error {
	var je *jrpc2.Error
	if !errors.As(err, &je) {
		return err
	}
	for _, c := range codes {
		if je.Code == c.code {
			return task.FromKind(task.KindOf(c.err), je.Message)
		}
	}
	return err
}
