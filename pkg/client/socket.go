package client

import (
	"context"
	"fmt"
	"net"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"

	"github.com/loykin/rtmon/internal/rpc"
)

// DefaultSocket is the control socket path used when none is configured.
const DefaultSocket = "/tmp/rtmon.sock"

// SocketClient talks JSON-RPC to the daemon's control socket. The daemon
// identifies the caller by the socket's peer credentials, so the Self
// methods act on the process that owns the connection.
type SocketClient struct {
	cli *jrpc2.Client
}

// Dial connects to the control socket at path.
func Dial(ctx context.Context, path string) (*SocketClient, error) {
	if path == "" {
		path = DefaultSocket
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return &SocketClient{cli: jrpc2.NewClient(channel.Line(conn, conn), nil)}, nil
}

// Close closes the connection. Outstanding waits fail.
func (s *SocketClient) Close() error { return s.cli.Close() }

// SetSelf registers the calling process with budget c and period t.
func (s *SocketClient) SetSelf(ctx context.Context, c, t int32) error {
	return s.Register(ctx, Params{C: c, T: t})
}

// Register registers p.PID; a zero PID means the calling process.
func (s *SocketClient) Register(ctx context.Context, p Params) error {
	return s.call(ctx, rpc.MethodSet, rpc.SetParams{PID: p.PID, C: p.C, T: p.T}, nil)
}

// Cancel stops monitoring pid; zero means the calling process.
func (s *SocketClient) Cancel(ctx context.Context, pid int32) error {
	return s.call(ctx, rpc.MethodCancel, rpc.PIDParams{PID: pid}, nil)
}

// Wait blocks until the calling process's next period starts and returns
// its period number.
func (s *SocketClient) Wait(ctx context.Context) (uint64, error) {
	var r rpc.WaitResult
	if err := s.call(ctx, rpc.MethodWait, nil, &r); err != nil {
		return 0, err
	}
	return r.Period, nil
}

// List returns every monitored task.
func (s *SocketClient) List(ctx context.Context) ([]TaskInfo, error) {
	var r rpc.ListResult
	if err := s.call(ctx, rpc.MethodList, nil, &r); err != nil {
		return nil, err
	}
	return r.Tasks, nil
}

// Status returns one task; zero means the calling process.
func (s *SocketClient) Status(ctx context.Context, pid int32) (TaskInfo, error) {
	var info TaskInfo
	err := s.call(ctx, rpc.MethodStatus, rpc.PIDParams{PID: pid}, &info)
	return info, err
}

func (s *SocketClient) call(ctx context.Context, method string, params, out any) error {
	rsp, err := s.cli.Call(ctx, method, params)
	if err != nil {
		return rpc.FromRPCError(err)
	}
	if out == nil {
		return nil
	}
	return rsp.UnmarshalResult(out)
}
