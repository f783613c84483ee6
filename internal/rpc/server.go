package rpc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"

	"github.com/loykin/rtmon/internal/monitor"
	"github.com/loykin/rtmon/internal/task"
)

// Server exposes the monitor as JSON-RPC 2.0 over a Unix socket, one
// newline-framed stream per connection. The calling process is identified
// by the socket's peer credentials, never by request fields.
type Server struct {
	mon    *monitor.Monitor
	logger *slog.Logger
	path   string
	mode   os.FileMode

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer prepares a server for the socket at path. mode 0 keeps the
// permissions the listener was created with.
func NewServer(mon *monitor.Monitor, path string, mode os.FileMode, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		mon:    mon,
		logger: logger.With("component", "rpc"),
		path:   path,
		mode:   mode,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start listens on the socket path, replacing a stale socket file, and
// serves connections in the background.
func (s *Server) Start() error {
	if err := removeStaleSocket(s.path); err != nil {
		return err
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.path, err)
	}
	if s.mode != 0 {
		if err := os.Chmod(s.path, s.mode); err != nil {
			_ = ln.Close()
			return fmt.Errorf("chmod %s: %w", s.path, err)
		}
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Serve(ln)
	}()
	s.logger.Info("control socket listening", "path", s.path, "mode", fmt.Sprintf("%#o", s.mode))
	return nil
}

// Serve accepts connections on ln until Close.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return net.ErrClosed
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	c := caller{}
	c.pid, c.err = peerPID(conn)
	if c.err != nil {
		s.logger.Debug("peer credentials unavailable", "error", c.err)
	}
	srv := jrpc2.NewServer(s.methods(c), &jrpc2.ServerOptions{Concurrency: 4})
	srv.Start(channel.Line(conn, conn))
	if err := srv.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("connection ended", "peer", c.pid, "error", err)
	}
}

// Close stops accepting, drops open connections (releasing blocked waits)
// and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
	if s.path != "" {
		if rerr := os.Remove(s.path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) && err == nil {
			err = rerr
		}
	}
	return err
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = c.Close()
}

// caller is the identity of the process on one connection.
type caller struct {
	pid int32
	err error
}

func (c caller) resolve(pid int32) (int32, error) {
	switch {
	case pid > 0:
		return pid, nil
	case pid < 0:
		return 0, fmt.Errorf("%w: pid %d", task.ErrInvalidParameters, pid)
	case c.err != nil:
		return 0, fmt.Errorf("%w: %v", task.ErrNoCallerIdentity, c.err)
	}
	return c.pid, nil
}

func (s *Server) methods(c caller) handler.Map {
	return handler.Map{
		MethodSet:    handler.New(func(_ context.Context, p *SetParams) (*EmptyResult, error) { return s.set(c, p) }),
		MethodCancel: handler.New(func(_ context.Context, p *PIDParams) (*EmptyResult, error) { return s.cancel(c, p) }),
		MethodWait:   handler.New(func(ctx context.Context) (*WaitResult, error) { return s.wait(ctx, c) }),
		MethodList:   handler.New(s.list),
		MethodStatus: handler.New(func(_ context.Context, p *PIDParams) (*task.Info, error) { return s.status(c, p) }),
	}
}

func (s *Server) set(c caller, p *SetParams) (*EmptyResult, error) {
	pid, err := c.resolve(p.PID)
	if err != nil {
		return nil, toRPCError(err)
	}
	if err := s.mon.Register(task.Params{PID: pid, C: p.C, T: p.T}); err != nil {
		return nil, toRPCError(err)
	}
	return &EmptyResult{}, nil
}

func (s *Server) cancel(c caller, p *PIDParams) (*EmptyResult, error) {
	pid, err := c.resolve(p.PID)
	if err != nil {
		return nil, toRPCError(err)
	}
	if err := s.mon.Cancel(pid); err != nil {
		return nil, toRPCError(err)
	}
	return &EmptyResult{}, nil
}

func (s *Server) wait(ctx context.Context, c caller) (*WaitResult, error) {
	if c.err != nil {
		return nil, toRPCError(fmt.Errorf("%w: %v", task.ErrNoCallerIdentity, c.err))
	}
	n, err := s.mon.Wait(ctx, c.pid)
	if err != nil {
		return nil, toRPCError(err)
	}
	return &WaitResult{Period: n}, nil
}

func (s *Server) list(_ context.Context) (*ListResult, error) {
	return &ListResult{Tasks: s.mon.List()}, nil
}

func (s *Server) status(c caller, p *PIDParams) (*task.Info, error) {
	pid, err := c.resolve(p.PID)
	if err != nil {
		return nil, toRPCError(err)
	}
	info, err := s.mon.Status(pid)
	if err != nil {
		return nil, toRPCError(err)
	}
	return &info, nil
}

// removeStaleSocket deletes a leftover socket file; any other file type at
// path is an error.
func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	return os.Remove(path)
}
