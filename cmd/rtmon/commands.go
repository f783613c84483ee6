package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/loykin/rtmon/pkg/client"
)

type command struct {
	out io.Writer
}

// daemonClient is the part of the daemon API the CLI uses; both the
// socket and the HTTP client satisfy it.
type daemonClient interface {
	Register(ctx context.Context, p client.Params) error
	Cancel(ctx context.Context, pid int32) error
	List(ctx context.Context) ([]client.TaskInfo, error)
	Status(ctx context.Context, pid int32) (client.TaskInfo, error)
	Close() error
}

type httpClient struct{ *client.Client }

func (httpClient) Close() error { return nil }

func openClient(ctx context.Context, f ConnFlags) (daemonClient, error) {
	if f.APIUrl != "" {
		c := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
		if !c.IsReachable(ctx) {
			return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'rtmon serve'", f.APIUrl)
		}
		return httpClient{c}, nil
	}
	sc, err := client.Dial(ctx, f.Socket)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable: %w", err)
	}
	return sc, nil
}

func withTimeout(f ConnFlags) (context.Context, context.CancelFunc) {
	d := f.APITimeout
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}

// requirePID resolves --pid or --pidfile and rejects pid 0, which on the
// socket would name the short-lived CLI process itself.
func requirePID(pid int32, pidFile string) (int32, error) {
	if pidFile != "" {
		p, err := readPIDFile(pidFile)
		if err != nil {
			return 0, err
		}
		pid = p
	}
	if pid <= 0 {
		return 0, fmt.Errorf("--pid must be positive, got %d", pid)
	}
	return pid, nil
}

func (c *command) Set(f SetFlags) error {
	pid, err := requirePID(f.PID, f.PIDFile)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(f.ConnFlags)
	defer cancel()
	cl, err := openClient(ctx, f.ConnFlags)
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()
	if err := cl.Register(ctx, client.Params{PID: pid, C: f.C, T: f.T}); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "registered pid %d (C=%dms T=%dms)\n", pid, f.C, f.T)
	return nil
}

func (c *command) Cancel(f PIDFlags) error {
	pid, err := requirePID(f.PID, f.PIDFile)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(f.ConnFlags)
	defer cancel()
	cl, err := openClient(ctx, f.ConnFlags)
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()
	if err := cl.Cancel(ctx, pid); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "cancelled pid %d\n", pid)
	return nil
}

func (c *command) List(f ListFlags) error {
	ctx, cancel := withTimeout(f.ConnFlags)
	defer cancel()
	cl, err := openClient(ctx, f.ConnFlags)
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()
	tasks, err := cl.List(ctx)
	if err != nil {
		return err
	}
	if f.JSON {
		if tasks == nil {
			tasks = []client.TaskInfo{}
		}
		printJSON(c.out, tasks)
		return nil
	}
	printTasks(c.out, tasks)
	return nil
}

func (c *command) Status(f PIDFlags) error {
	pid, err := requirePID(f.PID, f.PIDFile)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(f.ConnFlags)
	defer cancel()
	cl, err := openClient(ctx, f.ConnFlags)
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()
	info, err := cl.Status(ctx, pid)
	if err != nil {
		return err
	}
	printJSON(c.out, info)
	return nil
}

// Tick registers the calling process, waits Count periods and cancels
// itself. Count <= 0 runs until ctx is done.
func (c *command) Tick(ctx context.Context, f TickFlags) error {
	sc, err := client.Dial(ctx, f.Socket)
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	defer func() { _ = sc.Close() }()

	if err := sc.SetSelf(ctx, f.C, f.T); err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sc.Cancel(cctx, 0); err != nil && !errors.Is(err, client.ErrNotRegistered) {
			_, _ = fmt.Fprintf(c.out, "cancel: %v\n", err)
		}
	}()

	var last time.Time
	for i := 0; f.Count <= 0 || i < f.Count; i++ {
		n, err := sc.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		now := time.Now()
		var gap time.Duration
		if !last.IsZero() {
			gap = now.Sub(last)
		}
		last = now
		info, err := sc.Status(ctx, 0)
		if err != nil {
			return err
		}
		var late time.Duration
		if !info.LastWake.IsZero() {
			late = now.Sub(info.LastWake)
		}
		_, _ = fmt.Fprintf(c.out, "period %d lateness=%s interval=%s overruns=%d\n",
			n, late.Round(time.Microsecond), gap.Round(time.Microsecond), info.Overruns)
		if f.Work > 0 {
			busy(f.Work)
		}
	}
	return nil
}

// busy spins for d to simulate a task consuming its budget.
func busy(d time.Duration) {
	end := time.Now().Add(d)
	for time.Now().Before(end) {
	}
}
