package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/rtmon/internal/history"
	"github.com/loykin/rtmon/internal/metrics"
	"github.com/loykin/rtmon/internal/oracle"
	"github.com/loykin/rtmon/internal/registry"
	"github.com/loykin/rtmon/internal/task"
	"github.com/loykin/rtmon/internal/timer"
)

// Retirement reasons, used for logs, metrics and history.
const (
	ReasonCancelled = "cancelled"
	ReasonExited    = "exited"
	ReasonReaped    = "reaped"
	ReasonShutdown  = "shutdown"
)

// Monitor registers periodic tasks, wakes them every period and retires
// them when they are cancelled or their process goes away.
type Monitor struct {
	oracle oracle.Oracle
	reg    *registry.Registry[*record]
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	hist   *history.Dispatcher
}

// New creates a monitor backed by o. A nil logger falls back to slog.Default.
func New(o oracle.Oracle, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		oracle: o,
		reg:    registry.New[*record](),
		logger: logger.With("component", "monitor"),
	}
}

// SetHistorySinks configures lifecycle history sinks. Events are delivered
// asynchronously. Passing no sinks disables history.
func (m *Monitor) SetHistorySinks(sinks ...history.Sink) {
	var d *history.Dispatcher
	if len(sinks) > 0 {
		d = history.NewDispatcher(m.logger, history.DefaultQueueSize, sinks...)
	}
	m.mu.Lock()
	old := m.hist
	m.hist = d
	m.mu.Unlock()
	if old != nil {
		ctx, cancel := context.WithTimeout(context.Background(), history.DefaultSendTimeout)
		defer cancel()
		_ = old.Close(ctx)
	}
}

// Register starts monitoring p.PID with budget p.C and period p.T. The
// first wake-up is one period from now.
func (m *Monitor) Register(p task.Params) error {
	if err := p.Validate(); err != nil {
		metrics.IncRegistration("invalid")
		return err
	}
	proc, ok := m.oracle.Resolve(p.PID)
	if !ok {
		metrics.IncRegistration("unknown_process")
		return fmt.Errorf("%w: pid %d", task.ErrUnknownProcess, p.PID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return task.ErrClosed
	}

	rec := newRecord(p, proc, time.Now())
	var h registry.Handle
	rec.timer = timer.New(p.Period(),
		func(deadline time.Time) bool { return m.fire(h, deadline) },
		func() { m.expire(h, rec) },
	)
	h, err := m.reg.Insert(p.PID, rec)
	if err != nil {
		if errors.Is(err, registry.ErrExists) {
			metrics.IncRegistration("duplicate")
			return fmt.Errorf("%w: pid %d", task.ErrDuplicateRegistration, p.PID)
		}
		return err
	}
	rec.timer.Start()

	metrics.IncRegistration("ok")
	metrics.SetActive(m.reg.Len())
	m.publishLocked(history.EventRegistered, rec, "")
	m.logger.Info("task registered", "pid", p.PID, "c_ms", p.C, "t_ms", p.T, "proc", proc.String())
	return nil
}

// Cancel stops monitoring pid. It returns once no firing for pid is in
// progress. Waiters blocked on pid are released with task.ErrCancelled.
func (m *Monitor) Cancel(pid int32) error {
	h, rec, ok := m.reg.Lookup(pid)
	if !ok || !rec.timer.Stop() {
		// a lost claim means the firing path already retired the task
		metrics.IncCancel("not_registered")
		return fmt.Errorf("%w: pid %d", task.ErrNotRegistered, pid)
	}
	m.retire(h, rec, task.ErrCancelled, history.EventCancelled, ReasonCancelled)
	metrics.IncCancel("ok")
	return nil
}

// Wait blocks the caller until the next period boundary of its own task
// and returns the boundary number. It never times out; ctx covers the
// caller going away.
func (m *Monitor) Wait(ctx context.Context, pid int32) (uint64, error) {
	_, rec, ok := m.reg.Lookup(pid)
	if !ok {
		metrics.IncWait("not_registered")
		return 0, fmt.Errorf("%w: pid %d", task.ErrNotRegistered, pid)
	}
	n, err := rec.wait(ctx)
	metrics.IncWait(waitResult(err))
	return n, err
}

// List reports every live task. Tasks whose process is gone are retired
// on the way and left out.
func (m *Monitor) List() []task.Info {
	entries := m.reg.Snapshot()
	out := make([]task.Info, 0, len(entries))
	for _, e := range entries {
		rec := e.Value
		if _, alive := oracle.Alive(m.oracle, rec.proc); !alive {
			if rec.timer.Stop() {
				m.retire(e.Handle, rec, task.ErrProcessGone, history.EventReaped, ReasonReaped)
			}
			continue
		}
		if rec.timer.State() == timer.StateRetired {
			continue
		}
		out = append(out, rec.info())
	}
	return out
}

// Status reports a single task.
func (m *Monitor) Status(pid int32) (task.Info, error) {
	_, rec, ok := m.reg.Lookup(pid)
	if !ok || rec.timer.State() == timer.StateRetired {
		return task.Info{}, fmt.Errorf("%w: pid %d", task.ErrNotRegistered, pid)
	}
	return rec.info(), nil
}

// Len returns the number of registry slots.
func (m *Monitor) Len() int { return m.reg.Len() }

// Shutdown retires every task, releases their waiters with task.ErrClosed
// and flushes history. Later registrations fail with task.ErrClosed.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	n := 0
	m.reg.Range(func(h registry.Handle, rec *record) bool {
		if rec.timer.Stop() {
			m.retire(h, rec, task.ErrClosed, history.EventShutdown, ReasonShutdown)
			n++
		}
		return true
	})
	m.logger.Info("monitor shut down", "retired", n)

	m.mu.Lock()
	d := m.hist
	m.hist = nil
	m.mu.Unlock()
	return d.Close(ctx)
}

// fire runs on the timer goroutine once per deadline.
func (m *Monitor) fire(h registry.Handle, deadline time.Time) bool {
	rec, ok := m.reg.Get(h)
	if !ok {
		return false
	}
	if _, alive := oracle.Alive(m.oracle, rec.proc); !alive {
		return false
	}
	if err := m.oracle.Resume(rec.proc); err != nil {
		m.logger.Warn("resume failed", "pid", h.PID, "error", err)
	}
	now := time.Now()
	n := rec.advance(now)
	metrics.ObserveWakeup(now.Sub(deadline).Seconds())
	if d := rec.overrunDelta(); d > 0 {
		metrics.AddOverruns(d)
		m.logger.Warn("missed periods", "pid", h.PID, "skipped", d)
	}
	m.logger.Debug("period boundary", "pid", h.PID, "period", n, "late", now.Sub(deadline))
	return true
}

// expire runs once when a firing found the process dead.
func (m *Monitor) expire(h registry.Handle, rec *record) {
	m.retire(h, rec, task.ErrProcessGone, history.EventRetired, ReasonExited)
}

func (m *Monitor) retire(h registry.Handle, rec *record, cause error, evt history.EventType, reason string) {
	rec.retire(cause)
	m.publish(evt, rec, reason)
	// removal comes last: an empty registry means every retirement is published
	m.reg.Remove(h)
	metrics.IncRetirement(reason)
	metrics.SetActive(m.reg.Len())
	m.logger.Info("task retired", "pid", h.PID, "reason", reason, "period", rec.info().Period)
}

func (m *Monitor) publish(evt history.EventType, rec *record, reason string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.publishLocked(evt, rec, reason)
}

func (m *Monitor) publishLocked(evt history.EventType, rec *record, reason string) {
	if m.hist == nil {
		return
	}
	inf := rec.info()
	m.hist.Publish(history.NewEvent(evt, history.Task{
		PID:      inf.PID,
		C:        inf.C,
		T:        inf.T,
		Periods:  inf.Period,
		Overruns: inf.Overruns,
		Reason:   reason,
	}))
}

func waitResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, task.ErrCancelled):
		return "cancelled"
	case errors.Is(err, task.ErrProcessGone):
		return "process_gone"
	case errors.Is(err, task.ErrClosed):
		return "closed"
	default:
		return "aborted"
	}
}
