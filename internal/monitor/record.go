package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/loykin/rtmon/internal/oracle"
	"github.com/loykin/rtmon/internal/task"
	"github.com/loykin/rtmon/internal/timer"
)

// record is the bookkeeping for one monitored task. It and its timer are
// owned by a single registry slot.
type record struct {
	params       task.Params
	proc         oracle.Handle
	registeredAt time.Time
	timer        *timer.Periodic

	mu           sync.Mutex
	period       uint64
	lastWake     time.Time
	wake         chan struct{} // closed at the next boundary, then replaced
	err          error         // terminal outcome once retired
	seenOverruns uint64
}

func newRecord(p task.Params, proc oracle.Handle, now time.Time) *record {
	return &record{
		params:       p,
		proc:         proc,
		registeredAt: now,
		wake:         make(chan struct{}),
	}
}

// advance delivers one period boundary to current waiters.
func (r *record) advance(now time.Time) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.period
	}
	r.period++
	r.lastWake = now
	close(r.wake)
	r.wake = make(chan struct{})
	return r.period
}

// retire releases every waiter with err. Only the first call has effect.
func (r *record) retire(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false
	}
	r.err = err
	close(r.wake)
	return true
}

// wait blocks until a boundary later than the one current at entry.
func (r *record) wait(ctx context.Context) (uint64, error) {
	r.mu.Lock()
	if r.err != nil {
		r.mu.Unlock()
		return 0, r.err
	}
	seen := r.period
	ch := r.wake
	r.mu.Unlock()

	for {
		select {
		case <-ch:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		r.mu.Lock()
		switch {
		case r.period > seen:
			p := r.period
			r.mu.Unlock()
			return p, nil
		case r.err != nil:
			err := r.err
			r.mu.Unlock()
			return 0, err
		}
		ch = r.wake
		r.mu.Unlock()
	}
}

// overrunDelta returns boundaries skipped since the last call.
func (r *record) overrunDelta() uint64 {
	cur := r.timer.Overruns()
	r.mu.Lock()
	defer r.mu.Unlock()
	d := cur - r.seenOverruns
	r.seenOverruns = cur
	return d
}

func (r *record) info() task.Info {
	r.mu.Lock()
	period, last := r.period, r.lastWake
	r.mu.Unlock()
	return task.Info{
		PID:          r.params.PID,
		C:            r.params.C,
		T:            r.params.T,
		State:        r.timer.State().String(),
		Period:       period,
		Overruns:     r.timer.Overruns(),
		NextDeadline: r.timer.Deadline(),
		LastWake:     last,
		RegisteredAt: r.registeredAt,
	}
}
