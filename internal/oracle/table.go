package oracle

import (
	"sort"
	"sync"
	"time"
)

// Table is an in-memory process registry. It stands in for the host
// process table when embedding the monitor around simulated tasks and in
// tests.
type Table struct {
	mu      sync.Mutex
	procs   map[int32]int64
	resumes map[int32][]time.Time
	// OnResume, if set, observes every Resume call.
	OnResume func(h Handle, at time.Time)
}

func NewTable(pids ...int32) *Table {
	t := &Table{procs: make(map[int32]int64), resumes: make(map[int32][]time.Time)}
	for _, pid := range pids {
		t.Spawn(pid)
	}
	return t
}

// Spawn marks pid live as a new incarnation.
func (t *Table) Spawn(pid int32) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := time.Now().UnixNano()
	if prev, ok := t.procs[pid]; ok && st <= prev {
		st = prev + 1
	}
	t.procs[pid] = st
	return Handle{PID: pid, StartTime: st}
}

// Kill marks pid dead.
func (t *Table) Kill(pid int32) {
	t.mu.Lock()
	delete(t.procs, pid)
	t.mu.Unlock()
}

func (t *Table) Resolve(pid int32) (Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.procs[pid]
	if !ok {
		return Handle{}, false
	}
	return Handle{PID: pid, StartTime: st}, true
}

func (t *Table) Resume(h Handle) error {
	now := time.Now()
	t.mu.Lock()
	t.resumes[h.PID] = append(t.resumes[h.PID], now)
	hook := t.OnResume
	t.mu.Unlock()
	if hook != nil {
		hook(h, now)
	}
	return nil
}

// Resumes returns the times pid was resumed.
func (t *Table) Resumes(pid int32) []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Time(nil), t.resumes[pid]...)
}

// PIDs lists live pids in ascending order.
func (t *Table) PIDs() []int32 {
	t.mu.Lock()
	out := make([]int32, 0, len(t.procs))
	for pid := range t.procs {
		out = append(out, pid)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Table) Describe() string { return "table" }
