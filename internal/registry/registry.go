package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrExists is returned by Insert when the pid already has a slot.
var ErrExists = errors.New("pid already registered")

// Handle addresses one slot. Gen is unique per insertion, so a handle
// kept after its slot was removed never resolves to a later slot that
// happens to reuse the same pid.
type Handle struct {
	PID int32
	Gen uint64
}

func (h Handle) String() string { return fmt.Sprintf("%d#%d", h.PID, h.Gen) }

// IsZero reports whether h was never issued.
func (h Handle) IsZero() bool { return h.Gen == 0 }

type slot[V any] struct {
	gen uint64
	val V
}

// Registry is a pid-keyed slot table safe for concurrent use.
// The lock is held only for the map operation itself.
type Registry[V any] struct {
	mu    sync.RWMutex
	slots map[int32]slot[V]
	gen   uint64
}

func New[V any]() *Registry[V] {
	return &Registry[V]{slots: make(map[int32]slot[V])}
}

// Insert adds v under pid. The duplicate check and the insertion are one
// critical section.
func (r *Registry[V]) Insert(pid int32, v V) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[pid]; ok {
		return Handle{}, fmt.Errorf("%w: %d", ErrExists, pid)
	}
	r.gen++
	r.slots[pid] = slot[V]{gen: r.gen, val: v}
	return Handle{PID: pid, Gen: r.gen}, nil
}

// Get resolves a handle. It fails once the slot has been removed.
func (r *Registry[V]) Get(h Handle) (V, bool) {
	r.mu.RLock()
	s, ok := r.slots[h.PID]
	r.mu.RUnlock()
	if !ok || s.gen != h.Gen {
		var zero V
		return zero, false
	}
	return s.val, true
}

// Lookup finds the current slot for pid.
func (r *Registry[V]) Lookup(pid int32) (Handle, V, bool) {
	r.mu.RLock()
	s, ok := r.slots[pid]
	r.mu.RUnlock()
	if !ok {
		var zero V
		return Handle{}, zero, false
	}
	return Handle{PID: pid, Gen: s.gen}, s.val, true
}

// Remove deletes the slot addressed by h. It returns false when the slot
// is already gone or was replaced, so concurrent removers agree on a
// single winner.
func (r *Registry[V]) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[h.PID]
	if !ok || s.gen != h.Gen {
		return false
	}
	delete(r.slots, h.PID)
	return true
}

// Len returns the number of slots.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// Entry is one element of a snapshot.
type Entry[V any] struct {
	Handle Handle
	Value  V
}

// Snapshot copies the slots ordered by pid.
func (r *Registry[V]) Snapshot() []Entry[V] {
	r.mu.RLock()
	out := make([]Entry[V], 0, len(r.slots))
	for pid, s := range r.slots {
		out = append(out, Entry[V]{Handle: Handle{PID: pid, Gen: s.gen}, Value: s.val})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Handle.PID < out[j].Handle.PID })
	return out
}

// Range calls fn for every slot present when Range started, without
// holding the lock during fn. fn may remove any slot, including the one
// it is visiting; entries removed by someone else before being visited
// are skipped. Returning false stops the traversal.
func (r *Registry[V]) Range(fn func(h Handle, v V) bool) {
	for _, e := range r.Snapshot() {
		if _, ok := r.Get(e.Handle); !ok {
			continue
		}
		if !fn(e.Handle, e.Value) {
			return
		}
	}
}
