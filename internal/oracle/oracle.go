package oracle

import "fmt"

// Handle identifies one incarnation of a process. StartTime distinguishes a
// process from a later one that reuses its pid. Its unit is up to the
// oracle; zero means unknown and is not compared.
type Handle struct {
	PID       int32 `json:"pid"`
	StartTime int64 `json:"start_time,omitempty"`
}

func (h Handle) String() string { return fmt.Sprintf("pid:%d@%d", h.PID, h.StartTime) }

// Same reports whether two handles denote the same incarnation.
func (h Handle) Same(o Handle) bool {
	if h.PID != o.PID {
		return false
	}
	if h.StartTime == 0 || o.StartTime == 0 {
		return true
	}
	return h.StartTime == o.StartTime
}

// Oracle answers liveness questions about processes and resumes them.
// Implementations must be safe for concurrent use.
type Oracle interface {
	// Resolve returns a handle when pid denotes a live process.
	Resolve(pid int32) (Handle, bool)
	// Resume wakes a process that suspended itself waiting for its period.
	Resume(h Handle) error
	// Describe returns a human-readable description of the oracle.
	Describe() string
}

// Alive resolves h.PID and checks that it is still the same incarnation.
func Alive(o Oracle, h Handle) (Handle, bool) {
	cur, ok := o.Resolve(h.PID)
	if !ok || !cur.Same(h) {
		return Handle{}, false
	}
	return cur, true
}
