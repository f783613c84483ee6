package task

import (
	"fmt"
	"time"
)

// Limits on the execution budget and period, in milliseconds.
const (
	MinMillis = 1
	MaxMillis = 10000
)

// Params describe a periodic task as submitted by a caller.
// C is the execution budget and T the period, both in milliseconds.
type Params struct {
	PID int32 `json:"pid" mapstructure:"pid"`
	C   int32 `json:"c" mapstructure:"c"`
	T   int32 `json:"t" mapstructure:"t"`
}

// Validate checks 1 <= C <= T <= 10000. The pid is not checked here:
// resolving it is the liveness oracle's job.
func (p Params) Validate() error {
	if p.C < MinMillis || p.C > MaxMillis {
		return fmt.Errorf("%w: C=%dms outside [%d,%d]", ErrInvalidParameters, p.C, MinMillis, MaxMillis)
	}
	if p.T < MinMillis || p.T > MaxMillis {
		return fmt.Errorf("%w: T=%dms outside [%d,%d]", ErrInvalidParameters, p.T, MinMillis, MaxMillis)
	}
	if p.C > p.T {
		return fmt.Errorf("%w: C=%dms exceeds T=%dms", ErrInvalidParameters, p.C, p.T)
	}
	return nil
}

// Period returns T as a duration.
func (p Params) Period() time.Duration { return time.Duration(p.T) * time.Millisecond }

// Budget returns C as a duration.
func (p Params) Budget() time.Duration { return time.Duration(p.C) * time.Millisecond }

func (p Params) String() string {
	return fmt.Sprintf("pid=%d C=%dms T=%dms", p.PID, p.C, p.T)
}

// Info is a point-in-time view of a monitored task.
type Info struct {
	PID          int32     `json:"pid"`
	C            int32     `json:"c"`
	T            int32     `json:"t"`
	State        string    `json:"state"`
	Period       uint64    `json:"period"`
	Overruns     uint64    `json:"overruns"`
	NextDeadline time.Time `json:"next_deadline,omitempty"`
	LastWake     time.Time `json:"last_wake,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}
