package timer

import (
	"sync"
	"time"
)

// State of a periodic timer.
//
//	Idle -> Armed -> Firing -> Armed ...
//	                        -> Retired
//	any  -> Retired (Stop)
type State int32

const (
	StateIdle State = iota
	StateArmed
	StateFiring
	StateRetired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateFiring:
		return "firing"
	case StateRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// FireFunc runs once per deadline. Returning false retires the timer.
// It must not call Stop on the timer that invoked it.
type FireFunc func(deadline time.Time) bool

// Periodic rearms itself every period until its FireFunc reports false
// or Stop claims it. Exactly one of those two paths retires the timer.
type Periodic struct {
	period time.Duration
	fire   FireFunc
	expire func()

	mu       sync.Mutex
	state    State
	deadline time.Time
	t        *time.Timer
	gate     chan struct{} // non-nil while a firing is in progress
	fires    uint64
	overruns uint64
}

// New creates an idle timer. expire, if non-nil, runs exactly once after
// the timer retires itself because fire returned false; it never runs
// when Stop wins.
func New(period time.Duration, fire FireFunc, expire func()) *Periodic {
	return &Periodic{period: period, fire: fire, expire: expire}
}

// Start arms the first deadline one period from now. It returns false if
// the timer was already started or stopped.
func (p *Periodic) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle {
		return false
	}
	p.deadline = time.Now().Add(p.period)
	p.state = StateArmed
	p.t = time.AfterFunc(p.period, p.run)
	return true
}

func (p *Periodic) run() {
	p.mu.Lock()
	if p.state != StateArmed {
		p.mu.Unlock()
		return
	}
	p.state = StateFiring
	gate := make(chan struct{})
	p.gate = gate
	deadline := p.deadline
	p.fires++
	p.mu.Unlock()

	alive := p.fire(deadline)

	expired := false
	p.mu.Lock()
	p.gate = nil
	switch {
	case p.state == StateRetired:
		// Stop claimed the timer while fire ran; the claimant owns cleanup.
	case alive:
		now := time.Now()
		next := deadline.Add(p.period)
		if !next.After(now) {
			missed := now.Sub(next)/p.period + 1
			next = next.Add(missed * p.period)
			p.overruns += uint64(missed)
		}
		p.deadline = next
		p.state = StateArmed
		p.t.Reset(next.Sub(now))
	default:
		p.state = StateRetired
		expired = true
	}
	p.mu.Unlock()
	close(gate)

	if expired && p.expire != nil {
		p.expire()
	}
}

// Stop retires the timer and waits for an in-flight firing to return.
// It reports whether this call performed the retirement; false means the
// timer had already retired (stopped earlier, or expired on its own).
func (p *Periodic) Stop() bool {
	p.mu.Lock()
	if p.state == StateRetired {
		p.mu.Unlock()
		return false
	}
	p.state = StateRetired
	if p.t != nil {
		p.t.Stop()
	}
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return true
}

func (p *Periodic) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Deadline is the next scheduled firing, or the zero time when idle or retired.
func (p *Periodic) Deadline() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateIdle || p.state == StateRetired {
		return time.Time{}
	}
	return p.deadline
}

func (p *Periodic) Period() time.Duration { return p.period }

// Fires counts started firings.
func (p *Periodic) Fires() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fires
}

// Overruns counts boundaries skipped because a firing ran late.
func (p *Periodic) Overruns() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overruns
}
