package oracle

import (
	"fmt"
	"slices"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ProcessOracle consults the host process table. Zombies count as dead:
// they have exited and only wait to be reaped.
type ProcessOracle struct {
	// WakeSignal, when non-zero, is delivered on Resume so that a process
	// which stopped itself (SIGSTOP) continues at the period boundary.
	WakeSignal syscall.Signal
}

func NewProcessOracle(wake syscall.Signal) *ProcessOracle {
	return &ProcessOracle{WakeSignal: wake}
}

func (o *ProcessOracle) Resolve(pid int32) (Handle, bool) {
	if pid <= 0 {
		return Handle{}, false
	}
	exists, err := gopsproc.PidExists(pid)
	if err != nil || !exists {
		return Handle{}, false
	}
	p, err := gopsproc.NewProcess(pid)
	if err != nil {
		return Handle{}, false
	}
	if st, err := p.Status(); err == nil && slices.Contains(st, gopsproc.Zombie) {
		return Handle{}, false
	}
	h := Handle{PID: pid}
	if ms, err := p.CreateTime(); err == nil && ms > 0 {
		h.StartTime = ms
	}
	return h, true
}

func (o *ProcessOracle) Resume(h Handle) error {
	if o.WakeSignal == 0 {
		return nil
	}
	if err := sendSignal(h.PID, o.WakeSignal); err != nil {
		return fmt.Errorf("resume %s: %w", h, err)
	}
	return nil
}

func (o *ProcessOracle) Describe() string {
	if o.WakeSignal == 0 {
		return "proc"
	}
	return "proc+" + signalName(o.WakeSignal)
}
