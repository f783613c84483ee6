//go:build !windows

package oracle

import (
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

func sendSignal(pid int32, sig syscall.Signal) error {
	return unix.Kill(int(pid), sig)
}

func signalName(sig syscall.Signal) string {
	if n := unix.SignalName(sig); n != "" {
		return n
	}
	return fmt.Sprintf("signal %d", int(sig))
}

// ParseSignal accepts names with or without the SIG prefix, in any case.
// An empty string yields 0, meaning no wake signal.
func ParseSignal(name string) (syscall.Signal, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return 0, nil
	}
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal %q", name)
	}
	return sig, nil
}
