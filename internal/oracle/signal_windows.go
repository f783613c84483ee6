//go:build windows

package oracle

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

func sendSignal(int32, syscall.Signal) error {
	return errors.New("signals are not supported on windows")
}

func signalName(sig syscall.Signal) string { return fmt.Sprintf("signal %d", int(sig)) }

// ParseSignal only accepts the empty string on windows.
func ParseSignal(name string) (syscall.Signal, error) {
	if strings.TrimSpace(name) == "" {
		return 0, nil
	}
	return 0, fmt.Errorf("wake signal %q not supported on windows", name)
}
