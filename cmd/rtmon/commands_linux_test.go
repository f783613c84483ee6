//go:build linux

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/rtmon"
)

func TestTickOverSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "rtmon")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "ctl.sock")

	self := int32(os.Getpid())
	mon := rtmon.New(rtmon.NewTable(self), nil)
	sock, err := rtmon.NewSocketServer(mon, path, 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sock.Close()
		_ = mon.Shutdown(context.Background())
	})

	var out bytes.Buffer
	c := &command{out: &out}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Tick(ctx, TickFlags{Socket: path, C: 2, T: 20, Count: 3, Work: time.Millisecond}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 3)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "period "), l)
	}
	assert.Equal(t, 0, mon.Len(), "tick cancels itself on exit")

	out.Reset()
	require.NoError(t, c.List(ListFlags{ConnFlags: ConnFlags{Socket: path}}))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"), "header only")
}
