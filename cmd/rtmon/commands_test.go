package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/rtmon"
	"github.com/loykin/rtmon/pkg/client"
)

func newHTTPDaemon(t *testing.T, pids ...int32) (ConnFlags, *rtmon.Monitor) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mon := rtmon.New(rtmon.NewTable(pids...), nil)
	ts := httptest.NewServer(rtmon.NewHandler(mon, "/api"))
	t.Cleanup(func() {
		ts.Close()
		_ = mon.Shutdown(context.Background())
	})
	return ConnFlags{APIUrl: ts.URL + "/api", APITimeout: 2 * time.Second}, mon
}

func TestCommandsOverHTTP(t *testing.T) {
	conn, mon := newHTTPDaemon(t, 300)
	var out bytes.Buffer
	c := &command{out: &out}

	require.NoError(t, c.Set(SetFlags{ConnFlags: conn, PID: 300, C: 10, T: 100}))
	assert.Contains(t, out.String(), "registered pid 300")
	assert.Equal(t, 1, mon.Len())

	out.Reset()
	require.NoError(t, c.List(ListFlags{ConnFlags: conn}))
	assert.True(t, strings.HasPrefix(out.String(), "PID"))
	assert.Contains(t, out.String(), "300")

	out.Reset()
	require.NoError(t, c.List(ListFlags{ConnFlags: conn, JSON: true}))
	var tasks []client.TaskInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &tasks))
	require.Len(t, tasks, 1)

	out.Reset()
	require.NoError(t, c.Status(PIDFlags{ConnFlags: conn, PID: 300}))
	var info client.TaskInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, int32(100), info.T)

	require.NoError(t, c.Cancel(PIDFlags{ConnFlags: conn, PID: 300}))
	assert.ErrorIs(t, c.Cancel(PIDFlags{ConnFlags: conn, PID: 300}), client.ErrNotRegistered)
}

func TestCommandsRejectBadInput(t *testing.T) {
	conn, _ := newHTTPDaemon(t, 300)
	c := &command{out: &bytes.Buffer{}}

	assert.Error(t, c.Set(SetFlags{ConnFlags: conn, PID: 0, C: 1, T: 10}))
	assert.ErrorIs(t, c.Set(SetFlags{ConnFlags: conn, PID: 300, C: 20, T: 10}), client.ErrInvalidParameters)
	assert.ErrorIs(t, c.Set(SetFlags{ConnFlags: conn, PID: 301, C: 1, T: 10}), client.ErrUnknownProcess)
	assert.Error(t, c.Status(PIDFlags{ConnFlags: conn, PID: -1}))
}

func TestCommandsDaemonDown(t *testing.T) {
	c := &command{out: &bytes.Buffer{}}
	err := c.List(ListFlags{ConnFlags: ConnFlags{APIUrl: "http://127.0.0.1:1/api", APITimeout: 200 * time.Millisecond}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")

	err = c.List(ListFlags{ConnFlags: ConnFlags{Socket: t.TempDir() + "/none.sock"}})
	require.Error(t, err)
}

func TestSetFromPIDFile(t *testing.T) {
	conn, mon := newHTTPDaemon(t, 310)
	pidFile := filepath.Join(t.TempDir(), "w.pid")
	require.NoError(t, os.WriteFile(pidFile, []byte("310\n"), 0o600))

	c := &command{out: &bytes.Buffer{}}
	require.NoError(t, c.Set(SetFlags{ConnFlags: conn, PIDFile: pidFile, C: 1, T: 10}))
	_, err := mon.Status(310)
	require.NoError(t, err)
	require.NoError(t, c.Cancel(PIDFlags{ConnFlags: conn, PIDFile: pidFile}))
	assert.Equal(t, 0, mon.Len())
}
