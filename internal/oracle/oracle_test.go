package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSame(t *testing.T) {
	a := Handle{PID: 10, StartTime: 100}
	assert.True(t, a.Same(Handle{PID: 10, StartTime: 100}))
	assert.False(t, a.Same(Handle{PID: 10, StartTime: 101}), "pid reuse must not match")
	assert.False(t, a.Same(Handle{PID: 11, StartTime: 100}))
	assert.True(t, a.Same(Handle{PID: 10}), "unknown start time matches on pid")
}

func TestTableLifecycle(t *testing.T) {
	tab := NewTable(1, 2)
	assert.Equal(t, []int32{1, 2}, tab.PIDs())

	h, ok := tab.Resolve(1)
	require.True(t, ok)
	assert.Equal(t, int32(1), h.PID)

	_, ok = Alive(tab, h)
	assert.True(t, ok)

	tab.Kill(1)
	_, ok = tab.Resolve(1)
	assert.False(t, ok)
	_, ok = Alive(tab, h)
	assert.False(t, ok)

	// a new incarnation under the same pid is a different process
	h2 := tab.Spawn(1)
	assert.NotEqual(t, h.StartTime, h2.StartTime)
	_, ok = Alive(tab, h)
	assert.False(t, ok)
	_, ok = Alive(tab, h2)
	assert.True(t, ok)
}

func TestTableResumeHook(t *testing.T) {
	tab := NewTable(3)
	var seen []Handle
	tab.OnResume = func(h Handle, _ time.Time) { seen = append(seen, h) }
	h, _ := tab.Resolve(3)
	require.NoError(t, tab.Resume(h))
	require.NoError(t, tab.Resume(h))
	assert.Len(t, tab.Resumes(3), 2)
	assert.Equal(t, []Handle{h, h}, seen)
	assert.Empty(t, tab.Resumes(4))
	assert.Equal(t, "table", tab.Describe())
}
