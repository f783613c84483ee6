package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/rtmon/internal/history"
	"github.com/loykin/rtmon/internal/oracle"
	"github.com/loykin/rtmon/internal/task"
)

type recordingSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (s *recordingSink) Send(_ context.Context, e history.Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) count(pid int32, types ...history.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Task.PID != pid {
			continue
		}
		for _, t := range types {
			if e.Type == t {
				n++
			}
		}
	}
	return n
}

func newTestMonitor(t *testing.T, pids ...int32) (*Monitor, *oracle.Table) {
	t.Helper()
	tbl := oracle.NewTable(pids...)
	m := New(tbl, nil)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, tbl
}

func TestRegisterOnceThenDuplicate(t *testing.T) {
	m, _ := newTestMonitor(t, 10)

	require.NoError(t, m.Register(task.Params{PID: 10, C: 5, T: 10000}))
	assert.Equal(t, 1, m.Len())

	for _, p := range []task.Params{{PID: 10, C: 5, T: 10000}, {PID: 10, C: 1, T: 1}, {PID: 10, C: 9999, T: 10000}} {
		err := m.Register(p)
		assert.ErrorIs(t, err, task.ErrDuplicateRegistration, "params %s", p)
	}
	assert.Equal(t, 1, m.Len())
}

func TestRegisterInvalidParametersLeavesRegistryUnchanged(t *testing.T) {
	m, _ := newTestMonitor(t, 10)
	invalid := []task.Params{
		{PID: 10, C: 0, T: 10},
		{PID: 10, C: -1, T: 10},
		{PID: 10, C: 5, T: 0},
		{PID: 10, C: 5, T: 10001},
		{PID: 10, C: 10001, T: 10000},
		{PID: 10, C: 11, T: 10},
	}
	for _, p := range invalid {
		before := m.Len()
		err := m.Register(p)
		assert.ErrorIs(t, err, task.ErrInvalidParameters, "params %s", p)
		assert.Equal(t, before, m.Len())
	}
	// invalid parameters are reported before the pid is looked at
	assert.ErrorIs(t, m.Register(task.Params{PID: 999, C: 2, T: 1}), task.ErrInvalidParameters)
}

func TestRegisterUnknownProcess(t *testing.T) {
	m, tbl := newTestMonitor(t)
	err := m.Register(task.Params{PID: 42, C: 1, T: 10})
	assert.ErrorIs(t, err, task.ErrUnknownProcess)
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.List())
	assert.Empty(t, tbl.Resumes(42))
}

func TestRegisterBoundaryValues(t *testing.T) {
	m, _ := newTestMonitor(t, 1, 2, 3)
	require.NoError(t, m.Register(task.Params{PID: 1, C: 1, T: 1}))
	require.NoError(t, m.Register(task.Params{PID: 2, C: 10000, T: 10000}))
	require.NoError(t, m.Register(task.Params{PID: 3, C: 1, T: 10000}))
	assert.Equal(t, 3, m.Len())
}

func TestCancelBeforeFirstPeriod(t *testing.T) {
	m, tbl := newTestMonitor(t, 10)
	require.NoError(t, m.Register(task.Params{PID: 10, C: 100, T: 1000}))

	require.NoError(t, m.Cancel(10))
	assert.Equal(t, 0, m.Len())
	assert.ErrorIs(t, m.Cancel(10), task.ErrNotRegistered)
	_, err := m.Status(10)
	assert.ErrorIs(t, err, task.ErrNotRegistered)

	time.Sleep(1100 * time.Millisecond)
	assert.Empty(t, tbl.Resumes(10), "cancelled task must not be resumed")
}

func TestCancelNeverRegistered(t *testing.T) {
	m, _ := newTestMonitor(t, 10)
	assert.ErrorIs(t, m.Cancel(10), task.ErrNotRegistered)
	assert.ErrorIs(t, m.Cancel(11), task.ErrNotRegistered)
}

func TestWaitUnregisteredReturnsImmediately(t *testing.T) {
	m, _ := newTestMonitor(t, 10)
	start := time.Now()
	_, err := m.Wait(context.Background(), 10)
	assert.ErrorIs(t, err, task.ErrNotRegistered)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestEndToEndResumeWithinFirstPeriod(t *testing.T) {
	m, tbl := newTestMonitor(t, 100)
	resumed := make(chan time.Time, 4)
	tbl.OnResume = func(h oracle.Handle, at time.Time) {
		if h.PID == 100 {
			select {
			case resumed <- at:
			default:
			}
		}
	}

	registeredAt := time.Now()
	require.NoError(t, m.Register(task.Params{PID: 100, C: 200, T: 500}))

	var first time.Time
	select {
	case first = <-resumed:
	case <-time.After(2 * time.Second):
		t.Fatal("pid 100 was never resumed")
	}
	elapsed := first.Sub(registeredAt)
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.LessOrEqual(t, elapsed, 600*time.Millisecond)

	var info task.Info
	require.Eventually(t, func() bool {
		var err error
		info, err = m.Status(100)
		return err == nil && info.Period >= 1 && info.State == "armed"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), info.Period)
	assert.GreaterOrEqual(t, info.NextDeadline.Sub(registeredAt), 1000*time.Millisecond)
	assert.Equal(t, int32(200), info.C)
	assert.Equal(t, int32(500), info.T)
}

func TestEndToEndAutoRetireOnDeath(t *testing.T) {
	m, tbl := newTestMonitor(t, 200)
	sink := &recordingSink{}
	m.SetHistorySinks(sink)

	require.NoError(t, m.Register(task.Params{PID: 200, C: 50, T: 100}))
	tbl.Kill(200)

	require.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, m.Cancel(200), task.ErrNotRegistered)
	assert.Empty(t, tbl.Resumes(200))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 1, sink.count(200, history.EventRegistered))
	assert.Equal(t, 1, sink.count(200, history.EventRetired))
}

func TestCancelRacingDeathRetiresOnce(t *testing.T) {
	tbl := oracle.NewTable()
	m := New(tbl, nil)
	sink := &recordingSink{}
	m.SetHistorySinks(sink)

	const n = 40
	results := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		pid := int32(1000 + i)
		tbl.Spawn(pid)
		require.NoError(t, m.Register(task.Params{PID: pid, C: 1, T: 20}))
		wg.Add(1)
		go func(i int, pid int32) {
			defer wg.Done()
			time.Sleep(19 * time.Millisecond)
			tbl.Kill(pid)
			time.Sleep(time.Duration(i%3) * time.Millisecond)
			results[i] = m.Cancel(pid)
		}(i, pid)
	}
	wg.Wait()
	require.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, m.Shutdown(context.Background()))

	for i := 0; i < n; i++ {
		pid := int32(1000 + i)
		cancelled := sink.count(pid, history.EventCancelled)
		retired := sink.count(pid, history.EventRetired)
		assert.Equal(t, 1, cancelled+retired, "pid %d retired %d times", pid, cancelled+retired)
		if results[i] == nil {
			assert.Equal(t, 1, cancelled, "pid %d: cancel succeeded but death path retired", pid)
		} else {
			assert.ErrorIs(t, results[i], task.ErrNotRegistered)
			assert.Equal(t, 1, retired, "pid %d: cancel failed but nothing retired it", pid)
		}
		assert.Zero(t, sink.count(pid, history.EventShutdown))
	}
}

func TestConcurrentCancelSingleWinner(t *testing.T) {
	m, _ := newTestMonitor(t, 7)
	require.NoError(t, m.Register(task.Params{PID: 7, C: 1, T: 2}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Cancel(7); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, task.ErrNotRegistered)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 0, m.Len())
}

func TestWaitObservesIncreasingPeriods(t *testing.T) {
	m, _ := newTestMonitor(t, 5)
	require.NoError(t, m.Register(task.Params{PID: 5, C: 1, T: 10}))

	var last uint64
	for i := 0; i < 5; i++ {
		n, err := m.Wait(context.Background(), 5)
		require.NoError(t, err)
		assert.Greater(t, n, last)
		last = n
	}
}

func TestWaitReleasedByCancel(t *testing.T) {
	m, _ := newTestMonitor(t, 5)
	require.NoError(t, m.Register(task.Params{PID: 5, C: 1, T: 10000}))

	errc := make(chan error, 1)
	go func() {
		_, err := m.Wait(context.Background(), 5)
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Cancel(5))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, task.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by cancel")
	}
}

func TestWaitReleasedByDeath(t *testing.T) {
	m, tbl := newTestMonitor(t, 5)
	require.NoError(t, m.Register(task.Params{PID: 5, C: 1, T: 30}))
	// the first boundary arrives while the process is live
	_, err := m.Wait(context.Background(), 5)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := m.Wait(context.Background(), 5)
		errc <- err
	}()
	time.Sleep(5 * time.Millisecond)
	tbl.Kill(5)

	select {
	case err := <-errc:
		// the waiter may have caught one more boundary before the kill landed
		if err != nil {
			assert.ErrorIs(t, err, task.ErrProcessGone)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	_, err = m.Wait(context.Background(), 5)
	assert.ErrorIs(t, err, task.ErrNotRegistered)
}

func TestWaitHonoursContext(t *testing.T) {
	m, _ := newTestMonitor(t, 5)
	require.NoError(t, m.Register(task.Params{PID: 5, C: 1, T: 10000}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Wait(ctx, 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// the task is untouched
	_, err = m.Status(5)
	assert.NoError(t, err)
}

func TestListReapsDeadTasks(t *testing.T) {
	m, tbl := newTestMonitor(t, 1, 2, 3)
	sink := &recordingSink{}
	m.SetHistorySinks(sink)
	for _, pid := range []int32{1, 2, 3} {
		require.NoError(t, m.Register(task.Params{PID: pid, C: 10, T: 10000}))
	}
	tbl.Kill(2)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, int32(1), list[0].PID)
	assert.Equal(t, int32(3), list[1].PID)
	assert.Equal(t, 2, m.Len())
	assert.ErrorIs(t, m.Cancel(2), task.ErrNotRegistered)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 1, sink.count(2, history.EventReaped))
}

func TestListReapsReusedPID(t *testing.T) {
	m, tbl := newTestMonitor(t, 9)
	require.NoError(t, m.Register(task.Params{PID: 9, C: 10, T: 10000}))

	// pid 9 exits and a different process picks up the same pid
	tbl.Kill(9)
	tbl.Spawn(9)

	assert.Empty(t, m.List())
	assert.Equal(t, 0, m.Len())
	// the new incarnation can register on its own
	require.NoError(t, m.Register(task.Params{PID: 9, C: 10, T: 10000}))
}

func TestListInfoFields(t *testing.T) {
	m, _ := newTestMonitor(t, 4)
	before := time.Now()
	require.NoError(t, m.Register(task.Params{PID: 4, C: 3, T: 9000}))

	list := m.List()
	require.Len(t, list, 1)
	inf := list[0]
	assert.Equal(t, int32(4), inf.PID)
	assert.Equal(t, int32(3), inf.C)
	assert.Equal(t, int32(9000), inf.T)
	assert.Equal(t, uint64(0), inf.Period)
	assert.Equal(t, "armed", inf.State)
	assert.False(t, inf.RegisteredAt.Before(before))
	assert.True(t, inf.NextDeadline.After(inf.RegisteredAt))
	assert.True(t, inf.LastWake.IsZero())
}

func TestShutdownReleasesWaitersAndRejectsRegistrations(t *testing.T) {
	tbl := oracle.NewTable(1, 2)
	m := New(tbl, nil)
	require.NoError(t, m.Register(task.Params{PID: 1, C: 1, T: 10000}))
	require.NoError(t, m.Register(task.Params{PID: 2, C: 1, T: 10000}))

	errc := make(chan error, 2)
	for _, pid := range []int32{1, 2} {
		go func(pid int32) {
			_, err := m.Wait(context.Background(), pid)
			errc <- err
		}(pid)
	}
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Shutdown(context.Background()))

	for i := 0; i < 2; i++ {
		select {
		case err := <-errc:
			assert.ErrorIs(t, err, task.ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("waiter not released by shutdown")
		}
	}
	assert.Equal(t, 0, m.Len())
	assert.ErrorIs(t, m.Register(task.Params{PID: 1, C: 1, T: 10}), task.ErrClosed)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestDistinctTasksIndependent(t *testing.T) {
	m, tbl := newTestMonitor(t)
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		pid := int32(500 + i)
		tbl.Spawn(pid)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Register(task.Params{PID: pid, C: 1, T: 15}))
		}()
	}
	wg.Wait()
	assert.Equal(t, n, m.Len())

	// cancel half, the rest keep ticking
	for i := 0; i < n; i += 2 {
		require.NoError(t, m.Cancel(int32(500+i)))
	}
	for i := 1; i < n; i += 2 {
		pid := int32(500 + i)
		_, err := m.Wait(context.Background(), pid)
		require.NoError(t, err, fmt.Sprintf("pid %d", pid))
	}
	assert.Equal(t, n/2, len(m.List()))
}

func TestWaitResultLabels(t *testing.T) {
	assert.Equal(t, "ok", waitResult(nil))
	assert.Equal(t, "cancelled", waitResult(task.ErrCancelled))
	assert.Equal(t, "process_gone", waitResult(fmt.Errorf("x: %w", task.ErrProcessGone)))
	assert.Equal(t, "closed", waitResult(task.ErrClosed))
	assert.Equal(t, "aborted", waitResult(errors.New("ctx")))
}
