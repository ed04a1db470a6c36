package reactor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/zmqcore/mailbox"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	seen atomic.Int64
}

func (h *recordingHandler) HandleCommand(mailbox.Command) {
	h.seen.Add(1)
}

func runInBackground(t *testing.T, r *Reactor) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	// Give Run a moment to reach the poll loop before tests start driving it.
	time.Sleep(10 * time.Millisecond)

	return func() {
		cancel()
		require.NoError(t, <-errCh)
	}
}

func TestReactor_RegisterResolveUnregister(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	h := r.Register(&recordingHandler{})
	obj, ok := r.Resolve(h)
	require.True(t, ok)
	require.NotNil(t, obj)

	require.True(t, r.Unregister(h))
	_, ok = r.Resolve(h)
	require.False(t, ok)

	require.False(t, r.Unregister(h), "a second unregister of the same handle must fail")
}

func TestReactor_DispatchesCommandToRegisteredHandler(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer runInBackground(t, r)()

	h := &recordingHandler{}
	handle := r.Register(h)

	r.Submit(mailbox.Command{Type: mailbox.ActivateRead, Dest: HandleToDest(handle)})

	require.Eventually(t, func() bool {
		return h.seen.Load() == 1
	}, time.Second, time.Millisecond)
}

func TestReactor_CommandToStaleHandleIsDropped(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer runInBackground(t, r)()

	h := &recordingHandler{}
	handle := r.Register(h)
	r.Unregister(handle)

	r.Submit(mailbox.Command{Type: mailbox.ActivateRead, Dest: HandleToDest(handle)})

	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 0, h.seen.Load())
}

func TestReactor_StopDrainsQueuedCommandsFirst(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	h := &recordingHandler{}
	handle := r.Register(h)
	for i := 0; i < 100; i++ {
		r.Submit(mailbox.Command{Type: mailbox.ActivateRead, Dest: HandleToDest(handle)})
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, r.Stop(stopCtx))
	require.NoError(t, <-errCh)

	require.EqualValues(t, 100, h.seen.Load(), "every command queued before Stop must still be dispatched")
}

func TestReactor_TimerFiresAfterDelay(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer runInBackground(t, r)()

	fired := make(chan struct{}, 1)
	var added atomic.Bool
	h := r.Register(&recordingHandler{})
	_ = h

	// AddTimer is reactor-thread-only; schedule it via a command dispatch
	// so it runs on-thread.
	scheduler := &timerScheduler{fn: func() {
		id, err := r.AddTimer(20*time.Millisecond, func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
		require.NoError(t, err)
		require.NotZero(t, id)
		added.Store(true)
	}}
	handle := r.Register(scheduler)
	r.Submit(mailbox.Command{Type: mailbox.ActivateWrite, Dest: HandleToDest(handle)})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	require.True(t, added.Load())
}

type timerScheduler struct{ fn func() }

func (s *timerScheduler) HandleCommand(mailbox.Command) { s.fn() }

func TestReactor_RegisterFDRejectsOffThreadCalls(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer runInBackground(t, r)()

	err = r.RegisterFD(0, EventRead, func(IOEvents) {})
	require.ErrorIs(t, err, ErrWrongThread)
}

func TestReactor_RunRejectsDoubleStart(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runInBackground(t, r)
	defer stop()

	err = r.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

type reentrantRunner struct {
	r      *Reactor
	result chan error
}

func (h *reentrantRunner) HandleCommand(mailbox.Command) {
	h.result <- h.r.Run(context.Background())
}

func TestReactor_RunRejectsTrueReentry(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer runInBackground(t, r)()

	h := &reentrantRunner{r: r, result: make(chan error, 1)}
	handle := r.Register(h)
	r.Submit(mailbox.Command{Type: mailbox.ActivateRead, Dest: HandleToDest(handle)})

	select {
	case err := <-h.result:
		require.ErrorIs(t, err, ErrReentrantRun)
	case <-time.After(time.Second):
		t.Fatal("reentrant Run call never returned")
	}
}
