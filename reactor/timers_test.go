package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimers_RunExpiredFiresInOrder(t *testing.T) {
	tm := newTimers()
	now := time.Now()

	var order []int
	tm.add(now.Add(30*time.Millisecond), func() { order = append(order, 3) })
	tm.add(now.Add(10*time.Millisecond), func() { order = append(order, 1) })
	tm.add(now.Add(20*time.Millisecond), func() { order = append(order, 2) })

	tm.runExpired(now.Add(25*time.Millisecond), func(fn func()) { fn() })
	require.Equal(t, []int{1, 2}, order)

	tm.runExpired(now.Add(time.Hour), func(fn func()) { fn() })
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestTimers_CancelRemovesPendingTimer(t *testing.T) {
	tm := newTimers()
	fired := false
	id := tm.add(time.Now().Add(time.Millisecond), func() { fired = true })

	require.True(t, tm.cancel(id))
	require.False(t, tm.cancel(id), "cancelling twice must fail the second time")

	tm.runExpired(time.Now().Add(time.Hour), func(fn func()) { fn() })
	require.False(t, fired)
}

func TestTimers_NextDeadlineReflectsEarliest(t *testing.T) {
	tm := newTimers()
	_, ok := tm.nextDeadline()
	require.False(t, ok)

	now := time.Now()
	late := now.Add(time.Minute)
	early := now.Add(time.Second)
	tm.add(late, func() {})
	tm.add(early, func() {})

	when, ok := tm.nextDeadline()
	require.True(t, ok)
	require.True(t, when.Equal(early))
}
