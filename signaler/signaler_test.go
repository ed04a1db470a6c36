package signaler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignaler_SendRecv(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.Wait(0)
	require.NoError(t, err)
	require.False(t, ok, "no edge should be pending yet")

	require.NoError(t, s.Send())

	ok, err = s.Wait(0)
	require.NoError(t, err)
	require.True(t, ok, "edge should be pending after Send")

	require.NoError(t, s.Recv())

	ok, err = s.Wait(0)
	require.NoError(t, err)
	require.False(t, ok, "edge should be consumed after Recv")
}

func TestSignaler_WaitBlocksUntilSend(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	start := time.Now()
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, s.Send())
	}()

	ok, err := s.Wait(-1)
	require.NoError(t, err)
	require.True(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	wg.Wait()
	require.NoError(t, s.Recv())
}

// TestSignaler_EdgeFidelity exercises spec invariant #1: for any
// interleaving, the number of Recv calls that observe an edge equals the
// number of Send calls, provided the caller never issues two Sends without
// an intervening Recv.
func TestSignaler_EdgeFidelity(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Close()

	const n = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			ready, err := s.Wait(-1)
			require.NoError(t, err)
			require.True(t, ready)
			require.NoError(t, s.Recv())
		}
	}()

	for i := 0; i < n; i++ {
		require.NoError(t, s.Send())
		time.Sleep(time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for all edges to be consumed")
	}

	ready, err := s.Wait(0)
	require.NoError(t, err)
	require.False(t, ready, "every edge must have been consumed by exactly one Recv")
}

func TestSignaler_CloseIsIdempotentError(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Close(), ErrClosed)
	require.ErrorIs(t, s.Send(), ErrClosed)
	require.ErrorIs(t, s.Recv(), ErrClosed)
}
