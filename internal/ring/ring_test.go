package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing_FIFOOrderAcrossGrowth(t *testing.T) {
	r := New[int](2)
	for i := 0; i < 100; i++ {
		r.PushBack(i)
	}
	require.Equal(t, 100, r.Len())
	for i := 0; i < 100; i++ {
		v, ok := r.PopFront()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := r.PopFront()
	require.False(t, ok)
}

func TestRing_InterleavedPushPop(t *testing.T) {
	r := New[string](4)
	r.PushBack("a")
	r.PushBack("b")
	v, _ := r.PopFront()
	require.Equal(t, "a", v)
	r.PushBack("c")
	r.PushBack("d")
	r.PushBack("e")

	var out []string
	for {
		v, ok := r.PopFront()
		if !ok {
			break
		}
		out = append(out, v)
	}
	require.Equal(t, []string{"b", "c", "d", "e"}, out)
}

func TestRing_GetIndexesFromFront(t *testing.T) {
	r := New[int](8)
	r.PushBack(10)
	r.PushBack(20)
	r.PushBack(30)
	require.Equal(t, 10, r.Get(0))
	require.Equal(t, 20, r.Get(1))
	require.Equal(t, 30, r.Get(2))
}
