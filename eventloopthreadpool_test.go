package tcpreactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventLoopThreadPoolNoWorkersReturnsBaseLoop(t *testing.T) {
	base, err := NewEventLoop()
	require.NoError(t, err)
	pool := NewEventLoopThreadPool(base)
	require.NoError(t, pool.Start(0))
	defer pool.Stop()

	for i := 0; i < 3; i++ {
		require.Same(t, base, pool.GetNextLoop())
	}
}

func TestEventLoopThreadPoolRoundRobinFairness(t *testing.T) {
	base, err := NewEventLoop()
	require.NoError(t, err)
	pool := NewEventLoopThreadPool(base)
	require.NoError(t, pool.Start(3))
	defer pool.Stop()

	counts := make(map[*EventLoop]int)
	const rounds = 30
	for i := 0; i < rounds; i++ {
		counts[pool.GetNextLoop()]++
	}

	require.Len(t, counts, 3)
	for _, c := range counts {
		require.Equal(t, rounds/3, c)
	}
}
