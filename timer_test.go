package tcpreactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerQueueExpiresInDeadlineOrder(t *testing.T) {
	q := newTimerQueue()
	var fired []int
	base := time.Now()

	q.addTimer(base.Add(30*time.Millisecond), 0, func() { fired = append(fired, 3) })
	q.addTimer(base.Add(10*time.Millisecond), 0, func() { fired = append(fired, 1) })
	q.addTimer(base.Add(20*time.Millisecond), 0, func() { fired = append(fired, 2) })

	q.expireTimers(base.Add(25 * time.Millisecond))
	require.Equal(t, []int{1, 2}, fired)

	q.expireTimers(base.Add(100 * time.Millisecond))
	require.Equal(t, []int{1, 2, 3}, fired)
}

func TestTimerQueueCancelPreventsFiring(t *testing.T) {
	q := newTimerQueue()
	fired := false
	h := q.addTimer(time.Now().Add(time.Millisecond), 0, func() { fired = true })
	q.cancelTimer(h)
	q.expireTimers(time.Now().Add(time.Second))
	require.False(t, fired)
}

func TestTimerQueueRepeatingTimerReschedules(t *testing.T) {
	q := newTimerQueue()
	base := time.Now()
	count := 0
	q.addTimer(base.Add(10*time.Millisecond), 10*time.Millisecond, func() { count++ })

	q.expireTimers(base.Add(10 * time.Millisecond))
	require.Equal(t, 1, count)

	when, ok := q.nextDeadline()
	require.True(t, ok)
	require.True(t, when.After(base.Add(10 * time.Millisecond)))

	q.expireTimers(base.Add(20 * time.Millisecond))
	require.Equal(t, 2, count)
}

func TestTimerQueueNextDeadlineEmpty(t *testing.T) {
	q := newTimerQueue()
	_, ok := q.nextDeadline()
	require.False(t, ok)
}
