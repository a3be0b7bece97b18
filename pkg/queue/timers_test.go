package queue_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/queue"
)

func TestTimers(t *testing.T) {
	t.Parallel()

	timers := queue.NewTimers()

	var ran atomic.Int32
	require.NoError(t, timers.Schedule(5*time.Millisecond, func() { ran.Add(1) }))
	require.NoError(t, timers.Schedule(time.Hour, func() { ran.Add(100) }))

	require.Eventually(t, func() bool { return ran.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, timers.Len())

	require.NoError(t, timers.Close())
	assert.Zero(t, timers.Len())
	assert.Equal(t, int32(1), ran.Load(), "pending jobs are dropped on close")
	assert.ErrorIs(t, timers.Schedule(0, func() {}), queue.ErrTimersClosed)
}
