package eventloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleTimer_FiresOnce(t *testing.T) {
	loop, err := New(WithBackend("null"))
	require.NoError(t, err)
	defer loop.Close()

	fired := 0
	_, err = loop.ScheduleTimer(10*time.Millisecond, false, func() {
		fired++
		loop.Break()
	})
	require.NoError(t, err)

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 1, fired)
}

func TestScheduleTimer_RecurringFiresRepeatedly(t *testing.T) {
	loop, err := New(WithBackend("null"))
	require.NoError(t, err)
	defer loop.Close()

	ticks := 0
	_, err = loop.ScheduleTimer(5*time.Millisecond, true, func() {
		ticks++
		if ticks >= 3 {
			loop.Break()
		}
	})
	require.NoError(t, err)

	require.NoError(t, loop.Run(context.Background()))
	assert.GreaterOrEqual(t, ticks, 3)
}

func TestCancelTimer_PreventsFiring(t *testing.T) {
	loop, err := New(WithBackend("null"))
	require.NoError(t, err)
	defer loop.Close()

	fired := false
	timer, err := loop.ScheduleTimer(5*time.Millisecond, false, func() { fired = true })
	require.NoError(t, err)
	loop.CancelTimer(timer)

	_, err = loop.ScheduleTimer(15*time.Millisecond, false, func() { loop.Break() })
	require.NoError(t, err)

	require.NoError(t, loop.Run(context.Background()))
	assert.False(t, fired)
}

func TestScheduleTimer_RejectsNonPositivePeriod(t *testing.T) {
	loop, err := New(WithBackend("null"))
	require.NoError(t, err)
	defer loop.Close()

	_, err = loop.ScheduleTimer(0, false, func() {})
	require.Error(t, err)
	var rangeErr *RangeError
	assert.ErrorAs(t, err, &rangeErr)
}

func TestScheduleTimer_RejectsNilCallback(t *testing.T) {
	loop, err := New(WithBackend("null"))
	require.NoError(t, err)
	defer loop.Close()

	_, err = loop.ScheduleTimer(time.Millisecond, false, nil)
	require.Error(t, err)
	var typeErr *TypeError
	assert.ErrorAs(t, err, &typeErr)
}
