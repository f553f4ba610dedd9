package eventloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_RunsOnNextTick(t *testing.T) {
	loop, err := New(WithBackend("null"))
	require.NoError(t, err)
	defer loop.Close()

	ran := false
	require.NoError(t, loop.Submit(func() {
		ran = true
		loop.Break()
	}))

	require.NoError(t, loop.Run(context.Background()))
	assert.True(t, ran)
}

func TestSubmit_AfterTerminatedReturnsError(t *testing.T) {
	loop, err := New(WithBackend("null"))
	require.NoError(t, err)

	require.NoError(t, loop.Submit(func() { loop.Break() }))
	require.NoError(t, loop.Run(context.Background()))

	require.NoError(t, loop.Close())
	assert.Equal(t, StateTerminated, loop.State())

	err = loop.Submit(func() {})
	assert.ErrorIs(t, err, ErrLoopTerminated)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	loop, err := New(WithBackend("null"))
	require.NoError(t, err)
	defer loop.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, loop.Run(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunOnce_RejectsReentrantCall(t *testing.T) {
	loop, err := New(WithBackend("null"))
	require.NoError(t, err)
	defer loop.Close()

	var innerErr error
	require.NoError(t, loop.Submit(func() {
		_, innerErr = loop.RunOnce()
		loop.Break()
	}))

	require.NoError(t, loop.Run(context.Background()))
	assert.ErrorIs(t, innerErr, ErrReentrantRun)
}

func TestClose_IsIdempotent(t *testing.T) {
	loop, err := New(WithBackend("null"))
	require.NoError(t, err)

	require.NoError(t, loop.Close())
	require.NoError(t, loop.Close())
}

func TestWithMaxPollTimeout_RejectsNonPositive(t *testing.T) {
	_, err := New(WithMaxPollTimeout(0))
	require.Error(t, err)
	var rangeErr *RangeError
	assert.ErrorAs(t, err, &rangeErr)
}
