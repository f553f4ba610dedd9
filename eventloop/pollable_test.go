package eventloop

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPollable_FiresOnReadable(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	pol, err := loop.CreatePollable(int(r.Fd()))
	require.NoError(t, err)

	var got []byte
	require.NoError(t, pol.SetSelect(PollRead, func(p *Pollable) {
		buf := make([]byte, 16)
		n, _ := readFD(p.FD(), buf)
		got = append(got, buf[:n]...)
		loop.Break()
	}))

	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop.Run(ctx))

	assert.Equal(t, "hello", string(got))
}

func TestPollable_DestroyIsDeferredToReapList(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	pol, err := loop.CreatePollable(int(r.Fd()))
	require.NoError(t, err)

	destroyedMidCallback := false
	stillAttachedMidCallback := false
	require.NoError(t, pol.SetSelect(PollRead, func(p *Pollable) {
		p.Destroy()
		// dead flag is set immediately, but the pollable table entry is
		// only removed from the poller when drainReapList runs after
		// dispatch finishes for this tick.
		destroyedMidCallback = p.dead.Load()
		stillAttachedMidCallback = p.attached
		loop.Break()
	}))

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop.Run(ctx))

	assert.True(t, destroyedMidCallback)
	assert.True(t, stillAttachedMidCallback)
	assert.False(t, pol.attached)
}

// TestPollable_DestroyInReadPassSuppressesSameTickWrite covers a pollable
// that is simultaneously readable and writable in one poll return, here
// through queued data plus an empty send buffer (a remote hangup reaches
// the loop the same way, since the backends deliver HUP as both). If the
// read pass's callback destroys the pollable, the write pass must not fire
// it too.
func TestPollable_DestroyInReadPassSuppressesSameTickWrite(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	a, b := fds[0], fds[1]
	defer unix.Close(a)
	defer unix.Close(b)

	pol, err := loop.CreatePollable(a)
	require.NoError(t, err)

	writeFired := false
	require.NoError(t, pol.SetSelect(PollRead, func(p *Pollable) {
		p.Destroy()
		loop.Break()
	}))
	require.NoError(t, pol.SetSelect(PollWrite, func(p *Pollable) {
		writeFired = true
	}))

	// a's send buffer is empty (writable) and b has queued data for a (readable).
	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop.Run(ctx))

	assert.False(t, writeFired, "write callback must not fire in the same tick a pollable was destroyed by its read callback")
	assert.True(t, pol.dead.Load())
}

func TestCreatePollable_GenerationIncrementsPerPollable(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	r1, w1, err := os.Pipe()
	require.NoError(t, err)
	defer r1.Close()
	defer w1.Close()
	r2, w2, err := os.Pipe()
	require.NoError(t, err)
	defer r2.Close()
	defer w2.Close()

	p1, err := loop.CreatePollable(int(r1.Fd()))
	require.NoError(t, err)
	p2, err := loop.CreatePollable(int(r2.Fd()))
	require.NoError(t, err)

	assert.NotEqual(t, p1.Generation(), p2.Generation())
}
