package linebuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atheme/go-mowgli/sockaddr"
	"github.com/atheme/go-mowgli/vio"
)

// fakeTransport is an in-memory vio.Transport double used to drive
// Linebuf's framing logic directly, without a real socket or Loop.
type fakeTransport struct {
	readData  [][]byte
	readIdx   int
	written   []byte
	flags     vio.Flag
	closed    bool
}

func (f *fakeTransport) Connect(*sockaddr.SockAddr) error { return nil }
func (f *fakeTransport) Read(buf []byte) (int, error) {
	if f.readIdx >= len(f.readData) {
		return 0, nil
	}
	n := copy(buf, f.readData[f.readIdx])
	f.readIdx++
	return n, nil
}
func (f *fakeTransport) Write(buf []byte) (int, error) {
	f.written = append(f.written, buf...)
	return len(buf), nil
}
func (f *fakeTransport) Close() error               { f.closed = true; return nil }
func (f *fakeTransport) FD() int                     { return -1 }
func (f *fakeTransport) HasFlag(fl vio.Flag) bool    { return f.flags&fl != 0 }
func (f *fakeTransport) SetFlag(fl vio.Flag, set bool) {
	if set {
		f.flags |= fl
	} else {
		f.flags &^= fl
	}
}

func TestWrite_AppendsConfiguredTerminator(t *testing.T) {
	tr := &fakeTransport{}
	lb := New(tr, func([]byte, bool) {})
	require.NoError(t, lb.Write([]byte("hello")))
	assert.Equal(t, "hello\r\n", string(lb.writeBuf))
}

func TestWrite_RejectsWhenBufferFull(t *testing.T) {
	tr := &fakeTransport{}
	lb := New(tr, func([]byte, bool) {})
	require.NoError(t, lb.SetBufLen(65536, 4))
	err := lb.Write([]byte("hello"))
	assert.Error(t, err)
	assert.NotZero(t, lb.flags&FlagWriteBufFull)
}

func TestProcess_SplitsMultipleLines(t *testing.T) {
	tr := &fakeTransport{}
	var lines []string
	lb := New(tr, func(line []byte, hasNull bool) {
		lines = append(lines, string(line))
	})
	lb.readBuf = []byte("one\r\ntwo\r\nthr")
	lb.process()
	assert.Equal(t, []string{"one", "two"}, lines)
	assert.Equal(t, "thr", string(lb.readBuf))
}

func TestProcess_DetectsEmbeddedNull(t *testing.T) {
	tr := &fakeTransport{}
	var hadNull bool
	lb := New(tr, func(line []byte, hasNull bool) {
		hadNull = hasNull
	})
	lb.readBuf = append([]byte("a\x00b"), "\r\n"...)
	lb.process()
	assert.True(t, hadNull)
}

func TestSetDelim_RejectsEmpty(t *testing.T) {
	tr := &fakeTransport{}
	lb := New(tr, func([]byte, bool) {})
	assert.Error(t, lb.SetDelim("", "\n"))
	assert.Error(t, lb.SetDelim("\n", ""))
}

func TestShutdown_FiresImmediatelyWhenWriteBufEmpty(t *testing.T) {
	tr := &fakeTransport{}
	fired := false
	lb := New(tr, func([]byte, bool) {})
	lb.SetShutdownCB(func() { fired = true })
	lb.Shutdown()
	assert.True(t, fired)
}
