// Package vio provides a pluggable transport abstraction over a connected
// file descriptor, grounded on libmowgli's mowgli_vio_t (vio/vio.c,
// vio/vio_sockets.c, vio/vio_openssl.c).
//
// The original C implementation holds an op-table of function pointers
// (mowgli_vio_ops_t) that TLS support overwrites in place to splice itself
// between the caller and the raw socket ops. Go has no equivalent of
// mutating a vtable after construction without an explicit interface
// wrapper, so this package replaces the op-table with a Transport
// interface: NewTLSTransport composes a base Transport at construction time
// instead of monkey-patching one, giving the same "insert a layer between
// the caller and the socket" behaviour through ordinary composition.
package vio

import (
	"net"

	"github.com/atheme/go-mowgli/eventloop"
	"github.com/atheme/go-mowgli/sockaddr"
)

// ErrorType mirrors mowgli_vio_error_type_t: how a Transport failure should
// be interpreted upstream.
type ErrorType int

const (
	ErrNone ErrorType = iota
	ErrRemoteHangup
	ErrErrCode
	ErrAPI
	ErrCustom
)

// ErrorOp mirrors mowgli_vio_error_op_t: which operation failed.
type ErrorOp int

const (
	OpNone ErrorOp = iota
	OpSocket
	OpListen
	OpAccept
	OpConnect
	OpRead
	OpWrite
	OpBind
	OpSeek
	OpTell
	OpOther
)

// TransportError is the structured failure record every Transport method
// returns on failure, the Go equivalent of mowgli_vio_error_t.
type TransportError struct {
	Op    ErrorOp
	Type  ErrorType
	Code  int
	Cause error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "vio: transport error"
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Flag mirrors the MOWGLI_VIO_FLAGS_* bitfield.
type Flag uint32

const (
	FlagConnecting Flag = 1 << iota
	FlagSSLConnecting
	FlagClosed
	FlagClient
	FlagServer
	FlagNeedRead
	FlagNeedWrite
)

// Transport is the pluggable I/O surface a caller drives instead of the
// op-table mowgli_vio_ops_t exposed. A plain TCP/UDP socket transport and a
// TLS-wrapping transport both implement it; callers (linebuf in
// particular) only ever see this interface.
type Transport interface {
	// Connect finishes the transport's own setup over an already-connected
	// socket; it does not open a connection to addr. The plain transport
	// does nothing here (DialTCP makes the TCP connection). The TLS
	// transport runs its handshake to completion, blocking until it
	// succeeds or fails; there is no non-blocking or resumable handshake.
	Connect(addr *sockaddr.SockAddr) error
	// Read behaves like io.Reader but returns a *TransportError on failure,
	// distinguishing EAGAIN (0, nil) from a hard error.
	Read(buf []byte) (int, error)
	// Write behaves like io.Writer but returns a *TransportError on failure.
	Write(buf []byte) (int, error)
	// Close releases the underlying fd. Idempotent.
	Close() error
	// FD returns the underlying file descriptor for poller registration.
	FD() int
	// HasFlag/SetFlag expose the connection-state bitfield so Linebuf and
	// callers can inspect e.g. FlagNeedRead/FlagNeedWrite during a TLS
	// handshake without a type switch.
	HasFlag(f Flag) bool
	SetFlag(f Flag, set bool)
}

// baseTransport implements Transport directly over a *net.TCPConn,
// grounded on mowgli_vio_default_* in vio_sockets.c.
type baseTransport struct {
	fd    int
	conn  *net.TCPConn // Read, Write and Close go through this conn; fd is kept for poller registration
	flags Flag
}

// NewTransport wraps an already-connected *net.TCPConn (e.g. the result of
// a VIO-driven non-blocking connect) as a Transport.
func NewTransport(conn *net.TCPConn) (Transport, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, &TransportError{Op: OpSocket, Type: ErrAPI, Cause: err}
	}
	var fd int
	if err := raw.Control(func(d uintptr) { fd = int(d) }); err != nil {
		return nil, &TransportError{Op: OpSocket, Type: ErrAPI, Cause: err}
	}
	return &baseTransport{fd: fd, conn: conn}, nil
}

func (t *baseTransport) Connect(addr *sockaddr.SockAddr) error {
	// Connection establishment for this Transport happens via net.Dialer in
	// the caller (see DialTCP); Connect here only exists to satisfy
	// Transport for symmetry with the TLS transport, which does drive its own
	// handshake after the underlying connection exists.
	return nil
}

func (t *baseTransport) Read(buf []byte) (int, error) {
	n, err := t.conn.Read(buf)
	if err != nil {
		return n, classifyErr(OpRead, err)
	}
	return n, nil
}

func (t *baseTransport) Write(buf []byte) (int, error) {
	n, err := t.conn.Write(buf)
	if err != nil {
		return n, classifyErr(OpWrite, err)
	}
	return n, nil
}

func (t *baseTransport) Close() error {
	t.SetFlag(FlagClosed, true)
	return t.conn.Close()
}

func (t *baseTransport) FD() int { return t.fd }

func (t *baseTransport) HasFlag(f Flag) bool { return t.flags&f != 0 }

func (t *baseTransport) SetFlag(f Flag, set bool) {
	if set {
		t.flags |= f
	} else {
		t.flags &^= f
	}
}

func classifyErr(op ErrorOp, err error) error {
	if err == nil {
		return nil
	}
	if err.Error() == "EOF" {
		return &TransportError{Op: op, Type: ErrRemoteHangup, Cause: err}
	}
	return &TransportError{Op: op, Type: ErrErrCode, Cause: err}
}

// DialTCP connects to addr over TCP on a separate goroutine and reports the
// result through onConnect, which runs on the loop goroutine via
// Loop.Submit. The resulting fd is not registered with the loop.
func DialTCP(loop *eventloop.Loop, addr *sockaddr.SockAddr, onConnect func(Transport, error)) error {
	host, port := addr.Info()
	d := net.Dialer{}
	go func() {
		conn, err := d.Dial("tcp", net.JoinHostPort(host, portStr(port)))
		loop.Submit(func() {
			if err != nil {
				onConnect(nil, &TransportError{Op: OpConnect, Type: ErrErrCode, Cause: err})
				return
			}
			tr, terr := NewTransport(conn.(*net.TCPConn))
			if terr != nil {
				onConnect(nil, terr)
				return
			}
			tr.SetFlag(FlagClient, true)
			onConnect(tr, nil)
		})
	}()
	return nil
}

func portStr(p uint16) string {
	return net.JoinHostPort("", itoa(int(p)))[1:]
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [6]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
