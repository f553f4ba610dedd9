package vio

import (
	"net"

	"github.com/atheme/go-mowgli/eventloop"
	"github.com/atheme/go-mowgli/sockaddr"
)

// Listener accepts inbound connections, grounded on
// mowgli_vio_default_bind/listen/accept in vio_sockets.c. Go's net package
// already folds bind+listen into net.Listen, so Listener's job reduces to
// registering the resulting fd with a Loop and handing each accepted
// connection back as a Transport.
type Listener struct {
	loop *eventloop.Loop
	ln   *net.TCPListener
	pol  *eventloop.Pollable
}

// ListenTCP binds and listens on addr, invoking onAccept for every inbound
// connection on the loop goroutine. Mirrors the accept-loop shape of
// mowgli_vio_default_accept, which loops recv-new-connection then reports
// the new fd to the caller.
func ListenTCP(loop *eventloop.Loop, addr *sockaddr.SockAddr, onAccept func(Transport, error)) (*Listener, error) {
	host, port := addr.Info()
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP(host), Port: int(port)})
	if err != nil {
		return nil, &TransportError{Op: OpListen, Type: ErrErrCode, Cause: err}
	}

	raw, err := ln.SyscallConn()
	if err != nil {
		ln.Close()
		return nil, &TransportError{Op: OpListen, Type: ErrAPI, Cause: err}
	}
	var fd int
	if err := raw.Control(func(d uintptr) { fd = int(d) }); err != nil {
		ln.Close()
		return nil, &TransportError{Op: OpListen, Type: ErrAPI, Cause: err}
	}

	l := &Listener{loop: loop, ln: ln}
	pol, err := loop.CreatePollable(fd)
	if err != nil {
		ln.Close()
		return nil, err
	}
	l.pol = pol

	if err := pol.SetSelect(eventloop.PollRead, func(*eventloop.Pollable) {
		conn, err := ln.AcceptTCP()
		if err != nil {
			onAccept(nil, &TransportError{Op: OpAccept, Type: ErrErrCode, Cause: err})
			return
		}
		tr, terr := NewTransport(conn)
		if terr != nil {
			onAccept(nil, terr)
			return
		}
		tr.SetFlag(FlagServer, true)
		onAccept(tr, nil)
	}); err != nil {
		ln.Close()
		return nil, err
	}

	return l, nil
}

// Close stops accepting and releases the listening socket.
func (l *Listener) Close() error {
	l.pol.Destroy()
	return l.ln.Close()
}

// Addr returns the listener's bound local address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }
