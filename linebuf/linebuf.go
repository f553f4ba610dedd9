// Package linebuf provides record framing over a vio.Transport: a bounded
// read buffer that splits inbound bytes on a configurable delimiter set and
// hands complete lines to a callback, and a bounded write buffer that
// appends a configurable terminator to each outbound line, grounded on
// libmowgli's linebuf/linebuf.c.
package linebuf

import (
	"bytes"
	"fmt"

	"github.com/atheme/go-mowgli/eventloop"
	"github.com/atheme/go-mowgli/vio"
)

// Flag mirrors the MOWGLI_LINEBUF_* bitfield.
type Flag uint32

const (
	FlagShuttingDown Flag = 1 << iota
	FlagReadBufFull
	FlagWriteBufFull
	FlagLineHasNullChar
)

// ReadLineFunc receives a single framed line, stripped of its delimiter.
// hasNull reports whether the line contained an embedded NUL byte before
// framing, the Go equivalent of MOWGLI_LINEBUF_LINE_HASNULLCHAR — callers
// handling untrusted input should treat a true here as suspicious.
type ReadLineFunc func(line []byte, hasNull bool)

// ShutdownFunc is called once the write buffer has fully drained after
// Shutdown, or immediately if it was already empty.
type ShutdownFunc func()

const defaultBufLen = 65536

// Linebuf frames a byte stream into lines over a vio.Transport, attached to
// a Loop via Attach. One Linebuf owns exactly one Transport.
type Linebuf struct {
	transport vio.Transport
	loop      *eventloop.Loop
	pollable  *eventloop.Pollable

	delim string // any byte in this set terminates a line on read
	endl  string // appended to every written line

	readBuf, writeBuf []byte
	readMax, writeMax int

	flags Flag

	onLine     ReadLineFunc
	onShutdown ShutdownFunc
	onError    func(error)
}

// New creates a Linebuf with the default "\r\n" delimiter/terminator and
// 64KiB read/write buffers, wrapping transport.
func New(transport vio.Transport, onLine ReadLineFunc) *Linebuf {
	lb := &Linebuf{
		transport:           transport,
		delim:               "\r\n",
		endl:                "\r\n",
		readMax:  defaultBufLen,
		writeMax: defaultBufLen,
		onLine:   onLine,
	}
	lb.readBuf = make([]byte, 0, lb.readMax)
	lb.writeBuf = make([]byte, 0, lb.writeMax)
	return lb
}

// SetDelim changes the inbound delimiter set and outbound terminator.
// Both must be non-empty.
func (lb *Linebuf) SetDelim(delim, endl string) error {
	if delim == "" || endl == "" {
		return &eventloop.TypeError{Message: "linebuf: delim and endl must be non-empty"}
	}
	lb.delim = delim
	lb.endl = endl
	return nil
}

// SetBufLen resizes the read and write buffer capacities.
func (lb *Linebuf) SetBufLen(readLen, writeLen int) error {
	if readLen <= 0 || writeLen <= 0 {
		return &eventloop.RangeError{Message: "linebuf: buffer length must be positive"}
	}
	lb.readMax, lb.writeMax = readLen, writeLen
	return nil
}

// SetShutdownCB installs the callback run once the write buffer has
// drained after Shutdown.
func (lb *Linebuf) SetShutdownCB(fn ShutdownFunc) { lb.onShutdown = fn }

// SetErrorCB installs the callback run on a buffer-full or transport error,
// the Go equivalent of the error reaching mowgli_vio_error's caller-set
// error callback.
func (lb *Linebuf) SetErrorCB(fn func(error)) { lb.onError = fn }

// Attach registers the wrapped transport's fd with loop, arming the read
// side immediately; the write side is armed lazily, only while data is
// pending, matching mowgli_linebuf_attach_to_eventloop plus the
// edge-triggered NEEDWRITE dance in mowgli_linebuf_write_data.
func (lb *Linebuf) Attach(loop *eventloop.Loop) error {
	if lb.transport.HasFlag(vio.FlagClosed) {
		return &eventloop.TypeError{Message: "linebuf: cannot attach a closed transport"}
	}
	p, err := loop.CreatePollable(lb.transport.FD())
	if err != nil {
		return err
	}
	lb.loop = loop
	lb.pollable = p
	return p.SetSelect(eventloop.PollRead, lb.handleReadable)
}

// Detach unregisters from the loop without closing the transport.
func (lb *Linebuf) Detach() {
	if lb.pollable != nil {
		lb.pollable.Destroy()
		lb.pollable = nil
	}
	lb.loop = nil
}

// Destroy detaches from the loop and closes the transport.
func (lb *Linebuf) Destroy() {
	if lb.loop != nil {
		lb.Detach()
	}
	_ = lb.transport.Close()
}

func (lb *Linebuf) handleReadable(*eventloop.Pollable) {
	if len(lb.readBuf) == lb.readMax {
		lb.flags |= FlagReadBufFull
		lb.raiseError(eventloop.WrapError("linebuf: read buffer full", nil))
		return
	}

	chunk := make([]byte, lb.readMax-len(lb.readBuf))
	n, err := lb.transport.Read(chunk)
	if n <= 0 {
		if err == nil {
			return // EAGAIN equivalent, nothing more to do this tick
		}
		lb.pollable.SetSelect(eventloop.PollRead, nil)
		lb.doShutdown()
		return
	}

	lb.readBuf = append(lb.readBuf, chunk[:n]...)

	if lb.transport.HasFlag(vio.FlagNeedRead) {
		lb.pollable.SetSelect(eventloop.PollRead, lb.handleReadable)
	}
	if lb.transport.HasFlag(vio.FlagNeedWrite) {
		lb.pollable.SetSelect(eventloop.PollWrite, lb.handleWritable)
	}

	lb.process()
}

func (lb *Linebuf) handleWritable(*eventloop.Pollable) {
	n, err := lb.transport.Write(lb.writeBuf)
	if n <= 0 {
		if err != nil {
			lb.pollable.SetSelect(eventloop.PollWrite, nil)
			return
		}
	}

	lb.writeBuf = lb.writeBuf[n:]

	if len(lb.writeBuf) == 0 {
		if !lb.transport.HasFlag(vio.FlagNeedWrite) {
			lb.pollable.SetSelect(eventloop.PollWrite, nil)
		}
		if lb.flags&FlagShuttingDown != 0 {
			lb.doShutdown()
		}
	} else {
		lb.pollable.SetSelect(eventloop.PollWrite, lb.handleWritable)
	}
}

// Writef formats and queues a line for write, mirroring
// mowgli_linebuf_writef.
func (lb *Linebuf) Writef(format string, args ...any) error {
	return lb.Write([]byte(fmt.Sprintf(format, args...)))
}

// Write queues data as a single line, appending the configured terminator.
// Returns a RangeError if the write buffer lacks room.
func (lb *Linebuf) Write(data []byte) error {
	if lb.flags&FlagShuttingDown != 0 {
		return nil
	}
	if len(lb.writeBuf)+len(data)+len(lb.endl) > lb.writeMax {
		lb.flags |= FlagWriteBufFull
		lb.raiseError(&eventloop.RangeError{Message: "linebuf: write buffer full"})
		return &eventloop.RangeError{Message: "linebuf: write buffer full"}
	}
	lb.writeBuf = append(lb.writeBuf, data...)
	lb.writeBuf = append(lb.writeBuf, lb.endl...)
	if lb.pollable != nil {
		lb.pollable.SetSelect(eventloop.PollWrite, lb.handleWritable)
	}
	return nil
}

// Shutdown marks the stream for graceful close: no further writes are
// accepted, and the shutdown callback fires once the write buffer drains
// (or immediately, if it's already empty).
func (lb *Linebuf) Shutdown() {
	lb.flags |= FlagShuttingDown
	if len(lb.writeBuf) == 0 {
		lb.doShutdown()
	}
}

// process splits the read buffer on any byte in delim, delivering each
// complete line to onLine and compacting any leftover partial line to the
// front of the buffer.
func (lb *Linebuf) process() {
	buf := lb.readBuf
	lineStart := 0
	hasNull := false
	lineCount := 0

	i := 0
	for i < len(buf) {
		if bytes.IndexByte([]byte(lb.delim), buf[i]) < 0 {
			if buf[i] == 0 {
				hasNull = true
			}
			i++
			continue
		}

		lineCount++
		line := buf[lineStart:i]
		if lb.flags&FlagShuttingDown == 0 {
			lb.onLine(line, hasNull)
		}

		for i < len(buf) && bytes.IndexByte([]byte(lb.delim), buf[i]) >= 0 {
			i++
		}
		lineStart = i
		hasNull = false
	}

	if lineCount == 0 && len(buf) == lb.readMax {
		lb.flags |= FlagReadBufFull
		lb.raiseError(eventloop.WrapError("linebuf: read buffer full with no complete line", nil))
		return
	}

	if lineStart != i {
		remaining := append([]byte(nil), buf[lineStart:]...)
		lb.readBuf = remaining
	} else {
		lb.readBuf = lb.readBuf[:0]
	}
}

func (lb *Linebuf) doShutdown() {
	if lb.onShutdown != nil {
		lb.onShutdown()
	}
}

func (lb *Linebuf) raiseError(err error) {
	if lb.onError != nil {
		lb.onError(err)
	}
}
