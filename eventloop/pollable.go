package eventloop

import "sync/atomic"

// PollDirection is a bitmask of I/O directions a Pollable can be interested
// in. The poller backends translate it into the native interest mask
// (EPOLLIN/EPOLLOUT, EVFILT_READ/EVFILT_WRITE, POLLIN/POLLOUT).
type PollDirection uint8

const (
	PollRead PollDirection = 1 << iota
	PollWrite
)

// ReadyCallback is invoked by the loop, on the loop goroutine, when a
// Pollable becomes ready in one direction.
type ReadyCallback func(p *Pollable)

// Pollable pairs a file descriptor with independent read/write readiness
// callbacks. It is the Go equivalent of libmowgli's mowgli_eventloop_pollable_t:
// the interest mask always reflects exactly which callbacks are currently
// non-nil, and destruction is deferred to a reap list so a Pollable that is
// destroyed from within its own callback is not freed mid-dispatch.
type Pollable struct {
	loop *Loop
	fd   int

	onRead  ReadyCallback
	onWrite ReadyCallback

	interest PollDirection
	attached bool

	dead       atomic.Bool
	generation uint64
}

// FD returns the underlying file descriptor.
func (p *Pollable) FD() int { return p.fd }

// Generation returns the handle generation, taken from a loop-wide counter
// that CreatePollable increments, so every Pollable of a Loop has a
// distinct value even when it wraps a reused fd. Callers that stash a
// *Pollable across callback boundaries can compare generations to detect a
// reused fd instead of relying on pointer identity.
func (p *Pollable) Generation() uint64 { return p.generation }

// SetSelect installs (or clears, if cb is nil) the callback for dir and
// updates the poller's interest mask accordingly. Must be called from the
// loop goroutine.
func (p *Pollable) SetSelect(dir PollDirection, cb ReadyCallback) error {
	if p.dead.Load() {
		return &TypeError{Message: "eventloop: pollable is destroyed"}
	}
	prev := p.interest
	if dir&PollRead != 0 {
		p.onRead = cb
	}
	if dir&PollWrite != 0 {
		p.onWrite = cb
	}
	var next PollDirection
	if p.onRead != nil {
		next |= PollRead
	}
	if p.onWrite != nil {
		next |= PollWrite
	}
	p.interest = next
	if !p.attached {
		if next == 0 {
			return nil
		}
		if err := p.loop.backend.attach(p, next); err != nil {
			return err
		}
		p.attached = true
		return nil
	}
	if next == prev {
		return nil
	}
	if next == 0 {
		if err := p.loop.backend.detach(p); err != nil {
			return err
		}
		p.attached = false
		return nil
	}
	return p.loop.backend.modify(p, next)
}

// Trigger synthesizes readiness for dir on the next tick without waiting
// for the poller, matching mowgli_pollable_trigger's use in the helper and
// test harnesses to force an immediate callback.
func (p *Pollable) Trigger(dir PollDirection) {
	p.loop.SubmitInternal(func() {
		if p.dead.Load() {
			return
		}
		if dir&PollRead != 0 && p.onRead != nil {
			p.onRead(p)
		}
		if dir&PollWrite != 0 && p.onWrite != nil {
			p.onWrite(p)
		}
	})
}

// Destroy marks the pollable dead and schedules it for reaping once the
// current dispatch round (if any) completes. Safe to call from within the
// pollable's own callback.
func (p *Pollable) Destroy() {
	if !p.dead.CompareAndSwap(false, true) {
		return
	}
	p.loop.reap(p)
}

// CreatePollable returns a Pollable for fd with no interest set; the fd is
// handed to the loop's poller only once SetSelect installs a callback. Must
// be called from the loop goroutine.
func (l *Loop) CreatePollable(fd int) (*Pollable, error) {
	if fd < 0 {
		return nil, &RangeError{Message: "eventloop: negative fd"}
	}
	l.pollableGen++
	return &Pollable{loop: l, fd: fd, generation: l.pollableGen}, nil
}

// reap appends a dead pollable to the loop's reap list; drained after the
// current poll dispatch round.
func (l *Loop) reap(p *Pollable) {
	l.reapMu.Lock()
	l.reapList = append(l.reapList, p)
	l.reapMu.Unlock()
}

// drainReapList detaches and releases every pollable queued for reaping.
// Called once per tick, after dispatch, never from inside a callback.
func (l *Loop) drainReapList() {
	l.reapMu.Lock()
	pending := l.reapList
	l.reapList = nil
	l.reapMu.Unlock()
	for _, p := range pending {
		if p.attached {
			_ = l.backend.detach(p)
			p.attached = false
		}
	}
}
