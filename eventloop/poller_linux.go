//go:build linux

package eventloop

import (
	"sync"

	"golang.org/x/sys/unix"
)

// maxFDs bounds the direct-indexed fd table; large enough for any
// realistic ulimit -n without falling back to a map lookup per event.
const maxFDs = 1 << 20

// epollBackend implements pollerBackend using Linux epoll, level-triggered
// interest derived from each Pollable's current direction mask.
type epollBackend struct {
	epfd     int
	eventBuf [256]unix.EpollEvent
	fds      []*Pollable
	mu       sync.RWMutex
}

func newPollerBackend() pollerBackend { return &epollBackend{} }

func (b *epollBackend) name() string { return "epoll" }

func (b *epollBackend) setup() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	b.epfd = fd
	b.fds = make([]*Pollable, maxFDs)
	return nil
}

func (b *epollBackend) shutdown() error {
	if b.epfd <= 0 {
		return nil
	}
	return unix.Close(b.epfd)
}

func (b *epollBackend) attach(p *Pollable, dir PollDirection) error {
	if p.fd >= len(b.fds) {
		return &RangeError{Message: "eventloop: fd exceeds poller table size"}
	}
	b.mu.Lock()
	b.fds[p.fd] = p
	b.mu.Unlock()
	ev := &unix.EpollEvent{Events: dirToEpoll(dir), Fd: int32(p.fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, p.fd, ev); err != nil {
		b.mu.Lock()
		b.fds[p.fd] = nil
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *epollBackend) modify(p *Pollable, dir PollDirection) error {
	ev := &unix.EpollEvent{Events: dirToEpoll(dir), Fd: int32(p.fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, p.fd, ev)
}

func (b *epollBackend) detach(p *Pollable) error {
	if p.fd < len(b.fds) {
		b.mu.Lock()
		b.fds[p.fd] = nil
		b.mu.Unlock()
	}
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, p.fd, nil)
	if isBenignPollerErr(err) {
		return nil
	}
	return err
}

func (b *epollBackend) wait(timeoutMs int) ([]polledEvent, error) {
	n, err := unix.EpollWait(b.epfd, b.eventBuf[:], timeoutMs)
	if err != nil {
		if isBenignPollerErr(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]polledEvent, 0, n)
	for i := 0; i < n; i++ {
		fd := int(b.eventBuf[i].Fd)
		b.mu.RLock()
		p := b.fds[fd]
		b.mu.RUnlock()
		if p == nil {
			continue
		}
		flags := b.eventBuf[i].Events
		hup := flags&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0
		errd := flags&unix.EPOLLERR != 0
		out = append(out, polledEvent{
			pollable: p,
			readable: flags&unix.EPOLLIN != 0 || hup || errd,
			writable: flags&unix.EPOLLOUT != 0 || hup || errd,
			errored:  errd,
			hangup:   hup,
		})
	}
	return out, nil
}

func dirToEpoll(dir PollDirection) uint32 {
	var events uint32
	if dir&PollRead != 0 {
		events |= unix.EPOLLIN
	}
	if dir&PollWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

// isBenignPollerErr reports whether err is one of the spurious errnos the
// loop should treat as "nothing happened" rather than a hard failure:
// EINTR (signal interrupted the wait), EAGAIN/EWOULDBLOCK, ENOENT (fd
// already gone from the interest list on a racing detach).
func isBenignPollerErr(err error) bool {
	switch err {
	case nil, unix.EINTR, unix.EAGAIN, unix.ENOENT:
		return true
	default:
		return false
	}
}
