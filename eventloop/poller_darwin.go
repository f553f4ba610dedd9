//go:build darwin

package eventloop

import (
	"sync"

	"golang.org/x/sys/unix"
)

const maxFDs = 1 << 20

// kqueueBackend implements pollerBackend using Darwin/BSD kqueue. Read and
// write interest are independent kevent filters, so attach/modify/detach
// translate a PollDirection diff into EV_ADD/EV_DELETE pairs.
type kqueueBackend struct {
	kq       int
	eventBuf [256]unix.Kevent_t
	fds      []*Pollable
	mu       sync.RWMutex
}

func newPollerBackend() pollerBackend { return &kqueueBackend{} }

func (b *kqueueBackend) name() string { return "kqueue" }

func (b *kqueueBackend) setup() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	b.kq = kq
	b.fds = make([]*Pollable, maxFDs)
	return nil
}

func (b *kqueueBackend) shutdown() error {
	if b.kq <= 0 {
		return nil
	}
	return unix.Close(b.kq)
}

func (b *kqueueBackend) attach(p *Pollable, dir PollDirection) error {
	if p.fd >= len(b.fds) {
		return &RangeError{Message: "eventloop: fd exceeds poller table size"}
	}
	b.mu.Lock()
	b.fds[p.fd] = p
	b.mu.Unlock()
	kevs := dirToKevents(p.fd, dir, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevs) == 0 {
		return nil
	}
	if _, err := unix.Kevent(b.kq, kevs, nil, nil); err != nil {
		b.mu.Lock()
		b.fds[p.fd] = nil
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *kqueueBackend) modify(p *Pollable, dir PollDirection) error {
	old := p.interest
	if add := dir &^ old; add != 0 {
		if _, err := unix.Kevent(b.kq, dirToKevents(p.fd, add, unix.EV_ADD|unix.EV_ENABLE), nil, nil); err != nil {
			return err
		}
	}
	if del := old &^ dir; del != 0 {
		_, _ = unix.Kevent(b.kq, dirToKevents(p.fd, del, unix.EV_DELETE), nil, nil)
	}
	return nil
}

func (b *kqueueBackend) detach(p *Pollable) error {
	if p.fd < len(b.fds) {
		b.mu.Lock()
		b.fds[p.fd] = nil
		b.mu.Unlock()
	}
	kevs := dirToKevents(p.fd, PollRead|PollWrite, unix.EV_DELETE)
	_, _ = unix.Kevent(b.kq, kevs, nil, nil)
	return nil
}

func (b *kqueueBackend) wait(timeoutMs int) ([]polledEvent, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{Sec: int64(timeoutMs / 1000), Nsec: int64((timeoutMs % 1000) * 1000000)}
	}
	n, err := unix.Kevent(b.kq, nil, b.eventBuf[:], ts)
	if err != nil {
		if isBenignPollerErr(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]polledEvent, 0, n)
	for i := 0; i < n; i++ {
		fd := int(b.eventBuf[i].Ident)
		if fd < 0 || fd >= len(b.fds) {
			continue
		}
		b.mu.RLock()
		p := b.fds[fd]
		b.mu.RUnlock()
		if p == nil {
			continue
		}
		kev := &b.eventBuf[i]
		hup := kev.Flags&unix.EV_EOF != 0
		errd := kev.Flags&unix.EV_ERROR != 0
		out = append(out, polledEvent{
			pollable: p,
			readable: (kev.Filter == unix.EVFILT_READ) || hup || errd,
			writable: (kev.Filter == unix.EVFILT_WRITE) || hup || errd,
			errored:  errd,
			hangup:   hup,
		})
	}
	return out, nil
}

func dirToKevents(fd int, dir PollDirection, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if dir&PollRead != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if dir&PollWrite != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

// isBenignPollerErr reports whether err should be treated as "nothing
// happened" rather than a hard poller failure.
func isBenignPollerErr(err error) bool {
	switch err {
	case nil, unix.EINTR, unix.EAGAIN, unix.ENOENT:
		return true
	default:
		return false
	}
}
