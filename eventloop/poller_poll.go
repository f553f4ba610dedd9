//go:build unix && !linux && !darwin

package eventloop

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollBackend is the portable poll(2)-based fallback for Unix variants
// without a native epoll/kqueue implementation here. O(n) per wait instead
// of O(ready), but correct and dependency-free beyond x/sys/unix.
type pollBackend struct {
	mu   sync.Mutex
	fds  map[int]*Pollable
	dirs map[int]PollDirection
}

func newPollerBackend() pollerBackend {
	return &pollBackend{fds: map[int]*Pollable{}, dirs: map[int]PollDirection{}}
}

func (b *pollBackend) name() string  { return "poll" }
func (b *pollBackend) setup() error  { return nil }
func (b *pollBackend) shutdown() error {
	return nil
}

func (b *pollBackend) attach(p *Pollable, dir PollDirection) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fds[p.fd] = p
	b.dirs[p.fd] = dir
	return nil
}

func (b *pollBackend) modify(p *Pollable, dir PollDirection) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirs[p.fd] = dir
	return nil
}

func (b *pollBackend) detach(p *Pollable) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fds, p.fd)
	delete(b.dirs, p.fd)
	return nil
}

func (b *pollBackend) wait(timeoutMs int) ([]polledEvent, error) {
	b.mu.Lock()
	fds := make([]unix.PollFd, 0, len(b.fds))
	pollables := make([]*Pollable, 0, len(b.fds))
	for fd, p := range b.fds {
		var events int16
		dir := b.dirs[fd]
		if dir&PollRead != 0 {
			events |= unix.POLLIN
		}
		if dir&PollWrite != 0 {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
		pollables = append(pollables, p)
	}
	b.mu.Unlock()

	if len(fds) == 0 {
		if timeoutMs > 0 {
			// Nothing to wait on; the loop's timer heap drives wakeups, so
			// just sleep out the budget without a real syscall.
			time.Sleep(time.Duration(timeoutMs) * time.Millisecond)
		}
		return nil, nil
	}

	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if isBenignPollerErr(err) {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]polledEvent, 0, n)
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		hup := pfd.Revents&unix.POLLHUP != 0
		errd := pfd.Revents&unix.POLLERR != 0
		out = append(out, polledEvent{
			pollable: pollables[i],
			readable: pfd.Revents&unix.POLLIN != 0 || hup || errd,
			writable: pfd.Revents&unix.POLLOUT != 0 || hup || errd,
			errored:  errd,
			hangup:   hup,
		})
	}
	return out, nil
}

func isBenignPollerErr(err error) bool {
	switch err {
	case nil, unix.EINTR, unix.EAGAIN:
		return true
	default:
		return false
	}
}
