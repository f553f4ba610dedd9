package eventloop

import "time"

// nullBackend accepts no fd interest at all; wait simply sleeps out the
// requested budget. Selected via WithBackend("null") for timer-only loops
// (e.g. a DNS resolver under test with no real sockets) and as the last
// resort on platforms with neither epoll nor kqueue nor poll(2).
type nullBackend struct{}

func newNullBackend() pollerBackend { return nullBackend{} }

func (nullBackend) name() string    { return "null" }
func (nullBackend) setup() error    { return nil }
func (nullBackend) shutdown() error { return nil }

func (nullBackend) attach(*Pollable, PollDirection) error {
	return &TypeError{Message: "eventloop: null backend does not support pollables"}
}

func (nullBackend) modify(*Pollable, PollDirection) error {
	return &TypeError{Message: "eventloop: null backend does not support pollables"}
}

func (nullBackend) detach(*Pollable) error { return nil }

func (nullBackend) wait(timeoutMs int) ([]polledEvent, error) {
	if timeoutMs > 0 {
		time.Sleep(time.Duration(timeoutMs) * time.Millisecond)
	}
	return nil, nil
}
