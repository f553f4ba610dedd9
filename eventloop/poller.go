// Package eventloop: poller backend contract.
//
// A pollerBackend wraps one OS polling primitive (epoll, kqueue, poll(2),
// or a timer-only null backend) behind six operations: setup, shutdown,
// attach, modify, detach, and wait. wait returns a batch of readiness
// events for the current iteration; the Loop then dispatches them in two
// passes (all reads, then all writes), matching libmowgli's
// mowgli_eventloop_run_once two-phase callback order.
//
// Spurious wakeups (EINTR and EAGAIN, plus ENOENT on the epoll and kqueue
// backends) are swallowed inside wait and reported as a zero-length,
// nil-error batch rather than propagated, since libmowgli treats them as
// "nothing happened, poll again". Any other errno, ETIME included, is
// returned as an error.
package eventloop

// polledEvent is one fd's readiness result from a single wait() call.
type polledEvent struct {
	pollable *Pollable
	readable bool
	writable bool
	errored  bool
	hangup   bool
}

// pollerBackend is the platform polling primitive used by a Loop.
type pollerBackend interface {
	// setup initializes OS resources (epoll/kqueue fd, etc).
	setup() error
	// shutdown releases OS resources. Safe to call once, after which the
	// backend must not be used again.
	shutdown() error
	// attach begins monitoring p for the given interest.
	attach(p *Pollable, dir PollDirection) error
	// modify changes p's interest set.
	modify(p *Pollable, dir PollDirection) error
	// detach stops monitoring p. Idempotent.
	detach(p *Pollable) error
	// wait blocks up to timeoutMs (or indefinitely if negative) for
	// readiness, returning the batch of events observed.
	wait(timeoutMs int) ([]polledEvent, error)
	// name identifies the backend for diagnostics and WithBackend selection.
	name() string
}
