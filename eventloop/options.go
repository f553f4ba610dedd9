package eventloop

import (
	"time"

	"github.com/atheme/go-mowgli/internal/obslog"
)

// loopOptions holds configuration applied at Loop construction.
type loopOptions struct {
	maxPollTimeout time.Duration
	logger         obslog.Logger
	backend        string // forces a poller backend name; "" means auto-detect
}

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithMaxPollTimeout caps how long a single poll wait may block when no
// timer is pending, bounding how quickly the loop notices Break() or newly
// Submitted work on platforms without a wake fd. Default 250ms.
func WithMaxPollTimeout(d time.Duration) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if d <= 0 {
			return &RangeError{Message: "eventloop: max poll timeout must be positive"}
		}
		opts.maxPollTimeout = d
		return nil
	}}
}

// WithLogger attaches a structured logger used for poller wait errors and
// panics recovered from callbacks. A nil logger (the default) uses a no-op
// implementation.
func WithLogger(logger obslog.Logger) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithBackend selects a poller backend by name. Only "null" (the timer-only
// backend) is recognized; any other name, "" included, selects the
// platform's backend (epoll on Linux, kqueue on Darwin, poll(2) on other
// Unixes), which is fixed at build time.
func WithBackend(name string) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.backend = name
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		maxPollTimeout: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = obslog.NewNoOp()
	}
	return cfg, nil
}
