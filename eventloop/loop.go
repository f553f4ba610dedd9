package eventloop

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Standard errors.
var (
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")
	ErrLoopTerminated     = errors.New("eventloop: loop has been terminated")
	ErrReentrantRun       = errors.New("eventloop: cannot call Run from within the loop")
)

// Loop is a single-threaded reactor: one goroutine processes timers,
// pollable readiness, and submitted tasks in strict per-tick order
// (I/O callbacks, reads then writes, then due timers, then submitted
// tasks), the same ordering libmowgli's mowgli_eventloop_run_once gives its
// internal call sites.
type Loop struct {
	id uint64

	state   *FastState
	backend pollerBackend
	opts    *loopOptions

	timers      timerHeap
	timersMu    sync.Mutex
	nextTimerID atomic.Uint64

	externalMu sync.Mutex
	external   []func()

	wakeReadFD, wakeWriteFD int
	wakePollable            *Pollable
	wakePending             atomic.Bool

	pollableGen uint64 // loop-goroutine-owned, no lock needed

	reapMu   sync.Mutex
	reapList []*Pollable

	loopGoroutineID atomic.Uint64
	tickCount       uint64

	breakRequested atomic.Bool
	closeOnce      sync.Once
	loopDone       chan struct{}
}

var loopIDCounter atomic.Uint64

// New creates a Loop with its poller backend initialized but not started;
// call Run, RunOnce, or TimeoutOnce to pump it.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		id:       loopIDCounter.Add(1),
		state:    NewFastState(),
		opts:     cfg,
		loopDone: make(chan struct{}),
	}

	l.backend = selectBackend(cfg.backend)
	if err := l.backend.setup(); err != nil {
		return nil, WrapError("eventloop: poller setup", err)
	}

	readFD, writeFD, err := createWakeFd()
	if err != nil {
		_ = l.backend.shutdown()
		return nil, WrapError("eventloop: wake fd setup", err)
	}
	l.wakeReadFD, l.wakeWriteFD = readFD, writeFD

	if _, ok := l.backend.(nullBackend); !ok {
		p, err := l.CreatePollable(readFD)
		if err != nil {
			closeWakeFd(readFD, writeFD)
			_ = l.backend.shutdown()
			return nil, err
		}
		if err := p.SetSelect(PollRead, func(*Pollable) { drainWakeFd(readFD) }); err != nil {
			closeWakeFd(readFD, writeFD)
			_ = l.backend.shutdown()
			return nil, err
		}
		l.wakePollable = p
	}

	return l, nil
}

func selectBackend(forced string) pollerBackend {
	switch forced {
	case "null":
		return newNullBackend()
	case "":
		return newPollerBackend()
	default:
		return newPollerBackend()
	}
}

// CurrentTickTime returns the current monotonic instant (a fresh now()
// reading on every call; it is not cached per tick).
func (l *Loop) CurrentTickTime() time.Time { return now() }

// Backend reports the active poller backend's name ("epoll", "kqueue",
// "poll", "null"), mainly for diagnostics and tests asserting fallback
// selection.
func (l *Loop) Backend() string { return l.backend.name() }

// isLoopThread reports whether the calling goroutine is the loop's own.
func (l *Loop) isLoopThread() bool {
	loopID := l.loopGoroutineID.Load()
	return loopID != 0 && loopID == goroutineID()
}

// Submit enqueues fn to run on the loop goroutine in the last phase of a
// tick, after I/O dispatch and due timers. Safe to call from any goroutine,
// including the loop's own, where fn is never run inline: a call from an
// I/O or timer callback runs fn later in the same tick, and a call from a
// submitted function runs it in the following tick.
func (l *Loop) Submit(fn func()) error {
	if l.state.Load() == StateTerminated {
		return ErrLoopTerminated
	}
	l.externalMu.Lock()
	l.external = append(l.external, fn)
	l.externalMu.Unlock()
	l.wake()
	return nil
}

// SubmitInternal is Submit's alias used by loop-internal producers (e.g.
// Pollable.Trigger) that don't need a distinct queue; kept as a separate
// name so call sites document intent.
func (l *Loop) SubmitInternal(fn func()) { _ = l.Submit(fn) }

func (l *Loop) wake() {
	if l.wakeWriteFD == 0 && l.wakeReadFD == 0 {
		return // no wake fd was created; poll budget drives wakeups
	}
	if !l.wakePending.CompareAndSwap(false, true) {
		return
	}
	_ = signalWakeFd(l.wakeWriteFD)
}

// ScheduleTimer schedules cb to run after d. If recurring, cb fires every
// d thereafter, rescheduling from the fire time rather than the call time
// so a delayed tick never produces a burst of catch-up fires.
func (l *Loop) ScheduleTimer(d time.Duration, recurring bool, cb TimerCallback) (*Timer, error) {
	if d <= 0 {
		return nil, &RangeError{Message: "eventloop: timer period must be positive"}
	}
	if cb == nil {
		return nil, &TypeError{Message: "eventloop: timer callback must not be nil"}
	}
	t := &Timer{
		id:       l.nextTimerID.Add(1),
		deadline: now().Add(d),
		cb:       cb,
	}
	if recurring {
		t.period = d
	}
	l.timersMu.Lock()
	heap.Push(&l.timers, t)
	l.timersMu.Unlock()
	l.wake()
	return t, nil
}

// CancelTimer prevents t from firing again. Safe even if t already fired
// or was already canceled.
func (l *Loop) CancelTimer(t *Timer) {
	l.timersMu.Lock()
	defer l.timersMu.Unlock()
	if t.index >= 0 && t.index < len(l.timers) && l.timers[t.index] == t {
		heap.Remove(&l.timers, t.index)
	}
	t.canceled = true
}

// nextTimerDeadline returns the nearest pending deadline and whether one
// exists.
func (l *Loop) nextTimerDeadline() (time.Time, bool) {
	l.timersMu.Lock()
	defer l.timersMu.Unlock()
	if len(l.timers) == 0 {
		return time.Time{}, false
	}
	return l.timers[0].deadline, true
}

// runTimers fires every timer whose deadline has passed, rescheduling
// recurring ones. Returns the number fired.
func (l *Loop) runTimers() int {
	t0 := now()
	fired := 0
	for {
		l.timersMu.Lock()
		if len(l.timers) == 0 || l.timers[0].deadline.After(t0) {
			l.timersMu.Unlock()
			break
		}
		t := heap.Pop(&l.timers).(*Timer)
		l.timersMu.Unlock()

		if t.canceled {
			continue
		}
		fireTime := now()
		l.safeExecute(t.cb)
		fired++

		if t.period > 0 && !t.canceled {
			t.deadline = fireTime.Add(t.period)
			l.timersMu.Lock()
			heap.Push(&l.timers, t)
			l.timersMu.Unlock()
		}
	}
	return fired
}

func (l *Loop) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.opts.logger.Error("eventloop: recovered panic in callback", nil, "panic", r)
		}
	}()
	fn()
}

// calculateTimeout picks the poll wait budget for the next iteration: the
// time until the nearest timer, capped at opts.maxPollTimeout so the loop
// periodically wakes to notice Break() even without a signaled wake fd.
func (l *Loop) calculateTimeout() int {
	cap := l.opts.maxPollTimeout
	if deadline, ok := l.nextTimerDeadline(); ok {
		if d := deadline.Sub(now()); d < cap {
			if d < 0 {
				return 0
			}
			return int(d / time.Millisecond)
		}
	}
	return int(cap / time.Millisecond)
}

// RunOnce executes a single tick: one bounded poll wait, dispatch of ready
// pollables (reads, then writes), reap-list drain, due timers, and queued
// Submit callbacks. Returns false once Break has been requested, unless
// this tick ran submitted callbacks; pending timers do not keep it going.
func (l *Loop) RunOnce() (bool, error) {
	if l.isLoopThread() {
		return false, ErrReentrantRun
	}
	return l.tick()
}

// TimeoutOnce behaves like RunOnce but bounds the poll wait to at most d,
// even if a pending timer would otherwise justify blocking longer.
func (l *Loop) TimeoutOnce(d time.Duration) (bool, error) {
	if d < 0 {
		d = 0
	}
	saved := l.opts.maxPollTimeout
	if d < saved {
		l.opts.maxPollTimeout = d
	}
	defer func() { l.opts.maxPollTimeout = saved }()
	return l.tick()
}

func (l *Loop) tick() (bool, error) {
	l.loopGoroutineID.Store(goroutineID())
	l.tickCount++

	l.state.TryTransition(StateIdle, StateRunning)
	l.state.TryTransition(StateRunning, StateSleeping)

	timeoutMs := l.calculateTimeout()
	events, err := l.backend.wait(timeoutMs)

	l.state.TryTransition(StateSleeping, StateRunning)

	if err != nil {
		l.opts.logger.Error("eventloop: poller wait failed", err)
		return false, err
	}

	l.wakePending.Store(false)

	for _, ev := range events {
		if ev.pollable == l.wakePollable {
			drainWakeFd(l.wakeReadFD)
			continue
		}
		if ev.readable && !ev.pollable.dead.Load() && ev.pollable.onRead != nil {
			l.safeExecute(func() { ev.pollable.onRead(ev.pollable) })
		}
	}
	for _, ev := range events {
		if ev.pollable == l.wakePollable {
			continue
		}
		// A HUP/ERR condition is delivered as both readable and writable on
		// the same event; if the read pass above destroyed this pollable
		// (the ordinary "remote closed" pattern), it must not also fire the
		// write callback in this same tick.
		if ev.writable && !ev.pollable.dead.Load() && ev.pollable.onWrite != nil {
			l.safeExecute(func() { ev.pollable.onWrite(ev.pollable) })
		}
	}

	l.drainReapList()
	l.runTimers()

	l.externalMu.Lock()
	batch := l.external
	l.external = nil
	l.externalMu.Unlock()
	for _, fn := range batch {
		l.safeExecute(fn)
	}

	if l.breakRequested.Load() && len(batch) == 0 {
		return false, nil
	}
	return true, nil
}

// Run pumps the loop until Break is called or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.TryTransition(StateIdle, StateRunning) {
		return ErrLoopAlreadyRunning
	}
	defer close(l.loopDone)
	for {
		select {
		case <-ctx.Done():
			l.breakRequested.Store(true)
		default:
		}
		more, err := l.tick()
		if err != nil {
			l.state.Store(StateTerminated)
			return err
		}
		if !more && l.breakRequested.Load() {
			l.state.Store(StateTerminated)
			return nil
		}
	}
}

// Break requests the loop stop after the current tick finishes draining
// pending work; it does not abort an in-flight callback.
func (l *Loop) Break() {
	l.breakRequested.Store(true)
	l.wake()
}

// State returns the loop's current run state.
func (l *Loop) State() LoopState { return l.state.Load() }

// Close releases the poller and wake fd. Safe to call multiple times.
func (l *Loop) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.backend.shutdown()
		closeWakeFd(l.wakeReadFD, l.wakeWriteFD)
	})
	return err
}
