package eventloop

import "time"

// TimerCallback is invoked on the loop goroutine when a Timer fires.
type TimerCallback func()

// Timer is a scheduled callback, one-shot or recurring. Recurring timers
// reschedule deadline = fireTime + period after firing, so a timer that
// falls behind (the loop was blocked
// processing a slow callback) does not fire a catch-up burst: skipped
// ticks simply collapse into the next single fire, matching libmowgli's
// timer list semantics.
type Timer struct {
	id       uint64
	deadline time.Time
	period   time.Duration // zero for one-shot
	cb       TimerCallback
	index    int // heap index, maintained by container/heap
	canceled bool
}

// ID uniquely identifies a Timer within its Loop.
func (t *Timer) ID() uint64 { return t.id }

// timerHeap is a min-heap of *Timer ordered by deadline, implementing
// container/heap.Interface.
type timerHeap []*Timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// now returns the monotonic instant the loop uses for all timer math.
// time.Now() on every supported platform already returns a value with a
// monotonic reading attached, so no separate epoch calibration is needed;
// the loop only ever compares two time.Time values taken this way.
func now() time.Time { return time.Now() }
