// Package eventloop implements a single-threaded, cooperative reactor: a
// run loop that multiplexes timers and file descriptor readiness onto one
// goroutine per [Loop], the way libmowgli's eventloop core does in C.
//
// # Architecture
//
// A [Loop] owns a min-heap of [Timer] deadlines and a platform [pollerBackend]
// (epoll on Linux, kqueue on Darwin, poll(2) elsewhere). Callers register
// interest in a file descriptor by creating a [Pollable], which pairs the fd
// with independent read/write/error callbacks; the loop dispatches readiness
// in two passes per wait return (all read-ready pollables, then all
// write-ready pollables), matching the two-phase dispatch libmowgli performs
// inside mowgli_eventloop_run_once.
//
// Destroying a [Pollable] mid-dispatch does not free it immediately: it is
// marked dead and appended to the loop's reap list, which is drained once the
// current dispatch round finishes. This mirrors the deferred-destruction
// discipline of the C pollable_t (an object live during a callback must not
// be freed until the iteration completes) while using a generation counter
// instead of raw pointer reuse to catch stale handles.
//
// # Helper processes
//
// [Loop.SpawnHelper] starts a goroutine running its own [Loop], connected
// back to the parent over a duplex pipe pair wrapped as pollables on both
// ends, matching libmowgli's mowgli_helper_t.
//
// # Thread safety
//
// [Loop.Submit] may be called from any goroutine; it wakes a sleeping loop
// via a self-pipe (or eventfd on Linux). Timer and pollable registration are
// only safe from the loop's own goroutine, consistent with libmowgli's
// eventloop being single-threaded by design.
package eventloop
