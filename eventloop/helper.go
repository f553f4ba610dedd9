package eventloop

import (
	"os"
	"os/exec"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
)

// HelperReadFunc receives bytes read from a helper's inbound pipe. It is
// called on the owning Loop's goroutine.
type HelperReadFunc func(data []byte)

// Helper is a child worker connected to its owner over a duplex pipe pair,
// the Go equivalent of libmowgli's mowgli_eventloop_helper_proc_t: an `in`
// pollable the owner reads from and an `out` pipe file it writes to.
type Helper struct {
	loop *Loop
	in   *Pollable // readable: data from the child
	// inFile keeps the read-side *os.File referenced so its finalizer never
	// closes the fd out from under the raw Pollable registered on it; the
	// fd itself is closed explicitly in Destroy.
	inFile *os.File
	out    *os.File // writable: data to the child

	cmd *exec.Cmd // nil for an in-process (goroutine) helper

	readFn HelperReadFunc

	closeOnce sync.Once
	closed    chan struct{}
}

// SpawnHelper starts an in-process helper: a new goroutine running its own
// Loop, connected to the caller's loop over a duplex OS pipe pair. This is
// the Go analogue of mowgli_helper_create's fork+trampoline, since the Go
// runtime cannot survive a raw fork; isolating the worker onto its own
// goroutine and Loop gives the same "independent event loop talking over a
// pipe" shape without forking the process.
//
// start runs on the new goroutine, receiving the child-side Loop and a
// Helper wrapping the child's view of the pipe (its in/out swapped).
func (l *Loop) SpawnHelper(start func(childLoop *Loop, childSide *Helper)) (*Helper, error) {
	parentReadFD, childWriteFD, err := os.Pipe()
	if err != nil {
		return nil, WrapError("eventloop: helper pipe", err)
	}
	childReadFD, parentWriteFD, err := os.Pipe()
	if err != nil {
		parentReadFD.Close()
		childWriteFD.Close()
		return nil, WrapError("eventloop: helper pipe", err)
	}

	parentIn, err := l.CreatePollable(int(parentReadFD.Fd()))
	if err != nil {
		parentReadFD.Close()
		childWriteFD.Close()
		childReadFD.Close()
		parentWriteFD.Close()
		return nil, err
	}

	h := &Helper{loop: l, in: parentIn, inFile: parentReadFD, out: parentWriteFD, closed: make(chan struct{})}

	go func() {
		childLoop, err := New()
		if err != nil {
			return
		}
		defer childLoop.Close()
		childIn, err := childLoop.CreatePollable(int(childReadFD.Fd()))
		if err != nil {
			return
		}
		childSide := &Helper{loop: childLoop, in: childIn, inFile: childReadFD, out: childWriteFD, closed: make(chan struct{})}
		start(childLoop, childSide)
	}()

	return h, nil
}

// SpawnHelperExec starts path as a real OS subprocess, passing it the
// child ends of a duplex pipe through IN_FD and OUT_FD environment
// variables (file descriptors 3 and 4, via exec.Cmd.ExtraFiles), matching
// mowgli_helper_spawn's getenv("IN_FD")/getenv("OUT_FD") convention. The
// child process is expected to call AttachFromEnv.
func (l *Loop) SpawnHelperExec(path string, args []string) (*Helper, error) {
	parentReadFD, childWriteFD, err := os.Pipe()
	if err != nil {
		return nil, WrapError("eventloop: helper pipe", err)
	}
	childReadFD, parentWriteFD, err := os.Pipe()
	if err != nil {
		parentReadFD.Close()
		childWriteFD.Close()
		return nil, WrapError("eventloop: helper pipe", err)
	}

	cmd := exec.Command(path, args...)
	cmd.ExtraFiles = []*os.File{childReadFD, childWriteFD} // fd 3, fd 4 in the child
	cmd.Env = append(os.Environ(), "IN_FD=3", "OUT_FD=4")
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		parentReadFD.Close()
		parentWriteFD.Close()
		childReadFD.Close()
		childWriteFD.Close()
		return nil, WrapError("eventloop: helper spawn", err)
	}
	childReadFD.Close()
	childWriteFD.Close()

	parentIn, err := l.CreatePollable(int(parentReadFD.Fd()))
	if err != nil {
		_ = cmd.Process.Kill()
		parentReadFD.Close()
		parentWriteFD.Close()
		return nil, err
	}

	return &Helper{loop: l, in: parentIn, inFile: parentReadFD, out: parentWriteFD, cmd: cmd, closed: make(chan struct{})}, nil
}

// AttachFromEnv builds a Helper and its own Loop from the IN_FD/OUT_FD
// environment variables left by SpawnHelperExec, the Go analogue of
// mowgli_helper_setup. Returns an error (not a bare nil, unlike the C
// version's "run from the cmdline" fallback) so a misconfigured process
// fails fast instead of silently operating with no pipes.
func AttachFromEnv() (*Loop, *Helper, error) {
	inStr, outStr := os.Getenv("IN_FD"), os.Getenv("OUT_FD")
	if inStr == "" || outStr == "" {
		return nil, nil, &TypeError{Message: "eventloop: IN_FD/OUT_FD not set; not running as a helper"}
	}
	inFD, err := strconv.Atoi(inStr)
	if err != nil {
		return nil, nil, &TypeError{Message: "eventloop: invalid IN_FD", Cause: err}
	}
	outFD, err := strconv.Atoi(outStr)
	if err != nil {
		return nil, nil, &TypeError{Message: "eventloop: invalid OUT_FD", Cause: err}
	}

	loop, err := New()
	if err != nil {
		return nil, nil, err
	}
	in, err := loop.CreatePollable(inFD)
	if err != nil {
		loop.Close()
		return nil, nil, err
	}
	return loop, &Helper{loop: loop, in: in, out: os.NewFile(uintptr(outFD), "helper-out"), closed: make(chan struct{})}, nil
}

// SetReadCB installs the callback invoked whenever data arrives on the
// helper's inbound pipe. Passing nil disables reading, matching
// mowgli_helper_set_read_cb(NULL).
func (h *Helper) SetReadCB(fn HelperReadFunc) error {
	h.readFn = fn
	if fn == nil {
		return h.in.SetSelect(PollRead, nil)
	}
	return h.in.SetSelect(PollRead, func(p *Pollable) {
		var buf [4096]byte
		n, err := readFD(p.FD(), buf[:])
		if n > 0 {
			h.readFn(buf[:n])
		}
		if err != nil && n == 0 {
			h.Destroy()
		}
	})
}

// Write sends data to the helper over its outbound pipe.
func (h *Helper) Write(data []byte) (int, error) {
	return h.out.Write(data)
}

// Destroy kills the child process of an exec helper and releases this
// side's inbound pollable and both of its pipe files. For an in-process
// helper it only closes this side's pipe ends; the helper goroutine and its
// Loop are not stopped.
func (h *Helper) Destroy() {
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	h.in.Destroy()
	if h.inFile != nil {
		_ = h.inFile.Close()
	}
	_ = h.out.Close()
	h.closeOnce.Do(func() { close(h.closed) })
}

// Wait blocks until an exec helper's process has exited and its inbound
// pipe has drained (Destroy called), fanning the two completions in with
// an errgroup the way a supervisor tracks a worker's exit status and its
// last output together rather than picking one and racing the other.
func (h *Helper) Wait() error {
	if h.cmd == nil {
		return &TypeError{Message: "eventloop: Wait is only valid for a SpawnHelperExec helper"}
	}
	var eg errgroup.Group
	eg.Go(h.cmd.Wait)
	eg.Go(func() error {
		<-h.closed
		return nil
	})
	return eg.Wait()
}
