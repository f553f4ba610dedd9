package eventloop

import "sync/atomic"

// LoopState is the run state of a [Loop].
//
// State machine:
//
//	Idle (0)       --Run()-->        Running (3)
//	Running (3)    --poll() CAS-->   Sleeping (2)
//	Sleeping (2)   --poll return-->  Running (3)
//	Running (3)    --Run returns-->  Terminated (1)
//
// Break only sets a flag that Run checks after each tick. Loop never
// enters Terminating (4).
//
// Values are deliberately non-sequential (Terminated=1, Sleeping=2) to
// match the historical numbering libmowgli's eventloop state enum used,
// since several callers compare against the raw constants.
type LoopState uint64

const (
	StateIdle        LoopState = 0
	StateTerminated  LoopState = 1
	StateSleeping    LoopState = 2
	StateRunning     LoopState = 3
	StateTerminating LoopState = 4
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// FastState is a lock-free state machine guarded by atomic CAS, with
// cache-line padding to avoid false sharing on the hot Running<->Sleeping
// transition every poll iteration performs.
type FastState struct { // betteralign:ignore
	_ [64]byte
	v atomic.Uint64
	_ [56]byte
}

func NewFastState() *FastState {
	s := &FastState{}
	s.v.Store(uint64(StateIdle))
	return s
}

func (s *FastState) Load() LoopState { return LoopState(s.v.Load()) }

func (s *FastState) Store(state LoopState) { s.v.Store(uint64(state)) }

func (s *FastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

func (s *FastState) TransitionAny(validFrom []LoopState, to LoopState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint64(from), uint64(to)) {
			return true
		}
	}
	return false
}

func (s *FastState) IsTerminal() bool { return s.Load() == StateTerminated }

func (s *FastState) IsRunning() bool {
	state := s.Load()
	return state == StateRunning || state == StateSleeping
}

func (s *FastState) CanAcceptWork() bool {
	state := s.Load()
	return state == StateIdle || state == StateRunning || state == StateSleeping
}
