package tcpreactor

import "sync/atomic"

// LoopState is the lifecycle of an EventLoop.
//
//	Awake -> Running -> Sleeping -> Running -> ... -> Terminated
//
// Only the Awake -> Running entry is a CAS (it rejects a second Loop call);
// after that the loop goroutine alone stores Running, Sleeping and finally
// Terminated directly. StateTerminating is defined but EventLoop never
// enters it.
type LoopState uint32

const (
	StateAwake LoopState = iota
	StateRunning
	StateSleeping
	StateTerminating
	StateTerminated
)

func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "awake"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// loopState is a cache-line-padded atomic state machine, adapted from the
// teacher's FastState.
type loopState struct {
	_ [64]byte
	v atomic.Uint32
	_ [60]byte
}

func newLoopState() *loopState {
	s := &loopState{}
	s.v.Store(uint32(StateAwake))
	return s
}

func (s *loopState) Load() LoopState { return LoopState(s.v.Load()) }

func (s *loopState) Store(state LoopState) { s.v.Store(uint32(state)) }

func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

func (s *loopState) TransitionAny(validFrom []LoopState, to LoopState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
	return false
}

func (s *loopState) IsTerminal() bool { return s.Load() == StateTerminated }
