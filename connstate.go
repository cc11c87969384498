package tcpreactor

import "sync/atomic"

// ConnState is the lifecycle of a TcpConnection.
type ConnState uint32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// connState is a lock-free CAS state machine for a TcpConnection, modeled
// on the loop's state machine but over the four connection states.
type connState struct {
	v atomic.Uint32
}

func newConnState(initial ConnState) *connState {
	s := &connState{}
	s.v.Store(uint32(initial))
	return s
}

func (s *connState) Load() ConnState { return ConnState(s.v.Load()) }

func (s *connState) Store(state ConnState) { s.v.Store(uint32(state)) }

func (s *connState) CompareAndSwap(from, to ConnState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// Swap atomically stores to and returns the previous state.
func (s *connState) Swap(to ConnState) ConnState {
	return ConnState(s.v.Swap(uint32(to)))
}
