package chain

import "sync/atomic"

// State identifies one of the possible states a block can be in.
type State int32

const (
	// Idle block can be started.
	Idle State = iota
	// Running block is executing its task.
	Running
	// Draining block doesn't accept new frames, but in-flight frames are
	// still being processed.
	Draining
	// Stopped block has no running goroutines. It has to be joined and
	// reset before next run.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// state is an atomic holder of State.
type state struct {
	v atomic.Int32
}

func (s *state) load() State {
	return State(s.v.Load())
}

func (s *state) store(v State) {
	s.v.Store(int32(v))
}

// transition changes the state only if current value is from.
func (s *state) transition(from, to State) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}
