// Package monitor provides bit and frame error accounting of a chain.
package monitor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"pipelined.dev/chain"
)

// Socket names of the check task.
const (
	// U is the reference socket, filled with source bits.
	U = "U"
	// V is the decoded socket.
	V = "V"
	// TaskName is the name of the check task.
	TaskName = "check_errors"
)

type (
	// BFER counts bit and frame errors. Counters are safe to read while
	// the check task is executed by any number of threads.
	BFER struct {
		k         int
		maxFE     uint64
		maxFrames uint64
		task      *chain.Task

		frames atomic.Uint64
		fe     atomic.Uint64
		be     atomic.Uint64

		mu        sync.Mutex
		done      chan struct{}
		once      *sync.Once
		listeners []Listener
	}

	// Option configures a monitor.
	Option func(*BFER)

	// Unit is a result of a single checked frame.
	Unit struct {
		Seq       uint64
		BitErrors int
		Failed    bool
	}

	// Listener is notified after every checked frame. It's called from
	// monitor workers, so implementations must be safe for concurrent use
	// if check task has more than one thread.
	Listener interface {
		OnUnitComplete(Unit)
	}

	// ListenerFunc adapts a function to the Listener interface.
	ListenerFunc func(Unit)

	// Snapshot is a copy of monitor counters.
	Snapshot struct {
		K           int
		Frames      uint64
		FrameErrors uint64
		BitErrors   uint64
	}
)

// OnUnitComplete calls f(u).
func (f ListenerFunc) OnUnitComplete(u Unit) {
	f(u)
}

// New returns a monitor which compares frames of k bits and achieves its
// limit once maxFE frame errors are counted.
func New(k, maxFE int, options ...Option) (*BFER, error) {
	if k < 1 || maxFE < 1 {
		return nil, fmt.Errorf("monitor: k %d and max frame errors %d must be positive", k, maxFE)
	}
	m := &BFER{
		k:     k,
		maxFE: uint64(maxFE),
		done:  make(chan struct{}),
		once:  &sync.Once{},
	}
	for _, option := range options {
		option(m)
	}
	m.task = chain.MustTask(TaskName, m.check, chain.Fast, chain.Input[int32](U, k), chain.Input[int32](V, k))
	return m, nil
}

// WithMaxFrames limits the number of checked frames. Zero means no limit.
func WithMaxFrames(n uint64) Option {
	return func(m *BFER) {
		m.maxFrames = n
	}
}

// WithListener registers listener of checked frames.
func WithListener(l Listener) Option {
	return func(m *BFER) {
		m.listeners = append(m.listeners, l)
	}
}

// Task returns the check task with U and V input sockets.
func (m *BFER) Task() *chain.Task {
	return m.task
}

// AddListener registers listener of checked frames. It must not be called
// while the check task is running.
func (m *BFER) AddListener(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

func (m *BFER) check(f *chain.Frame) error {
	u, v := chain.In[int32](f, 0), chain.In[int32](f, 1)
	var be int
	for i := range u {
		if u[i] != v[i] {
			be++
		}
	}
	m.be.Add(uint64(be))
	fe := m.fe.Load()
	if be > 0 {
		fe = m.fe.Add(1)
	}
	frames := m.frames.Add(1)
	if fe >= m.maxFE || (m.maxFrames > 0 && frames >= m.maxFrames) {
		m.mu.Lock()
		m.once.Do(func() { close(m.done) })
		m.mu.Unlock()
	}

	unit := Unit{Seq: f.Seq, BitErrors: be, Failed: be > 0}
	m.mu.Lock()
	listeners := m.listeners
	m.mu.Unlock()
	for _, l := range listeners {
		l.OnUnitComplete(unit)
	}
	return nil
}

// FELimitAchieved returns true once frame errors reach the limit. It stays
// true until reset.
func (m *BFER) FELimitAchieved() bool {
	return m.fe.Load() >= m.maxFE
}

// FrameLimitAchieved returns true once the number of frames reaches the
// frame limit.
func (m *BFER) FrameLimitAchieved() bool {
	return m.maxFrames > 0 && m.frames.Load() >= m.maxFrames
}

// Done returns a channel which is closed when any limit is achieved.
func (m *BFER) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// MaxFE returns the frame errors limit.
func (m *BFER) MaxFE() int {
	return int(m.maxFE)
}

// Snapshot returns current values of counters.
func (m *BFER) Snapshot() Snapshot {
	return Snapshot{
		K:           m.k,
		Frames:      m.frames.Load(),
		FrameErrors: m.fe.Load(),
		BitErrors:   m.be.Load(),
	}
}

// Reset zeroes counters. It must not be called while the check task is
// running.
func (m *BFER) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames.Store(0)
	m.fe.Store(0)
	m.be.Store(0)
	m.done = make(chan struct{})
	m.once = &sync.Once{}
}

// BER returns bit error rate.
func (s Snapshot) BER() float64 {
	if s.Frames == 0 {
		return 0
	}
	return float64(s.BitErrors) / float64(s.Frames*uint64(s.K))
}

// FER returns frame error rate.
func (s Snapshot) FER() float64 {
	if s.Frames == 0 {
		return 0
	}
	return float64(s.FrameErrors) / float64(s.Frames)
}

// Bits returns number of checked information bits.
func (s Snapshot) Bits() uint64 {
	return s.Frames * uint64(s.K)
}
