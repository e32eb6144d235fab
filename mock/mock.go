// Package mock provides mocks for pipeline tasks and allows to execute
// integration tests.
package mock

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"pipelined.dev/chain"
)

// Source mocks a task without inputs. It generates frames of Size
// elements with Value until Limit frames are produced.
type Source struct {
	counter
	Name     string
	Size     int
	Limit    int
	Value    int32
	Interval time.Duration
	Config   chain.Config
	Failure
}

// Task returns a task with a single "out" socket.
func (m *Source) Task() *chain.Task {
	return chain.MustTask(name(m.Name, "source"), func(f *chain.Frame) error {
		if err := m.fail(f.Seq); err != nil {
			return err
		}
		if m.Limit > 0 && f.Seq >= uint64(m.Limit) {
			return io.EOF
		}
		time.Sleep(m.Interval)
		out := chain.Out[int32](f, 0)
		for i := range out {
			out[i] = m.Value
		}
		m.advance(len(out))
		return nil
	}, m.Config, chain.Output[int32]("out", m.Size))
}

// Processor mocks a task which copies "in" socket into "out" socket.
// Every CorruptEvery-th frame is altered.
type Processor struct {
	counter
	Name         string
	Size         int
	Delay        time.Duration
	CorruptEvery int
	Config       chain.Config
	Failure
}

// Task returns a task with "in" and "out" sockets.
func (m *Processor) Task() *chain.Task {
	return chain.MustTask(name(m.Name, "processor"), func(f *chain.Frame) error {
		if err := m.fail(f.Seq); err != nil {
			return err
		}
		time.Sleep(m.Delay)
		in, out := chain.In[int32](f, 0), chain.Out[int32](f, 0)
		copy(out, in)
		if m.CorruptEvery > 0 && (f.Seq+1)%uint64(m.CorruptEvery) == 0 {
			out[0] = ^out[0]
		}
		m.advance(len(in))
		return nil
	}, m.Config, chain.Input[int32]("in", m.Size), chain.Output[int32]("out", m.Size))
}

// Sink mocks a task with a single "in" socket. It tracks order of
// received frames, so it should be executed by a single thread.
type Sink struct {
	counter
	Name   string
	Size   int
	Delay  time.Duration
	Config chain.Config
	Failure

	mu        sync.Mutex
	next      uint64
	unordered int
}

// Task returns a task with "in" socket.
func (m *Sink) Task() *chain.Task {
	return chain.MustTask(name(m.Name, "sink"), func(f *chain.Frame) error {
		if err := m.fail(f.Seq); err != nil {
			return err
		}
		time.Sleep(m.Delay)
		m.mu.Lock()
		if f.Seq != m.next {
			m.unordered++
		}
		m.next = f.Seq + 1
		m.mu.Unlock()
		m.advance(len(chain.In[int32](f, 0)))
		return nil
	}, m.Config, chain.Input[int32]("in", m.Size))
}

// Unordered returns number of frames received out of order.
func (m *Sink) Unordered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unordered
}

// Reset resets counters of the sink.
func (m *Sink) Reset() {
	m.mu.Lock()
	m.next, m.unordered = 0, 0
	m.mu.Unlock()
	m.counter.Reset()
}

// Failure allows to inject task errors.
type Failure struct {
	// ErrorOnCall is returned for every frame starting from ErrorAfter.
	ErrorOnCall error
	ErrorAfter  uint64
}

func (f *Failure) fail(seq uint64) error {
	if f.ErrorOnCall != nil && seq >= f.ErrorAfter {
		return f.ErrorOnCall
	}
	return nil
}

// counter counts frames and elements. It's safe for concurrent use.
type counter struct {
	frames   atomic.Int64
	elements atomic.Int64
}

func (c *counter) advance(size int) {
	c.frames.Add(1)
	c.elements.Add(int64(size))
}

// Count returns frames and elements metrics.
func (c *counter) Count() (int, int) {
	return int(c.frames.Load()), int(c.elements.Load())
}

// Reset resets counter's metrics.
func (c *counter) Reset() {
	c.frames.Store(0)
	c.elements.Store(0)
}

func name(n, fallback string) string {
	if n == "" {
		return fallback
	}
	return n
}
