package chain

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type (
	// Func is the transform executed for every frame. It reads input
	// slices and fills output slices of the frame. Sources return io.EOF
	// when they are exhausted.
	Func func(f *Frame) error

	// Config selects execution path of the task. Zero value is the fast
	// path: no verification, no statistics, no debug output.
	Config struct {
		// Checked verifies shapes of inputs and outputs and alignment of
		// input sequence numbers for every frame.
		Checked bool
		// Stats records execution count and durations.
		Stats bool
		// Debug logs socket data of every frame.
		Debug bool
		// DebugLimit is the number of elements printed per socket in
		// debug mode. Zero prints everything.
		DebugLimit int
	}

	// Task is a named transform with input and output sockets. It's
	// referenced by blocks and never copied.
	Task struct {
		name    string
		fn      Func
		conf    Config
		inputs  []Socket
		outputs []Socket
		log     logrus.FieldLogger

		mu    sync.Mutex
		stats TaskStats
	}

	// TaskStats contains execution counters of the task.
	TaskStats struct {
		Name  string
		Calls uint64
		Total time.Duration
		Min   time.Duration
		Max   time.Duration
	}
)

// Fast is the configuration without checks and statistics.
var Fast = Config{}

// NewTask creates a new task. Socket names must be unique per direction
// and sizes must be positive.
func NewTask(name string, fn Func, conf Config, sockets ...Socket) (*Task, error) {
	if fn == nil {
		return nil, fmt.Errorf("task %s: nil function", name)
	}
	t := &Task{
		name:  name,
		fn:    fn,
		conf:  conf,
		log:   defaultLogger,
		stats: TaskStats{Name: name},
	}
	for _, s := range sockets {
		if s.Size <= 0 || s.alloc == nil {
			return nil, fmt.Errorf("task %s: socket %s: invalid shape", name, s.Name)
		}
		if _, ok := t.socket(s.Dir, s.Name); ok {
			return nil, fmt.Errorf("task %s: duplicate socket %s", name, s)
		}
		if s.Dir == Inbound {
			t.inputs = append(t.inputs, s)
		} else {
			t.outputs = append(t.outputs, s)
		}
	}
	return t, nil
}

// MustTask is like NewTask but panics on error.
func MustTask(name string, fn Func, conf Config, sockets ...Socket) *Task {
	t, err := NewTask(name, fn, conf, sockets...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns name of the task.
func (t *Task) Name() string {
	return t.name
}

// Inputs returns input sockets of the task.
func (t *Task) Inputs() []Socket {
	return append([]Socket(nil), t.inputs...)
}

// Outputs returns output sockets of the task.
func (t *Task) Outputs() []Socket {
	return append([]Socket(nil), t.outputs...)
}

// Stats returns a snapshot of task counters.
func (t *Task) Stats() TaskStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// SetLogger sets logger used for debug output.
func (t *Task) SetLogger(l logrus.FieldLogger) {
	t.log = l
}

func (t *Task) resetStats() {
	t.mu.Lock()
	t.stats = TaskStats{Name: t.name}
	t.mu.Unlock()
}

// socket finds socket index by direction and name.
func (t *Task) socket(dir Direction, name string) (int, bool) {
	sockets := t.inputs
	if dir == Outbound {
		sockets = t.outputs
	}
	for i := range sockets {
		if sockets[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// allocate fills frame outputs with new slices.
func (t *Task) allocate(f *Frame) {
	f.out = make([]any, len(t.outputs))
	for i := range t.outputs {
		f.out[i] = t.outputs[i].alloc()
	}
}

// execute calls the task function for a single frame.
func (t *Task) execute(f *Frame) error {
	if t.conf.Checked {
		if err := check(t.inputs, f.in); err != nil {
			return err
		}
	}
	var start time.Time
	if t.conf.Stats {
		start = time.Now()
	}
	err := t.fn(f)
	if t.conf.Stats {
		t.record(time.Since(start))
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return err
	}
	if t.conf.Checked {
		if err := check(t.outputs, f.out); err != nil {
			return err
		}
	}
	if t.conf.Debug {
		t.debug(f)
	}
	return nil
}

func (t *Task) record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Calls++
	t.stats.Total += d
	if t.stats.Calls == 1 || d < t.stats.Min {
		t.stats.Min = d
	}
	if d > t.stats.Max {
		t.stats.Max = d
	}
}

func (t *Task) debug(f *Frame) {
	fields := logrus.Fields{"task": t.name, "frame": f.Seq}
	for i, s := range t.inputs {
		fields[s.Name] = limit(f.in[i], t.conf.DebugLimit)
	}
	for i, s := range t.outputs {
		fields[s.Name] = limit(f.out[i], t.conf.DebugLimit)
	}
	t.log.WithFields(fields).Debug("executed")
}

func check(sockets []Socket, data []any) error {
	if len(sockets) != len(data) {
		return fmt.Errorf("expected %d sockets, got %d", len(sockets), len(data))
	}
	for i := range sockets {
		if !sockets[i].fits(data[i]) {
			return fmt.Errorf("socket %s: %w: got %T of %d elements", sockets[i], ErrShapeMismatch, data[i], length(data[i]))
		}
	}
	return nil
}

// Avg returns average duration of a call.
func (s TaskStats) Avg() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Calls)
}

func length(v any) int {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return 0
	}
	return rv.Len()
}

// limit returns first n elements of the slice.
func limit(v any, n int) any {
	rv := reflect.ValueOf(v)
	if n <= 0 || rv.Kind() != reflect.Slice || rv.Len() <= n {
		return v
	}
	return rv.Slice(0, n).Interface()
}
