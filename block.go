package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/chain/log"
)

var defaultLogger logrus.FieldLogger = log.GetLogger()

var (
	// errEndOfStream is returned by emitter when source is exhausted.
	errEndOfStream = errors.New("end of stream")
	// errConsumerGone is returned by emitter when a consumer stopped
	// reading its input before the end of stream.
	errConsumerGone = errors.New("consumer gone")
)

type (
	// Block wraps a task into a schedulable unit. Every input socket of the
	// task is backed by a bounded buffer and the task is executed by a pool
	// of workers. Blocks bound together must be run, joined and reset as a
	// group, which is what Pipeline does.
	Block struct {
		id         string
		name       string
		task       *Task
		bufferSize int
		threads    int
		log        logrus.FieldLogger

		mu      sync.Mutex
		frozen  bool
		edges   []edge     // per input socket
		inlets  []*inlet   // per input socket
		outlets [][]*inlet // per output socket, inlets of consumers

		state  state
		abort  func(error)
		done   chan struct{}
		err    error
		joined bool
	}

	// BlockOption configures a block.
	BlockOption func(*Block)

	// edge binds input socket to output socket of producer.
	edge struct {
		producer *Block
		out      int
	}

	// inlet is a buffer of input socket. It's recreated on every reset
	// because producer closes it when the stream ends. Consumer closes gone
	// when it stops reading.
	inlet struct {
		block *Block
		ch    chan message
		gone  chan struct{}
	}

	// outlet is a run-time view of consumer inlet.
	outlet struct {
		ch   chan<- message
		gone <-chan struct{}
	}

	// message is a main structure for block transport.
	message struct {
		seq  uint64
		data any
	}

	job struct {
		frame Frame
		done  chan error
	}
)

// NewBlock wraps the task into a block with buffers of bufferSize frames
// and threads workers.
func NewBlock(t *Task, bufferSize, threads int, options ...BlockOption) (*Block, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil task", ErrInvalidBlock)
	}
	if bufferSize < 1 || threads < 1 {
		return nil, fmt.Errorf("%w: task %s: buffer size %d and threads %d must be positive", ErrInvalidBlock, t.name, bufferSize, threads)
	}
	b := &Block{
		id:         xid.New().String(),
		name:       t.name,
		task:       t,
		bufferSize: bufferSize,
		threads:    threads,
		log:        defaultLogger,
		edges:      make([]edge, len(t.inputs)),
		inlets:     make([]*inlet, len(t.inputs)),
		outlets:    make([][]*inlet, len(t.outputs)),
	}
	for i := range b.inlets {
		b.inlets[i] = &inlet{block: b}
		b.inlets[i].reset(bufferSize)
	}
	for _, option := range options {
		option(b)
	}
	return b, nil
}

// MustBlock is like NewBlock but panics on error.
func MustBlock(t *Task, bufferSize, threads int, options ...BlockOption) *Block {
	b, err := NewBlock(t, bufferSize, threads, options...)
	if err != nil {
		panic(err)
	}
	return b
}

// Named sets name of the block. Task name is used by default.
func Named(name string) BlockOption {
	return func(b *Block) {
		b.name = name
	}
}

// WithBlockLogger sets logger of the block.
func WithBlockLogger(l logrus.FieldLogger) BlockOption {
	return func(b *Block) {
		b.log = l
	}
}

// ID returns unique id of the block.
func (b *Block) ID() string {
	return b.id
}

// String returns name of the block.
func (b *Block) String() string {
	return b.name
}

// Task returns the task wrapped by the block.
func (b *Block) Task() *Task {
	return b.task
}

// Tasks returns tasks executed by the block.
func (b *Block) Tasks() []*Task {
	return []*Task{b.task}
}

// State returns current state of the block.
func (b *Block) State() State {
	return b.state.load()
}

// Run starts the block and returns immediately. Blocks without inputs
// generate frames until stop is closed or the task returns io.EOF. Other
// blocks run until their inputs are closed. Cancellation of ctx aborts the
// execution without draining.
func (b *Block) Run(ctx context.Context, stop <-chan struct{}) error {
	return b.run(ctx, stop, nil)
}

func (b *Block) run(ctx context.Context, stop <-chan struct{}, abort func(error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.state.load(); s != Idle {
		return fmt.Errorf("run block %s in %s state: %w", b, s, ErrSequence)
	}
	for i := range b.edges {
		if b.edges[i].producer == nil {
			return fmt.Errorf("block %s: input %s is not bound: %w", b, b.task.inputs[i].Name, ErrPipelineIncomplete)
		}
	}
	b.frozen = true

	ins := make([]<-chan message, len(b.inlets))
	gone := make([]chan struct{}, len(b.inlets))
	for i := range b.inlets {
		ins[i], gone[i] = b.inlets[i].ch, b.inlets[i].gone
	}
	outs := make([][]outlet, len(b.outlets))
	for o := range b.outlets {
		outs[o] = make([]outlet, 0, len(b.outlets[o]))
		for _, in := range b.outlets[o] {
			outs[o] = append(outs[o], outlet{ch: in.ch, gone: in.gone})
		}
	}

	b.abort = abort
	b.done = make(chan struct{})
	b.err = nil
	b.joined = false
	b.state.store(Running)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan *job, b.threads)
	order := make(chan *job, b.threads)
	g.Go(func() error {
		defer func() {
			for _, c := range gone {
				close(c)
			}
		}()
		return b.gather(gctx, stop, ins, jobs, order)
	})
	for i := 0; i < b.threads; i++ {
		g.Go(func() error {
			return b.work(gctx, jobs)
		})
	}
	g.Go(func() error {
		return b.emit(gctx, order, outs)
	})
	go b.supervise(g)
	b.log.WithFields(logrus.Fields{"block": b.name, "id": b.id}).Debug("started")
	return nil
}

// Join blocks until all goroutines of the block are done. Stage failure
// is returned if the task failed.
func (b *Block) Join() error {
	b.mu.Lock()
	if b.state.load() == Idle {
		b.mu.Unlock()
		return fmt.Errorf("join block %s before run: %w", b, ErrSequence)
	}
	done := b.done
	b.mu.Unlock()

	<-done

	b.mu.Lock()
	defer b.mu.Unlock()
	b.joined = true
	return b.err
}

// Reset clears buffers, statistics and state of the joined block. It's a
// no-op for idle block.
func (b *Block) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch s := b.state.load(); {
	case s == Idle:
		return nil
	case s != Stopped || !b.joined:
		return fmt.Errorf("reset block %s in %s state before join: %w", b, s, ErrSequence)
	}
	for i := range b.inlets {
		b.inlets[i].reset(b.bufferSize)
	}
	b.task.resetStats()
	b.abort = nil
	b.done = nil
	b.err = nil
	b.joined = false
	b.state.store(Idle)
	return nil
}

// supervise waits for all goroutines and marks block as stopped.
func (b *Block) supervise(g *errgroup.Group) {
	err := g.Wait()
	if errors.Is(err, errEndOfStream) || errors.Is(err, errConsumerGone) {
		err = nil
	}
	b.mu.Lock()
	b.err = err
	b.state.store(Stopped)
	close(b.done)
	b.mu.Unlock()
	if err != nil {
		b.log.WithFields(logrus.Fields{"block": b.name, "id": b.id}).WithError(err).Debug("failed")
	}
}

// fail aborts all blocks of the run.
func (b *Block) fail(err error) error {
	if b.abort != nil {
		b.abort(err)
	}
	return err
}

// gather assembles frames from inputs and passes them to workers. Order
// channel keeps the sequence of frames for emitter.
func (b *Block) gather(ctx context.Context, stop <-chan struct{}, ins []<-chan message, jobs, order chan<- *job) error {
	defer close(jobs)
	defer close(order)
	defer b.state.transition(Running, Draining)
	var seq uint64
	for {
		j := &job{done: make(chan error, 1)}
		if len(ins) == 0 {
			select {
			case <-stop:
				return nil
			case <-ctx.Done():
				return nil
			default:
			}
			j.frame.Seq = seq
			seq++
		} else {
			j.frame.in = make([]any, len(ins))
			for i := range ins {
				var (
					m  message
					ok bool
				)
				select {
				case m, ok = <-ins[i]:
				case <-ctx.Done():
					return nil
				}
				if !ok {
					return b.endOfStream(ctx, ins, i)
				}
				if i == 0 {
					j.frame.Seq = m.seq
				} else if b.task.conf.Checked && m.seq != j.frame.Seq {
					return b.fail(&StageError{
						Block: b.name,
						Task:  b.task.name,
						Frame: j.frame.Seq,
						Err:   fmt.Errorf("input %s: got frame %d", b.task.inputs[i].Name, m.seq),
					})
				}
				j.frame.in[i] = m.data
			}
		}
		select {
		case order <- j:
		case <-ctx.Done():
			return nil
		}
		select {
		case jobs <- j:
		case <-ctx.Done():
			return nil
		}
	}
}

// endOfStream checks that all inputs are closed at the same frame.
func (b *Block) endOfStream(ctx context.Context, ins []<-chan message, closed int) error {
	uneven := closed > 0
	for k := closed + 1; k < len(ins) && !uneven; k++ {
		select {
		case _, ok := <-ins[k]:
			uneven = ok
		case <-ctx.Done():
			return nil
		}
	}
	if !uneven || ctx.Err() != nil {
		return nil
	}
	return b.fail(&StageError{
		Block: b.name,
		Task:  b.task.name,
		Err:   fmt.Errorf("input %s: uneven end of stream", b.task.inputs[closed].Name),
	})
}

// work executes the task for every received job.
func (b *Block) work(ctx context.Context, jobs <-chan *job) error {
	for j := range jobs {
		if err := ctx.Err(); err != nil {
			j.done <- err
			continue
		}
		j.done <- b.execute(&j.frame)
	}
	return nil
}

func (b *Block) execute(f *Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	b.task.allocate(f)
	return b.task.execute(f)
}

// emit sends results to consumers in the order frames were gathered.
// Outputs are closed when emitter is done. If any consumer stops reading,
// the block stops too, so it never blocks on a dead inlet.
func (b *Block) emit(ctx context.Context, order <-chan *job, outs [][]outlet) error {
	defer func() {
		for o := range outs {
			for _, out := range outs[o] {
				close(out.ch)
			}
		}
	}()
	for j := range order {
		var err error
		select {
		case err = <-j.done:
		case <-ctx.Done():
			return nil
		}
		switch {
		case err == nil:
		case err == io.EOF && len(b.task.inputs) == 0:
			b.state.transition(Running, Draining)
			return errEndOfStream
		case ctx.Err() != nil:
			return nil
		default:
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return b.fail(&StageError{
				Block: b.name,
				Task:  b.task.name,
				Frame: j.frame.Seq,
				Err:   err,
			})
		}
		for o := range outs {
			m := message{seq: j.frame.Seq, data: j.frame.out[o]}
			for _, out := range outs[o] {
				select {
				case out.ch <- m:
				case <-out.gone:
					b.log.WithFields(logrus.Fields{"block": b.name, "frame": j.frame.Seq}).Debug("consumer gone")
					return errConsumerGone
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
	return nil
}

func (in *inlet) reset(bufferSize int) {
	in.ch = make(chan message, bufferSize)
	in.gone = make(chan struct{})
}
