package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Pipeline drives a set of bound blocks. The only valid sequence of calls
// is RunAll, JoinAll and ResetAll. Bindings are frozen at first run.
type Pipeline struct {
	uid    string
	name   string
	blocks []*Block
	log    logrus.FieldLogger

	mu      sync.Mutex
	graph   *graph
	running bool
	parent  context.Context
	cancel  context.CancelCauseFunc
}

// Option provides a way to set functional parameters to pipeline.
type Option func(p *Pipeline) error

// New creates a new pipeline of blocks. Blocks are started and joined in
// the provided order.
func New(blocks []*Block, options ...Option) (*Pipeline, error) {
	p := &Pipeline{
		uid:    xid.New().String(),
		blocks: append([]*Block(nil), blocks...),
		log:    defaultLogger,
	}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// WithLogger sets logger to Pipeline.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) error {
		p.log = l
		return nil
	}
}

// WithName sets name to Pipeline.
func WithName(n string) Option {
	return func(p *Pipeline) error {
		p.name = n
		return nil
	}
}

func (p *Pipeline) String() string {
	if p.name == "" {
		return p.uid
	}
	return p.name
}

// Blocks returns blocks of the pipeline.
func (p *Pipeline) Blocks() []*Block {
	return append([]*Block(nil), p.blocks...)
}

// Tasks returns tasks of every block.
func (p *Pipeline) Tasks() [][]*Task {
	tasks := make([][]*Task, 0, len(p.blocks))
	for _, b := range p.blocks {
		tasks = append(tasks, b.Tasks())
	}
	return tasks
}

// Edges returns bindings of the pipeline. Bindings are known only after
// the first run.
func (p *Pipeline) Edges() []Edge {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.graph == nil {
		return nil
	}
	return append([]Edge(nil), p.graph.edges...)
}

// State returns aggregated state of blocks.
func (p *Pipeline) State() State {
	var idle, running, draining int
	for _, b := range p.blocks {
		switch b.State() {
		case Idle:
			idle++
		case Running:
			running++
		case Draining:
			draining++
		}
	}
	switch {
	case idle == len(p.blocks):
		return Idle
	case running > 0:
		return Running
	case draining > 0:
		return Draining
	}
	return Stopped
}

// RunAll starts all blocks. Sources stop producing frames when stop is
// closed and the rest of blocks drain in-flight frames. Cancellation of ctx
// or failure of any block aborts the run.
func (p *Pipeline) RunAll(ctx context.Context, stop <-chan struct{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("run pipeline %s: already running: %w", p, ErrSequence)
	}
	if p.graph == nil {
		g, err := freeze(p.blocks)
		if err != nil {
			return fmt.Errorf("run pipeline %s: %w", p, err)
		}
		p.graph = g
	}
	for _, b := range p.blocks {
		if s := b.State(); s != Idle {
			return fmt.Errorf("run pipeline %s: block %s is %s: %w", p, b, s, ErrSequence)
		}
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	for i, b := range p.blocks {
		if err := b.run(runCtx, stop, cancel); err != nil {
			cancel(err)
			for _, started := range p.blocks[:i] {
				_ = started.Join()
			}
			return fmt.Errorf("run pipeline %s: %w", p, err)
		}
	}
	p.parent = ctx
	p.cancel = cancel
	p.running = true
	p.log.WithFields(logrus.Fields{"pipeline": p.String(), "blocks": len(p.blocks)}).Debug("running")
	return nil
}

// JoinAll waits for all blocks in declaration order and returns their
// failures. Parent context error is returned if the run was cancelled and
// none of blocks failed.
func (p *Pipeline) JoinAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return fmt.Errorf("join pipeline %s: not running: %w", p, ErrSequence)
	}
	var err error
	for _, b := range p.blocks {
		err = multierr.Append(err, b.Join())
	}
	if err == nil {
		err = p.parent.Err()
	}
	p.cancel(nil)
	p.running = false
	p.parent, p.cancel = nil, nil
	p.log.WithFields(logrus.Fields{"pipeline": p.String()}).WithError(err).Debug("joined")
	return err
}

// ResetAll resets all joined blocks.
func (p *Pipeline) ResetAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("reset pipeline %s: not joined: %w", p, ErrSequence)
	}
	var err error
	for _, b := range p.blocks {
		err = multierr.Append(err, b.Reset())
	}
	return err
}

// Stats returns statistics of all blocks. It's not available while
// pipeline is running.
func (p *Pipeline) Stats() ([]BlockStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil, fmt.Errorf("stats of pipeline %s: not joined: %w", p, ErrSequence)
	}
	stats := make([]BlockStats, 0, len(p.blocks))
	for _, b := range p.blocks {
		stats = append(stats, b.Stats())
	}
	return stats, nil
}
