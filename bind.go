package chain

import (
	"fmt"
	"strings"
)

// Edge describes a binding between output socket of producer and input
// socket of consumer.
type Edge struct {
	Producer string
	Output   string
	Consumer string
	Input    string
}

func (e Edge) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", e.Producer, e.Output, e.Consumer, e.Input)
}

// Bind connects input socket of the block to output socket of producer.
// Every input is bound exactly once, output can feed any number of inputs.
// Bindings can't be changed after the first run. Bind is not safe for
// concurrent use.
func (b *Block) Bind(input string, producer *Block, output string) error {
	if producer == nil {
		return &BindError{Consumer: b.name, Input: input, Output: output, Err: fmt.Errorf("%w: nil producer", ErrInvalidBlock)}
	}
	bindErr := func(err error) error {
		return &BindError{Consumer: b.name, Input: input, Producer: producer.name, Output: output, Err: err}
	}
	if producer == b {
		return bindErr(ErrCycle)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	producer.mu.Lock()
	defer producer.mu.Unlock()

	i, ok := b.task.socket(Inbound, input)
	if !ok {
		return bindErr(fmt.Errorf("%w: input %s of task %s", ErrUnknownSocket, input, b.task.name))
	}
	o, ok := producer.task.socket(Outbound, output)
	if !ok {
		return bindErr(fmt.Errorf("%w: output %s of task %s", ErrUnknownSocket, output, producer.task.name))
	}
	if b.frozen || producer.frozen {
		return bindErr(ErrFrozen)
	}
	if b.edges[i].producer != nil {
		return bindErr(fmt.Errorf("%w to %s", ErrAlreadyBound, b.edges[i].producer.name))
	}
	in, out := b.task.inputs[i], producer.task.outputs[o]
	if !in.Fits(out) {
		return bindErr(fmt.Errorf("%w: %v and %v", ErrShapeMismatch, in, out))
	}
	b.edges[i] = edge{producer: producer, out: o}
	producer.outlets[o] = append(producer.outlets[o], b.inlets[i])
	return nil
}

// Bound returns true if input socket is bound.
func (b *Block) Bound(input string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.task.socket(Inbound, input)
	return ok && b.edges[i].producer != nil
}

// graph is the frozen binding graph. Blocks are addressed by their index
// in the pipeline.
type graph struct {
	edges []Edge
	adj   [][]int // producer index to consumer indices
}

// freeze resolves bindings of blocks into index-based graph. Every input
// must be bound to a producer from blocks, every output must feed only
// blocks of the pipeline and the graph must be acyclic.
func freeze(blocks []*Block) (*graph, error) {
	index := make(map[*Block]int, len(blocks))
	for i, b := range blocks {
		if b == nil {
			return nil, fmt.Errorf("%w: nil block at %d", ErrInvalidBlock, i)
		}
		if _, ok := index[b]; ok {
			return nil, fmt.Errorf("%w: block %s added twice", ErrInvalidBlock, b)
		}
		index[b] = i
	}

	g := graph{adj: make([][]int, len(blocks))}
	for c, b := range blocks {
		b.mu.Lock()
		for i, e := range b.edges {
			input := b.task.inputs[i].Name
			if e.producer == nil {
				b.mu.Unlock()
				return nil, fmt.Errorf("block %s: input %s is not bound: %w", b, input, ErrPipelineIncomplete)
			}
			p, ok := index[e.producer]
			if !ok {
				b.mu.Unlock()
				return nil, fmt.Errorf("block %s: input %s is bound to %s outside of pipeline: %w", b, input, e.producer, ErrPipelineIncomplete)
			}
			g.adj[p] = append(g.adj[p], c)
			g.edges = append(g.edges, Edge{
				Producer: e.producer.name,
				Output:   e.producer.task.outputs[e.out].Name,
				Consumer: b.name,
				Input:    input,
			})
		}
		for o := range b.outlets {
			for _, in := range b.outlets[o] {
				if _, ok := index[in.block]; !ok {
					b.mu.Unlock()
					return nil, fmt.Errorf("block %s: output %s feeds %s outside of pipeline: %w", b, b.task.outputs[o].Name, in.block, ErrPipelineIncomplete)
				}
			}
		}
		b.mu.Unlock()
	}
	if cycle := g.cycle(); cycle != nil {
		names := make([]string, len(cycle))
		for i, n := range cycle {
			names[i] = blocks[n].name
		}
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(names, " -> "))
	}

	for _, b := range blocks {
		b.mu.Lock()
		b.frozen = true
		b.mu.Unlock()
	}
	return &g, nil
}

// cycle returns path of the first found cycle or nil.
func (g *graph) cycle() []int {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.adj))
	var path []int
	var visit func(n int) []int
	visit = func(n int) []int {
		color[n] = grey
		path = append(path, n)
		for _, m := range g.adj[n] {
			switch color[m] {
			case grey:
				for i := range path {
					if path[i] == m {
						return append(append([]int(nil), path[i:]...), m)
					}
				}
			case white:
				if c := visit(m); c != nil {
					return c
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return nil
	}
	for n := range g.adj {
		if color[n] == white {
			if c := visit(n); c != nil {
				return c
			}
		}
	}
	return nil
}
