package chain_test

import (
	"context"
	"fmt"
	"io"

	"pipelined.dev/chain"
)

// Example binds a source of three frames to an accumulating sink.
func Example() {
	generate := chain.MustTask("generate", func(f *chain.Frame) error {
		if f.Seq == 3 {
			return io.EOF
		}
		out := chain.Out[int32](f, 0)
		for i := range out {
			out[i] = int32(f.Seq)
		}
		return nil
	}, chain.Fast, chain.Output[int32]("out", 4))

	var sum int32
	accumulate := chain.MustTask("accumulate", func(f *chain.Frame) error {
		for _, v := range chain.In[int32](f, 0) {
			sum += v
		}
		return nil
	}, chain.Fast, chain.Input[int32]("in", 4))

	source := chain.MustBlock(generate, 4, 2)
	sink := chain.MustBlock(accumulate, 4, 1)
	if err := sink.Bind("in", source, "out"); err != nil {
		fmt.Println(err)
		return
	}
	p, err := chain.New([]*chain.Block{source, sink})
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := p.RunAll(context.Background(), nil); err != nil {
		fmt.Println(err)
		return
	}
	if err := p.JoinAll(); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(sum)
	fmt.Println(p.Edges())
	// Output:
	// 12
	// [generate.out -> accumulate.in]
}
