/*
Package chain allows to build and execute pipelined simulation chains.

Concept

A chain is a set of tasks connected through sockets. Task is a named
transform which reads fixed-size input sockets and fills fixed-size output
sockets of a frame:

    encode := chain.MustTask("encode", encodeFunc, chain.Fast,
        chain.Input[int32]("U_K", k),
        chain.Output[int32]("X_N", n),
    )

Every task is wrapped into a block. Block has a bounded buffer per input
socket and a pool of workers which execute the task:

    encoder := chain.MustBlock(encode, bufferSize, threads)

Blocks without inputs are sources: they generate frames until they are
stopped or the task returns io.EOF.

Binding

Input socket of a block is bound to output socket of a producer. Output
socket can be bound to any number of inputs:

    err := encoder.Bind("U_K", splitter, "V_K1")

Sockets must have the same element type and size. Bindings are frozen at
the first run of the pipeline.

Execution

Pipeline runs all blocks concurrently. Frames are delivered in the order
they were generated by sources, even when blocks have multiple threads:

    p, err := chain.New(blocks)
    err = p.RunAll(ctx, stop)
    err = p.JoinAll()
    err = p.ResetAll()

Closing stop channel makes sources finish and the rest of blocks drain
in-flight frames. Cancellation of context or failure of any task aborts the
execution. Pipeline has to be reset before the next run.
*/
package chain
