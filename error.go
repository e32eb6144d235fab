package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is returned when bound sockets have different
	// element types or sizes.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrUnknownSocket is returned when socket name doesn't exist.
	ErrUnknownSocket = errors.New("unknown socket")
	// ErrPipelineIncomplete is returned at first run when any input
	// socket is not bound to a producer of the pipeline.
	ErrPipelineIncomplete = errors.New("pipeline incomplete")
	// ErrStageExecution is returned when a task fails to produce a frame.
	ErrStageExecution = errors.New("stage execution failure")
	// ErrSequence is returned when run, join and reset are called out of
	// order.
	ErrSequence = errors.New("sequence violation")
	// ErrAlreadyBound is returned when input socket is bound twice.
	ErrAlreadyBound = errors.New("input already bound")
	// ErrFrozen is returned when bindings are changed after first run.
	ErrFrozen = errors.New("bindings are frozen")
	// ErrCycle is returned when a block depends on its own output.
	ErrCycle = errors.New("cycle detected")
	// ErrInvalidBlock is returned when block parameters are not valid.
	ErrInvalidBlock = errors.New("invalid block")
)

// BindError describes a failed binding.
type BindError struct {
	Consumer string
	Input    string
	Producer string
	Output   string
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s.%s to %s.%s: %v", e.Consumer, e.Input, e.Producer, e.Output, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// StageError is returned by join when the task of a block failed.
type StageError struct {
	Block string
	Task  string
	Frame uint64
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("block %s: task %s: frame %d: %v", e.Block, e.Task, e.Frame, e.Err)
}

// Is makes every stage error match ErrStageExecution.
func (e *StageError) Is(err error) bool {
	return err == ErrStageExecution
}

func (e *StageError) Unwrap() error {
	return e.Err
}
