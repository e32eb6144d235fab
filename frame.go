package chain

// Frame is a single execution unit of a task. It holds one data slice per
// input socket and one freshly allocated slice per output socket, in the
// order sockets were declared. Input slices may be shared with other
// consumers of the same producer and must not be modified.
type Frame struct {
	Seq uint64
	in  []any
	out []any
}

// In returns data of the i-th input socket of the frame.
func In[T Element](f *Frame, i int) []T {
	return f.in[i].([]T)
}

// Out returns data of the j-th output socket of the frame.
func Out[T Element](f *Frame, j int) []T {
	return f.out[j].([]T)
}

// NumIn returns number of input slices.
func (f *Frame) NumIn() int {
	return len(f.in)
}

// NumOut returns number of output slices.
func (f *Frame) NumOut() int {
	return len(f.out)
}
