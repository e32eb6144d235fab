package chain

import (
	"fmt"
	"reflect"
)

// Element is a constraint for socket data types.
type Element interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~float32 | ~float64
}

// Direction of the socket.
type Direction int

const (
	// Inbound sockets are filled by a bound producer.
	Inbound Direction = iota
	// Outbound sockets are allocated for every frame and fed to consumers.
	Outbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "in"
	}
	return "out"
}

// Socket is a named fixed-size data slot of a task.
type Socket struct {
	Name string
	Dir  Direction
	Type reflect.Type
	Size int

	alloc func() any
	fits  func(any) bool
}

// Input declares an input socket of size elements of type T.
func Input[T Element](name string, size int) Socket {
	return newSocket[T](name, Inbound, size)
}

// Output declares an output socket of size elements of type T.
func Output[T Element](name string, size int) Socket {
	return newSocket[T](name, Outbound, size)
}

func newSocket[T Element](name string, dir Direction, size int) Socket {
	return Socket{
		Name: name,
		Dir:  dir,
		Type: reflect.TypeFor[T](),
		Size: size,
		alloc: func() any {
			return make([]T, size)
		},
		fits: func(v any) bool {
			s, ok := v.([]T)
			return ok && len(s) == size
		},
	}
}

// Fits returns true if sockets have the same element type and size.
func (s Socket) Fits(o Socket) bool {
	return s.Type == o.Type && s.Size == o.Size
}

func (s Socket) String() string {
	return fmt.Sprintf("%s %s[%d]%v", s.Dir, s.Name, s.Size, s.Type)
}
