package cell

import (
	"sync/atomic"
	"unsafe"
)

const wordSize = unsafe.Sizeof(uintptr(0))

// Cell holds a value that one writer mutates in place while readers copy it
// optimistically.
//
// The zero value holds the zero T. A Cell must not be copied after first use.
type Cell[T any] struct {
	v T
}

// Ptr returns the address of the held value.
//
// Only the goroutine that owns the writer gate (or exclusively owns the Cell)
// may dereference the result.
//
//go:nosplit
func (c *Cell[T]) Ptr() *T {
	return &c.v
}

// Load returns a best-effort copy of the held value.
//
// Load never faults, even while a writer is halfway through updating the
// value, but the copy may then be a mixture of old and new bytes. Callers
// detect that case with the sequence counter and discard the copy.
func (c *Cell[T]) Load() (v T) {
	size := unsafe.Sizeof(v)
	align := unsafe.Alignof(v)
	src := unsafe.Pointer(&c.v)
	dst := unsafe.Pointer(&v)

	switch {
	case size == 0:
	case align >= wordSize && size%wordSize == 0:
		for off := uintptr(0); off < size; off += wordSize {
			*(*uintptr)(unsafe.Add(dst, off)) = atomic.LoadUintptr((*uintptr)(unsafe.Add(src, off)))
		}
	case align >= 4 && size%4 == 0:
		for off := uintptr(0); off < size; off += 4 {
			*(*uint32)(unsafe.Add(dst, off)) = atomic.LoadUint32((*uint32)(unsafe.Add(src, off)))
		}
	default:
		v = c.v

		// The compiler may sink the plain copy below a following atomic load
		// (there is no LoadLoad barrier in Go), but never below a store.
		var barrier atomic.Uint32
		barrier.Store(uint32(size))
	}

	return v
}
