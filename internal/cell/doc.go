// Package cell implements the data cell of a sequence lock.
//
// A Cell holds a plain value in place. The goroutine holding the writer gate
// mutates it through Ptr; every other goroutine only copies it with Load,
// which tolerates observing a value halfway through being overwritten.
//
// # Plain Types
//
// A torn copy is only harmless when every bit pattern of the value is a valid
// value and nothing in it is dereferenced. Check and Validate accept exactly
// those types:
//   - Booleans, integers (including uintptr), floats and complex numbers
//   - Arrays and structs made only of the above
//
// Pointers, unsafe.Pointer, strings, slices, maps, channels, functions and
// interfaces are rejected with a *LayoutError, as is any aggregate that
// contains one.
//
// # Copy Strategy
//
// Load picks the widest atomic access the value's layout allows:
//
//	align >= word && size%word == 0   word-wise atomic.LoadUintptr
//	align >= 4    && size%4 == 0      atomic.LoadUint32
//	otherwise                         plain copy + barrier store
//
// The atomic loads are sequentially consistent in Go, so the copy completes
// before any later atomic load of the sequence counter. The fallback path
// gets the same guarantee from an atomic store issued after the copy.
package cell
