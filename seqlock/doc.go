// Package seqlock provides a reader-writer lock that is heavily optimized for
// readers of small plain values.
//
// A SeqLock holds a value of a plain type: booleans, numbers, and arrays or
// structs made only of those. Readers take a copy of the value without ever
// blocking a writer; writers are serialized with a sync.Mutex and never wait
// for readers. In read-mostly workloads a SeqLock can be one to two orders of
// magnitude faster than sync.RWMutex, and readers cannot starve writers.
//
// # Quick Start
//
//	lock := seqlock.New(5)
//
//	g := lock.Lock()
//	*g.Value() += 1
//	g.Unlock()
//
//	fmt.Println(lock.Read()) // 6
//
// The Write helper releases the guard on every exit path, including panics:
//
//	lock.Write(func(v *int) { *v *= 2 })
//
// # How It Works
//
// Each SeqLock contains a sequence counter that tracks modifications to the
// value. A reader:
//
//  1. Loads the sequence counter; if it is odd a write is in progress, so it
//     yields with runtime.Gosched and starts over.
//  2. Copies the value.
//  3. Loads the sequence counter again.
//  4. Returns the copy if both loads agree, and starts over otherwise.
//
// A writer takes the mutex, increments the counter (making it odd), mutates
// the value in place, increments the counter again (making it even) and
// releases the mutex. A completed write therefore advances the counter by 2.
//
// # Supported Types
//
// A reader may copy the value while a writer is halfway through changing it.
// The copy is discarded in that case, but it must be harmless to make: no
// pointers may be followed, and no bit pattern may be invalid. Every method
// panics with a *LayoutError for types holding pointers, strings, slices,
// maps, channels, functions or interfaces, including Read and the GetMut and
// IntoInner bypasses on a zero SeqLock. Use sync.RWMutex for those.
//
// # Caveats
//
//   - Reading from a SeqLock while the same goroutine holds its write guard
//     deadlocks: the reader spins waiting for a write that cannot finish.
//   - Readers retry without bound. Under a sustained stream of writes a reader
//     may make no progress; writers are never held up by readers.
//   - Writer fairness is whatever sync.Mutex provides.
//   - Under the race detector (-race), the optimistic copy would be reported
//     as a data race, so Read takes the writer mutex instead. Semantics are
//     unchanged; only the blocking behaviour of readers differs.
package seqlock
