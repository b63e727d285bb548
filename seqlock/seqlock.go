package seqlock

import (
	"fmt"
	"sync"

	"github.com/kolkov/seqlock/internal/cell"
	"github.com/kolkov/seqlock/internal/seq"
)

// SeqLock is a sequential lock protecting a plain value of type T.
//
// The zero value is an unlocked SeqLock holding the zero T, which makes
// default construction free:
//
//	var position seqlock.SeqLock[[3]float64]
//
// A SeqLock must not be copied after first use.
//
// Every operation that touches the value panics with a *LayoutError if T is
// not a plain type, so a zero SeqLock of such a type cannot be used at all.
//
// Layout:
//   - seq: Sequence counter, even when idle, odd while a write is in progress
//   - mu: Writer gate, never touched by readers
//   - data: The value, mutated in place under mu
type SeqLock[T any] struct {
	seq  seq.Counter
	mu   sync.Mutex
	data cell.Cell[T]
}

// New creates a SeqLock holding initial. The sequence counter starts at 0.
//
// New panics if T is not a plain type (see package documentation).
func New[T any](initial T) *SeqLock[T] {
	mustBePlain[T]()
	l := &SeqLock[T]{}
	*l.data.Ptr() = initial
	return l
}

// Lock acquires exclusive write access, blocking until it is available.
//
// Lock never waits for readers; readers that race with the write detect it
// and retry. Blocking, queuing order and fairness are those of sync.Mutex.
//
// The returned guard must be released with Unlock, usually deferred:
//
//	g := lock.Lock()
//	defer g.Unlock()
//	g.Value().Hits++
func (l *SeqLock[T]) Lock() *Guard[T] {
	mustBePlain[T]()
	l.mu.Lock()
	return l.guard()
}

// TryLock attempts to acquire exclusive write access without blocking.
//
// It returns (nil, false) at once if another write guard is outstanding,
// and a guard as from Lock otherwise.
func (l *SeqLock[T]) TryLock() (*Guard[T], bool) {
	mustBePlain[T]()
	if !l.mu.TryLock() {
		return nil, false
	}
	return l.guard(), true
}

// guard begins the write. The caller holds mu.
func (l *SeqLock[T]) guard() *Guard[T] {
	return &Guard[T]{lock: l, stamp: l.seq.BeginWrite()}
}

// Write runs fn with write access to the value.
//
// The guard is released when fn returns or panics; in the latter case the
// panic continues after the write has been published and the mutex released.
func (l *SeqLock[T]) Write(fn func(v *T)) {
	g := l.Lock()
	defer g.Unlock()
	fn(g.Value())
}

// Store replaces the value.
func (l *SeqLock[T]) Store(v T) {
	l.Write(func(p *T) { *p = v })
}

// GetMut returns a pointer to the value, bypassing the lock entirely.
//
// GetMut is for phases where the caller owns the SeqLock exclusively, such as
// single-goroutine setup before the lock is shared. Go cannot prove that
// exclusivity, so GetMut checks what it can: it panics if a write guard is
// outstanding. It does not detect concurrent readers; mutating through the
// pointer while the lock is shared causes torn reads to go unnoticed.
//
// GetMut panics if T is not a plain type.
func (l *SeqLock[T]) GetMut() *T {
	mustBePlain[T]()
	l.mustBeIdle("GetMut")
	return l.data.Ptr()
}

// IntoInner returns the final value of a SeqLock that is being discarded.
//
// It has the same exclusivity requirement as GetMut and returns exactly the
// last value committed by a write guard (or set through GetMut). The SeqLock
// must not be used afterwards.
//
// IntoInner panics if T is not a plain type.
func (l *SeqLock[T]) IntoInner() T {
	mustBePlain[T]()
	l.mustBeIdle("IntoInner")
	return *l.data.Ptr()
}

// Sequence returns the current value of the sequence counter.
//
// The counter is even while no write is in progress and advances by exactly
// 2 per completed write (wrapping at 2^64).
func (l *SeqLock[T]) Sequence() uint64 {
	return uint64(l.seq.Load())
}

// String implements fmt.Stringer. It formats a snapshot taken with Read, so
// it must not be called while the calling goroutine holds a write guard.
func (l *SeqLock[T]) String() string {
	return fmt.Sprintf("SeqLock{data: %v}", l.Read())
}

// mustBeIdle panics if a write guard is outstanding.
func (l *SeqLock[T]) mustBeIdle(op string) {
	if !l.mu.TryLock() {
		panic("seqlock: " + op + " with an outstanding write guard")
	}
	l.mu.Unlock()
}

// LayoutError is the panic value of every SeqLock operation on a type that
// is not plain. It names the offending component, e.g. ".Name has kind string".
type LayoutError = cell.LayoutError

func mustBePlain[T any]() {
	if err := cell.Validate[T](); err != nil {
		panic(err)
	}
}
