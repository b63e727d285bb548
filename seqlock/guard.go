package seqlock

import "github.com/kolkov/seqlock/internal/seq"

// Guard is exclusive write access to a SeqLock, obtained from Lock or
// TryLock. At most one Guard per SeqLock is live at any time.
//
// While the guard is live the sequence counter is odd, so readers retry
// instead of returning a value the guard is still changing. Unlock commits
// the write: it makes the counter even again and then releases the writer
// mutex, in that order.
//
// A Guard belongs to the goroutine that acquired it. It must not be used
// after Unlock; doing so panics.
type Guard[T any] struct {
	lock  *SeqLock[T] // nil once released
	stamp seq.Stamp   // odd stamp returned by BeginWrite
}

// Value returns a pointer to the protected value, valid until Unlock.
func (g *Guard[T]) Value() *T {
	return g.live().data.Ptr()
}

// Load returns the protected value.
func (g *Guard[T]) Load() T {
	return *g.Value()
}

// Store replaces the protected value.
func (g *Guard[T]) Store(v T) {
	*g.Value() = v
}

// Stamp returns the odd sequence value recorded when the write began.
// Unlock publishes Stamp()+1.
func (g *Guard[T]) Stamp() uint64 {
	g.live()
	return uint64(g.stamp)
}

// Unlock commits the write and releases exclusive access.
func (g *Guard[T]) Unlock() {
	l := g.live()
	g.lock = nil
	l.seq.EndWrite(g.stamp)
	l.mu.Unlock()
}

func (g *Guard[T]) live() *SeqLock[T] {
	if g.lock == nil {
		panic("seqlock: use of released write guard")
	}
	return g.lock
}
