//go:build race

package seqlock

const raceEnabled = true

// Read returns a consistent copy of the value.
//
// This is the race detector build. The optimistic copy of the regular build
// races with the writer by construction and would be reported, so here the
// copy is made under the writer mutex. Results are identical; readers can
// block behind a writer, and a goroutine holding a write guard still
// deadlocks if it calls Read.
func (l *SeqLock[T]) Read() T {
	mustBePlain[T]()
	l.mu.Lock()
	defer l.mu.Unlock()

	if s := l.seq.Load(); s.Odd() {
		panic("seqlock: sequence " + s.String() + " is odd with the writer mutex free")
	}
	return *l.data.Ptr()
}
