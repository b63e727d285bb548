//go:build !race

package seqlock

import "runtime"

const raceEnabled = false

// Read returns a consistent copy of the value.
//
// Read never blocks writers and never returns a mixture of two writes. If a
// write is in progress, or one starts while the value is being copied, Read
// yields the processor and tries again; there is no bound on the number of
// attempts.
//
// Calling Read while the calling goroutine holds a write guard on l
// deadlocks.
func (l *SeqLock[T]) Read() T {
	mustBePlain[T]()
	for {
		s := l.seq.Load()
		if s.Odd() {
			runtime.Gosched()
			continue
		}

		v := l.data.Load()

		if l.seq.ReadOk(s) {
			return v
		}
	}
}
