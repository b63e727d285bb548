// Package seq implements the sequence counter behind a sequence lock.
//
// The counter encodes the writer state in its lowest bit:
// - Even: no write in progress, the protected data is quiescent
// - Odd: a writer is inside its critical section
//
// A write advances the counter by exactly 1 on entry and by exactly 1 on exit,
// so a completed write moves it forward by 2. Readers only ever compare two
// observations for equality, which makes wraparound at 2^64 harmless.
package seq

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Stamp is one observation of a Counter.
//
// Example: Stamp(42) is a quiescent counter after 21 completed writes,
// Stamp(43) is the same counter while the 22nd write is in progress.
type Stamp uint64

// Odd reports whether the stamp was taken while a write was in progress.
//
//go:nosplit
func (s Stamp) Odd() bool {
	return s&1 != 0
}

// Next returns the stamp that follows s, wrapping at 2^64.
//
//go:nosplit
func (s Stamp) Next() Stamp {
	return s + 1
}

// String returns a human-readable representation of the stamp.
//
// Format: "n" for a quiescent stamp, "n*" while a write is in progress
// (e.g. "42", "43*"). Only used for debugging and panic messages.
func (s Stamp) String() string {
	if s.Odd() {
		return itoa(uint64(s)) + "*"
	}
	return itoa(uint64(s))
}

// Counter is the shared sequence counter.
//
// The zero value is a quiescent counter at 0. Counters are padded on both
// sides so that neighbouring locks in a slice or struct do not share the
// cache line readers poll.
//
// Ordering: every method uses sync/atomic, whose operations are sequentially
// consistent. Loads therefore act as acquire loads, and the stores as release
// stores.
type Counter struct {
	_ cpu.CacheLinePad
	v atomic.Uint64
	_ cpu.CacheLinePad
}

// Load returns the current stamp.
//
// Readers call Load before copying the protected data. Because the load is
// at least acquire ordered, the copy cannot be performed before it.
//
//go:nosplit
func (c *Counter) Load() Stamp {
	return Stamp(c.v.Load())
}

// ReadOk reports whether a reader critical section that began with stamp s
// did not race with any writer.
//
// The caller must have finished copying the protected data (with loads that
// are ordered before this call) and must have checked that s is even.
//
//go:nosplit
func (c *Counter) ReadOk(s Stamp) bool {
	return c.v.Load() == uint64(s)
}

// BeginWrite marks the start of a writer critical section and returns the
// odd stamp that EndWrite needs.
//
// Writers must already be serialized (e.g. with a sync.Mutex). The advance is
// an atomic read-modify-write rather than a load followed by a store, since Go
// has no standalone release fence. On amd64, and on arm64 with LSE atomics,
// the read-modify-write is a full barrier, so later stores to the protected
// data cannot become visible before the odd stamp. On arm64 without LSE the
// LDAXR/STLXR loop does not order a later plain store after the STLXR, and a
// data store may become visible first. gVisor's SeqCount accepts the same
// limitation.
func (c *Counter) BeginWrite() Stamp {
	s := Stamp(c.v.Add(1))
	if !s.Odd() {
		panic("seq: BeginWrite during writer critical section (counter " + s.String() + ")")
	}
	return s
}

// EndWrite ends the writer critical section started by the BeginWrite call
// that returned s. It publishes s+1 with a release store, so every write to
// the protected data made since BeginWrite is visible to a reader that
// observes the new stamp.
func (c *Counter) EndWrite(s Stamp) {
	if !s.Odd() {
		panic("seq: EndWrite outside writer critical section (stamp " + s.String() + ")")
	}
	c.v.Store(uint64(s.Next()))
}

// Reset sets the counter to the quiescent stamp s. The caller must own the
// counter exclusively: no writer inside its critical section and no reader
// between Load and ReadOk.
func (c *Counter) Reset(s Stamp) {
	if s.Odd() {
		panic("seq: Reset to odd stamp " + s.String())
	}
	c.v.Store(uint64(s))
}

// itoa converts an integer to string without fmt import.
func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}

	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	return string(buf[i:])
}
