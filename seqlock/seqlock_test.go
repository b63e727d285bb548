package seqlock

import (
	"errors"
	"math"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kolkov/seqlock/internal/seq"
)

type vec3 struct {
	X, Y, Z float64
}

type named struct {
	ID   int
	Name string
}

// expectPanic runs fn and returns the recovered value, failing if fn returns
// normally.
func expectPanic(t *testing.T, fn func()) (r any) {
	t.Helper()
	defer func() {
		r = recover()
		if r == nil {
			t.Fatal("expected panic, got none")
		}
	}()
	fn()
	return nil
}

// TestReadAfterWrite covers the basic scenario: 5, write 6, read 6.
func TestReadAfterWrite(t *testing.T) {
	l := New(5)

	if got := l.Read(); got != 5 {
		t.Fatalf("Read() = %d, want 5", got)
	}

	g := l.Lock()
	*g.Value() += 1
	if got := *g.Value(); got != 6 {
		t.Errorf("guard value = %d, want 6", got)
	}
	g.Unlock()

	if got := l.Read(); got != 6 {
		t.Errorf("Read() = %d, want 6", got)
	}
}

// TestNewStartsQuiescent verifies the counter starts at 0.
func TestNewStartsQuiescent(t *testing.T) {
	l := New(vec3{1, 2, 3})

	if got := l.Sequence(); got != 0 {
		t.Errorf("Sequence() = %d, want 0", got)
	}
	if got := l.Read(); got != (vec3{1, 2, 3}) {
		t.Errorf("Read() = %+v", got)
	}
}

// TestZeroValue verifies the zero SeqLock is usable.
func TestZeroValue(t *testing.T) {
	var l SeqLock[vec3]

	if got := l.Read(); got != (vec3{}) {
		t.Errorf("Read() = %+v, want zero", got)
	}

	l.Store(vec3{X: 4})
	if got := l.Read(); got != (vec3{X: 4}) {
		t.Errorf("Read() after Store = %+v", got)
	}
	if got := l.Sequence(); got != 2 {
		t.Errorf("Sequence() = %d, want 2", got)
	}
}

// TestSequenceAdvancesByTwo verifies each completed write adds exactly 2 and
// the counter is odd only while a guard is live.
func TestSequenceAdvancesByTwo(t *testing.T) {
	l := New(uint32(0))

	for i := 0; i < 10; i++ {
		before := l.Sequence()
		if before%2 != 0 {
			t.Fatalf("Sequence() = %d before write, want even", before)
		}

		g := l.Lock()
		if got := l.Sequence(); got != before+1 {
			t.Fatalf("Sequence() = %d during write, want %d", got, before+1)
		}
		if got := g.Stamp(); got != before+1 {
			t.Fatalf("Stamp() = %d, want %d", got, before+1)
		}
		g.Store(uint32(i))
		g.Unlock()

		if got := l.Sequence(); got != before+2 {
			t.Fatalf("Sequence() = %d after write, want %d", got, before+2)
		}
	}
}

// withSequence returns a SeqLock holding v whose counter starts at s.
func withSequence[T any](v T, s uint64) *SeqLock[T] {
	l := New(v)
	l.seq.Reset(seq.Stamp(s))
	return l
}

// TestSequenceWraparound verifies a write that wraps the counter at 2^64
// is committed and readable.
func TestSequenceWraparound(t *testing.T) {
	l := withSequence(vec3{1, 2, 3}, math.MaxUint64-1)

	if got := l.Read(); got != (vec3{1, 2, 3}) {
		t.Fatalf("Read() before wrap = %+v", got)
	}

	l.Store(vec3{4, 5, 6})
	if got := l.Read(); got != (vec3{4, 5, 6}) {
		t.Errorf("Read() after wrap = %+v, want {4 5 6}", got)
	}
	if got := l.Sequence(); got != 0 {
		t.Errorf("Sequence() after wrap = %d, want 0", got)
	}

	g := l.Lock()
	if got := g.Stamp(); got != 1 {
		t.Errorf("Stamp() after wrap = %d, want 1", got)
	}
	g.Unlock()
	if got := l.Sequence(); got != 2 {
		t.Errorf("Sequence() = %d, want 2", got)
	}
}

// TestGuardLoadStore tests the guard accessors.
func TestGuardLoadStore(t *testing.T) {
	l := New(vec3{X: 1})

	g := l.Lock()
	if got := g.Load(); got != (vec3{X: 1}) {
		t.Errorf("Load() = %+v", got)
	}
	g.Store(vec3{Y: 2})
	g.Value().Z = 3
	if got := g.Load(); got != (vec3{Y: 2, Z: 3}) {
		t.Errorf("Load() after Store = %+v", got)
	}
	g.Unlock()

	if got := l.Read(); got != (vec3{Y: 2, Z: 3}) {
		t.Errorf("Read() = %+v", got)
	}
}

// TestTryLockContention covers the contention scenario: while one goroutine
// holds a guard TryLock fails, and it succeeds once the guard is released.
func TestTryLockContention(t *testing.T) {
	l := New(0)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		g := l.Lock()
		close(held)
		<-release
		g.Unlock()
	}()

	<-held
	g, ok := l.TryLock()
	if ok || g != nil {
		t.Fatalf("TryLock() = (%v, %v) while guard held, want (nil, false)", g, ok)
	}

	close(release)
	<-done

	g, ok = l.TryLock()
	if !ok || g == nil {
		t.Fatal("TryLock() failed after guard released")
	}
	g.Store(7)
	g.Unlock()

	if got := l.Read(); got != 7 {
		t.Errorf("Read() = %d, want 7", got)
	}
}

// TestTryLockSameGoroutine verifies TryLock fails against the caller's own
// outstanding guard instead of deadlocking.
func TestTryLockSameGoroutine(t *testing.T) {
	l := New(0)
	g := l.Lock()
	defer g.Unlock()

	if _, ok := l.TryLock(); ok {
		t.Error("TryLock() succeeded with an outstanding guard")
	}
}

// TestAtMostOneGuard verifies writers are mutually exclusive.
func TestAtMostOneGuard(t *testing.T) {
	const (
		writers = 8
		rounds  = 500
	)

	l := New(int64(0))
	var (
		live    atomic.Int32
		maxLive atomic.Int32
		wg      sync.WaitGroup
	)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(try bool) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				var g *Guard[int64]
				if try {
					var ok bool
					for g, ok = l.TryLock(); !ok; g, ok = l.TryLock() {
						runtime.Gosched()
					}
				} else {
					g = l.Lock()
				}

				n := live.Add(1)
				for {
					m := maxLive.Load()
					if n <= m || maxLive.CompareAndSwap(m, n) {
						break
					}
				}
				*g.Value()++
				live.Add(-1)
				g.Unlock()
			}
		}(w%2 == 0)
	}
	wg.Wait()

	if got := maxLive.Load(); got != 1 {
		t.Errorf("max live guards = %d, want 1", got)
	}
	if got := l.Read(); got != writers*rounds {
		t.Errorf("Read() = %d, want %d", got, writers*rounds)
	}
	if got := l.Sequence(); got != 2*writers*rounds {
		t.Errorf("Sequence() = %d, want %d", got, 2*writers*rounds)
	}
}

// TestReadWaitsForWrite verifies Read does not return while a write is in
// progress, and returns the committed value afterwards.
func TestReadWaitsForWrite(t *testing.T) {
	l := New(vec3{X: 1})

	g := l.Lock()
	g.Value().X = 2 // half-done write

	got := make(chan vec3, 1)
	go func() { got <- l.Read() }()

	select {
	case v := <-got:
		t.Fatalf("Read() returned %+v during a write", v)
	case <-time.After(50 * time.Millisecond):
	}

	g.Value().Y = 2
	g.Unlock()

	select {
	case v := <-got:
		if v != (vec3{X: 2, Y: 2}) {
			t.Errorf("Read() = %+v, want {2 2 0}", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Read() did not return after the write completed")
	}
}

// TestWriteReleasesOnPanic verifies the guard is released, and the write
// published, when the callback panics.
func TestWriteReleasesOnPanic(t *testing.T) {
	l := New(vec3{})
	errBoom := errors.New("boom")

	r := expectPanic(t, func() {
		l.Write(func(v *vec3) {
			v.X = 9
			panic(errBoom)
		})
	})
	if r != errBoom {
		t.Errorf("recovered %v, want %v", r, errBoom)
	}

	if got := l.Sequence(); got != 2 {
		t.Errorf("Sequence() = %d after panicking write, want 2", got)
	}
	g, ok := l.TryLock()
	if !ok {
		t.Fatal("TryLock() failed: mutex still held after panicking write")
	}
	g.Unlock()

	if got := l.Read(); got != (vec3{X: 9}) {
		t.Errorf("Read() = %+v, want partial write {9 0 0}", got)
	}
}

// TestStore verifies Store replaces the value.
func TestStore(t *testing.T) {
	l := New([4]byte{1, 2, 3, 4})
	l.Store([4]byte{5, 6, 7, 8})

	if got := l.Read(); got != [4]byte{5, 6, 7, 8} {
		t.Errorf("Read() = %v", got)
	}
}

// TestGuardUnlockTwice verifies a second Unlock panics without disturbing
// the lock.
func TestGuardUnlockTwice(t *testing.T) {
	l := New(1)
	g := l.Lock()
	g.Unlock()

	r := expectPanic(t, g.Unlock)
	if s, _ := r.(string); !strings.Contains(s, "released write guard") {
		t.Errorf("panic = %v", r)
	}

	if got := l.Sequence(); got != 2 {
		t.Errorf("Sequence() = %d, want 2", got)
	}
	g2, ok := l.TryLock()
	if !ok {
		t.Fatal("TryLock() failed after double Unlock")
	}
	g2.Unlock()
}

// TestGuardUseAfterUnlock verifies accessors panic on a released guard.
func TestGuardUseAfterUnlock(t *testing.T) {
	l := New(1)
	g := l.Lock()
	g.Unlock()

	expectPanic(t, func() { g.Value() })
	expectPanic(t, func() { g.Load() })
	expectPanic(t, func() { g.Store(2) })
	expectPanic(t, func() { g.Stamp() })

	if got := l.Read(); got != 1 {
		t.Errorf("Read() = %d, want 1", got)
	}
}

// TestIntoInner verifies IntoInner returns the last committed value.
func TestIntoInner(t *testing.T) {
	l := New(vec3{})
	for i := 1; i <= 3; i++ {
		l.Store(vec3{X: float64(i)})
	}

	if got := l.IntoInner(); got != (vec3{X: 3}) {
		t.Errorf("IntoInner() = %+v, want {3 0 0}", got)
	}
}

// TestGetMut verifies GetMut mutates in place without touching the counter.
func TestGetMut(t *testing.T) {
	l := New(10)

	p := l.GetMut()
	*p = 11
	*l.GetMut() += 1

	if got := l.Sequence(); got != 0 {
		t.Errorf("Sequence() = %d after GetMut, want 0", got)
	}
	if got := l.Read(); got != 12 {
		t.Errorf("Read() = %d, want 12", got)
	}
	if got := l.IntoInner(); got != 12 {
		t.Errorf("IntoInner() = %d, want 12", got)
	}
}

// TestBypassWithGuard verifies GetMut and IntoInner refuse to run while a
// guard is outstanding.
func TestBypassWithGuard(t *testing.T) {
	l := New(1)
	g := l.Lock()

	r := expectPanic(t, func() { l.GetMut() })
	if s, _ := r.(string); !strings.Contains(s, "GetMut") {
		t.Errorf("panic = %v", r)
	}
	r = expectPanic(t, func() { l.IntoInner() })
	if s, _ := r.(string); !strings.Contains(s, "IntoInner") {
		t.Errorf("panic = %v", r)
	}

	g.Unlock()
	_ = l.GetMut()
}

// TestRejectsIndirection verifies types holding pointers are rejected by
// New and by every operation of a zero SeqLock, including the bypasses.
func TestRejectsIndirection(t *testing.T) {
	r := expectPanic(t, func() { New(named{ID: 1, Name: "a"}) })
	le, ok := r.(*LayoutError)
	if !ok {
		t.Fatalf("panic value %T, want *LayoutError", r)
	}
	if le.Path != ".Name" {
		t.Errorf("LayoutError.Path = %q, want .Name", le.Path)
	}

	var ls SeqLock[string]
	expectPanic(t, func() { ls.Lock() })
	expectPanic(t, func() { ls.TryLock() })
	expectPanic(t, func() { ls.Store("x") })
	expectPanic(t, func() { ls.GetMut() })
	expectPanic(t, func() { ls.IntoInner() })
	expectPanic(t, func() { _ = ls.String() })

	r = expectPanic(t, func() { ls.Read() })
	if le, ok := r.(*LayoutError); !ok || le.Kind != reflect.String {
		t.Errorf("Read panic value %v, want *LayoutError of kind string", r)
	}

	// The rejected calls must not have taken the mutex.
	if !ls.mu.TryLock() {
		t.Fatal("mutex held after rejected Lock")
	}
	ls.mu.Unlock()

	expectPanic(t, func() { New([]int{1}) })
	expectPanic(t, func() { New(&vec3{}) })
	expectPanic(t, func() { New[any](1) })
}

// TestString verifies debug formatting goes through Read.
func TestString(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"int", New(5).String(), "SeqLock{data: 5}"},
		{"struct", New(vec3{1, 2, 3}).String(), "SeqLock{data: {1 2 3}}"},
		{"zero", (&SeqLock[bool]{}).String(), "SeqLock{data: false}"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: String() = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
