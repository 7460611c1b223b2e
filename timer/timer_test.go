package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFired(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("expected %q to fire, got %q", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestTimerManager_Schedule(t *testing.T) {
	m := NewTimerManagerWithClock(time.Now, time.Millisecond)
	defer m.Stop()

	fired := make(chan string, 4)
	m.Schedule("b", time.Now().Add(40*time.Millisecond), func() { fired <- "b" })
	m.Schedule("a", time.Now().Add(5*time.Millisecond), func() { fired <- "a" })

	waitFired(t, fired, "a")
	waitFired(t, fired, "b")
	if m.Pending() != 0 {
		t.Fatalf("expected empty queue, got %d", m.Pending())
	}
}

func TestTimerManager_ReplaceAndCancel(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Unix(100, 0).UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }

	m := NewTimerManagerWithClock(clock, time.Millisecond)
	defer m.Stop()

	fired := make(chan string, 4)
	at := clock().Add(time.Second)
	m.Schedule("phase", at, func() { fired <- "old" })
	m.Schedule("phase", at, func() { fired <- "new" })
	m.Schedule("gone", at, func() { fired <- "gone" })
	m.Cancel("gone")
	m.Cancel("missing")
	if m.Pending() != 1 {
		t.Fatalf("expected one pending task, got %d", m.Pending())
	}

	now.Store(at.UnixNano())
	waitFired(t, fired, "new")

	select {
	case got := <-fired:
		t.Fatalf("unexpected callback %q", got)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestTimerManager_Stop(t *testing.T) {
	m := NewTimerManagerWithClock(time.Now, time.Millisecond)
	m.Stop()
	m.Stop()

	var ran atomic.Bool
	m.Schedule("x", time.Now(), func() { ran.Store(true) })
	time.Sleep(20 * time.Millisecond)
	if ran.Load() {
		t.Fatal("a stopped manager must not run callbacks")
	}
}
