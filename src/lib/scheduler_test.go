package lib

import (
	"testing"
	"time"
)

func TestTimerSchedulerFires(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Stop()

	fired := make(chan struct{})
	s.Schedule("boost:1", time.Now().Add(10*time.Millisecond), func() { close(fired) })
	if !s.Pending("boost:1") {
		t.Fatalf("expected boost:1 to be pending")
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduled callback did not fire")
	}
	deadline := time.Now().Add(time.Second)
	for s.Pending("boost:1") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Pending("boost:1") {
		t.Fatalf("fired key should no longer be pending")
	}
}

func TestTimerSchedulerCancelAndReplace(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Stop()

	calls := make(chan string, 2)
	s.Schedule("boost:2", time.Now().Add(time.Hour), func() { calls <- "first" })
	s.Schedule("boost:2", time.Now().Add(5*time.Millisecond), func() { calls <- "second" })

	select {
	case got := <-calls:
		if got != "second" {
			t.Fatalf("callback = %q, want second", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("replacement callback did not fire")
	}

	s.Schedule("boost:3", time.Now().Add(time.Hour), func() { calls <- "third" })
	if !s.Cancel("boost:3") {
		t.Fatalf("Cancel(boost:3) = false, want true")
	}
	if s.Cancel("boost:3") {
		t.Fatalf("second Cancel(boost:3) = true, want false")
	}
}
