package lib

import (
	"sync"
	"time"
)

// Scheduler runs keyed one-shot callbacks. Scheduling an existing key
// replaces the pending callback.
type Scheduler interface {
	Schedule(key string, at time.Time, fn func())
	Cancel(key string) bool
	Pending(key string) bool
}

type scheduledTimer struct {
	timer *time.Timer
	gen   uint64
}

// TimerScheduler is a Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	now func() time.Time

	mu     sync.Mutex
	gen    uint64
	timers map[string]scheduledTimer
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{now: time.Now, timers: make(map[string]scheduledTimer)}
}

func (s *TimerScheduler) Schedule(key string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[key]; ok {
		existing.timer.Stop()
	}
	s.gen++
	gen := s.gen
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	timer := time.AfterFunc(delay, func() {
		s.mu.Lock()
		current, ok := s.timers[key]
		if !ok || current.gen != gen {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = scheduledTimer{timer: timer, gen: gen}
}

func (s *TimerScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.timers[key]
	if !ok {
		return false
	}
	existing.timer.Stop()
	delete(s.timers, key)
	return true
}

func (s *TimerScheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Stop cancels every pending callback.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, existing := range s.timers {
		existing.timer.Stop()
		delete(s.timers, key)
	}
}
