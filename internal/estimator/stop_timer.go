package estimator

import (
	"sync"
	"time"
)

// DefaultStopDelay is how long a blind must stay silent before it is
// considered stopped.
const DefaultStopDelay = 2 * time.Second

// Timer is the part of *time.Timer the stop detector needs.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d and returns a handle that can cancel it.
type Scheduler func(d time.Duration, f func()) Timer

func realScheduler(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type armedTimer struct {
	timer Timer
	gen   uint64
}

// StopTimer keeps at most one pending stop-detection callback per device.
// Arming a device cancels whatever was pending for it.
type StopTimer struct {
	delay time.Duration
	after Scheduler

	mu     sync.Mutex
	gen    uint64
	timers map[string]*armedTimer
}

// NewStopTimer returns a detector that fires delay after the last Arm.
// A nil scheduler uses time.AfterFunc.
func NewStopTimer(delay time.Duration, after Scheduler) *StopTimer {
	if delay <= 0 {
		delay = DefaultStopDelay
	}
	if after == nil {
		after = realScheduler
	}
	return &StopTimer{
		delay:  delay,
		after:  after,
		timers: make(map[string]*armedTimer),
	}
}

// Delay returns the debounce window.
func (s *StopTimer) Delay() time.Duration { return s.delay }

// Arm cancels any pending callback for deviceID and schedules onStop.
func (s *StopTimer) Arm(deviceID string, onStop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[deviceID]; ok {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	entry := &armedTimer{gen: gen}
	s.timers[deviceID] = entry
	entry.timer = s.after(s.delay, func() { s.fire(deviceID, gen, onStop) })
}

// fire runs onStop only if the timer was not superseded after time.AfterFunc
// already started the callback.
func (s *StopTimer) fire(deviceID string, gen uint64, onStop func()) {
	s.mu.Lock()
	entry, ok := s.timers[deviceID]
	if !ok || entry.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, deviceID)
	s.mu.Unlock()

	onStop()
}

// Cancel drops the pending callback for deviceID. It reports whether one was pending.
func (s *StopTimer) Cancel(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.timers[deviceID]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.timers, deviceID)
	return true
}

// Pending reports whether a callback is armed for deviceID.
func (s *StopTimer) Pending(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[deviceID]
	return ok
}

// StopAll cancels every pending callback.
func (s *StopTimer) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
}
