// Package estimatortest provides a virtual-clock scheduler for stop detection tests.
package estimatortest

import (
	"sort"
	"sync"
	"time"

	"blinds_bridge/internal/estimator"
)

type entry struct {
	s       *Scheduler
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (e *entry) Stop() bool {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if e.stopped || e.fired {
		return false
	}
	e.stopped = true
	return true
}

// Scheduler is a manually advanced clock. Callbacks run synchronously inside Advance.
type Scheduler struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	entries []*entry
}

func New() *Scheduler { return &Scheduler{} }

// After satisfies estimator.Scheduler.
func (s *Scheduler) After(d time.Duration, f func()) estimator.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e := &entry{s: s, at: s.now + d, seq: s.seq, f: f}
	s.entries = append(s.entries, e)
	return e
}

// Now returns the virtual time elapsed since creation.
func (s *Scheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the clock forward and fires every due, non-stopped callback in order.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		due := s.nextDue(target)
		if due == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = due.at
		due.fired = true
		s.mu.Unlock()
		due.f()
	}
}

func (s *Scheduler) nextDue(limit time.Duration) *entry {
	var live []*entry
	for _, e := range s.entries {
		if !e.stopped && !e.fired && e.at <= limit {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		return nil
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].at == live[j].at {
			return live[i].seq < live[j].seq
		}
		return live[i].at < live[j].at
	})
	return live[0]
}

// Stopped counts callbacks cancelled before they fired.
func (s *Scheduler) Stopped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.stopped {
			n++
		}
	}
	return n
}

// Fired counts callbacks that ran.
func (s *Scheduler) Fired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.fired {
			n++
		}
	}
	return n
}
