// Package scheduler provides keyed one-shot timers with dedup-by-key and
// repeating ticker jobs, so callers never track timer handles themselves.
package scheduler

import (
	"sync"
	"time"
)

// Scheduler owns all pending timers. A one-shot key is consumed when its
// timer fires; scheduling the same key while it is pending is a no-op.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
	quit    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// New creates an empty scheduler
func New() *Scheduler {
	return &Scheduler{
		pending: make(map[string]*time.Timer),
		quit:    make(chan struct{}),
	}
}

// Once schedules fn to run after delay, keyed by key. It returns false if a
// timer for the key is already pending or the scheduler is stopped.
func (s *Scheduler) Once(key string, delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if _, exists := s.pending[key]; exists {
		return false
	}

	s.pending[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.pending, key)
		stopped := s.stopped
		s.mu.Unlock()

		if !stopped {
			fn()
		}
	})

	return true
}

// Pending reports whether a one-shot timer is outstanding for key
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.pending[key]
	return exists
}

// Cancel stops a pending one-shot timer. It returns false if no timer was
// pending for the key.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, exists := s.pending[key]
	if !exists {
		return false
	}

	timer.Stop()
	delete(s.pending, key)
	return true
}

// Every runs fn on the given interval until the returned stop function is
// called or the scheduler is stopped.
func (s *Scheduler) Every(interval time.Duration, fn func()) func() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return func() {}
	}
	s.mu.Unlock()

	done := make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-s.quit:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
		})
	}
}

// Stop cancels every pending timer and repeating job. The scheduler cannot
// be reused afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true

	for key, timer := range s.pending {
		timer.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()

	close(s.quit)
	s.wg.Wait()
}
