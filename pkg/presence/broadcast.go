package presence

import (
	"sync"
	"time"

	"github.com/ajisai-dev/huesync/internal/scheduler"
)

// FlushFunc materializes and pushes one room snapshot
type FlushFunc func(room string)

// Broadcaster decides when a room snapshot is actually pushed. Two
// independent policies apply: a per-room debounce collapses bursts of
// membership churn into one push, and a per-room minimum interval
// suppresses pushes that would fire too soon after the previous one.
// ForceSync bypasses the throttle for preference changes.
type Broadcaster struct {
	mu          sync.Mutex
	sched       *scheduler.Scheduler
	debounce    time.Duration
	minInterval time.Duration
	repushDelay time.Duration
	lastSent    map[string]time.Time
	flush       FlushFunc
	now         func() time.Time
}

// NewBroadcaster creates a broadcaster over the given scheduler
func NewBroadcaster(sched *scheduler.Scheduler, debounce, minInterval, repushDelay time.Duration, flush FlushFunc) *Broadcaster {
	return &Broadcaster{
		sched:       sched,
		debounce:    debounce,
		minInterval: minInterval,
		repushDelay: repushDelay,
		lastSent:    make(map[string]time.Time),
		flush:       flush,
		now:         time.Now,
	}
}

// Schedule requests a debounced broadcast for room. At most one pending
// broadcast exists per room; scheduling while one is pending is a no-op.
func (b *Broadcaster) Schedule(room string) {
	b.sched.Once("broadcast:"+room, b.debounce, func() {
		b.fire(room)
	})
}

// ForceSync resets the room's throttle timestamp, pushes immediately, and
// schedules one extra delayed re-push to cover in-flight client state.
func (b *Broadcaster) ForceSync(room string) {
	b.mu.Lock()
	delete(b.lastSent, room)
	b.mu.Unlock()

	b.push(room)

	b.sched.Once("broadcast:repush:"+room, b.repushDelay, func() {
		b.push(room)
	})
}

// StartSweep rebroadcasts every room returned by rooms on a fixed period,
// as a consistency backstop against any missed event. Returns a stop
// function.
func (b *Broadcaster) StartSweep(interval time.Duration, rooms func() []string) func() {
	return b.sched.Every(interval, func() {
		for _, room := range rooms() {
			b.push(room)
		}
	})
}

// fire runs when a debounce timer expires: throttled rooms are skipped,
// the periodic sweep covers them eventually.
func (b *Broadcaster) fire(room string) {
	b.mu.Lock()
	if last, ok := b.lastSent[room]; ok && b.now().Sub(last) < b.minInterval {
		b.mu.Unlock()
		return
	}
	b.lastSent[room] = b.now()
	b.mu.Unlock()

	b.flush(room)
}

// push sends unconditionally and refreshes the throttle timestamp
func (b *Broadcaster) push(room string) {
	b.mu.Lock()
	b.lastSent[room] = b.now()
	b.mu.Unlock()

	b.flush(room)
}
