package scheduler

import (
	"sync"
	"time"
)

// clock counts scheduler ticks. Waiters block on the condition variable
// instead of polling the counter.
type clock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	ticks   uint64
	active  uint64
	idle    uint64
	stopped bool
}

func newClock() *clock {
	k := &clock{}
	k.cond = sync.NewCond(&k.mu)
	return k
}

// advance records one tick, counted as active when any core was busy.
func (k *clock) advance(busy bool) {
	k.mu.Lock()
	k.ticks++
	if busy {
		k.active++
	} else {
		k.idle++
	}
	k.mu.Unlock()
	k.cond.Broadcast()
}

// waitUntil blocks until the counter reaches target or the clock is halted.
func (k *clock) waitUntil(target uint64) (uint64, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for k.ticks < target && !k.stopped {
		k.cond.Wait()
	}
	return k.ticks, !k.stopped
}

func (k *clock) now() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

func (k *clock) cpuTicks() (active, idle uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active, k.idle
}

func (k *clock) halt() {
	k.mu.Lock()
	k.stopped = true
	k.mu.Unlock()
	k.cond.Broadcast()
}

func (k *clock) resume() {
	k.mu.Lock()
	k.stopped = false
	k.mu.Unlock()
}

// runClock advances the clock every interval until stop is closed.
func (s *Scheduler) runClock(interval time.Duration, stop <-chan struct{}) {
	defer s.background.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.clock.advance(s.busyCores() > 0)
		}
	}
}
