package usecase

import (
	"sync"
	"time"
)

// roundClock drives the per-round countdown. Each arm starts a fresh runner
// and bumps the generation so ticks from a cancelled runner can be ignored.
type roundClock struct {
	interval time.Duration
	manual   bool

	mu   sync.Mutex
	stop chan struct{}
	gen  uint64
}

func newRoundClock(interval time.Duration, manual bool) *roundClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &roundClock{interval: interval, manual: manual}
}

// arm cancels any running countdown and starts a new one calling tick.
func (c *roundClock) arm(tick func(gen uint64)) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disarmLocked()
	c.gen++
	gen := c.gen
	if c.manual {
		return gen
	}

	stop := make(chan struct{})
	c.stop = stop
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				tick(gen)
			}
		}
	}()
	return gen
}

func (c *roundClock) disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disarmLocked()
}

func (c *roundClock) disarmLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.gen++
}

func (c *roundClock) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil && c.gen == gen
}
