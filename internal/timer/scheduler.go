package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CancelFunc stops a periodic registration. Calling it twice is a no-op.
type CancelFunc func()

// Scheduler runs periodic work for the reconciler.
type Scheduler interface {
	OnTick(fn func(), period time.Duration) CancelFunc
	OnRefresh(fn func(), period time.Duration) CancelFunc
}

// ClockScheduler drives registrations from a clockwork clock, so tests can
// advance time with a fake clock.
type ClockScheduler struct {
	clock clockwork.Clock
	wg    sync.WaitGroup
}

func NewClockScheduler(clock clockwork.Clock) *ClockScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClockScheduler{clock: clock}
}

func (s *ClockScheduler) OnTick(fn func(), period time.Duration) CancelFunc {
	return s.every(fn, period)
}

func (s *ClockScheduler) OnRefresh(fn func(), period time.Duration) CancelFunc {
	return s.every(fn, period)
}

// Wait blocks until every cancelled registration has returned.
func (s *ClockScheduler) Wait() {
	s.wg.Wait()
}

func (s *ClockScheduler) every(fn func(), period time.Duration) CancelFunc {
	ticker := s.clock.NewTicker(period)
	done := make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
