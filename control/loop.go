// Package control runs fixed-frequency control loops.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/utils"

	"go.viam.com/jtc/logging"
)

// MaxFrequency is the highest loop frequency accepted, in Hz.
const MaxFrequency = 1000.0

// Tickable is updated once per control tick with the tick time.
type Tickable interface {
	Update(now time.Time) error
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithClock sets the clock driving the loop.
func WithClock(clk clock.Clock) LoopOption {
	return func(l *Loop) {
		l.clock = clk
	}
}

// WithErrorHandler sets a function called with tick errors. It runs outside the tick goroutine;
// errors that arrive while a previous one is being handled are counted but not delivered.
func WithErrorHandler(handler func(error)) LoopOption {
	return func(l *Loop) {
		l.onError = handler
	}
}

// Loop calls a Tickable at a fixed frequency.
type Loop struct {
	target    Tickable
	frequency float64
	dt        time.Duration
	clock     clock.Clock
	logger    logging.Logger
	onError   func(error)

	mu                      sync.Mutex
	running                 bool
	ticker                  *clock.Ticker
	errs                    chan error
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup

	ticks    atomic.Uint64
	failures atomic.Uint64
}

// NewLoop returns a stopped loop that will update target frequency times per second.
func NewLoop(target Tickable, frequency float64, logger logging.Logger, opts ...LoopOption) (*Loop, error) {
	if frequency <= 0 || frequency > MaxFrequency {
		return nil, errors.Errorf("loop frequency must be in (0, %v] Hz, got %v", MaxFrequency, frequency)
	}
	l := &Loop{
		target:    target,
		frequency: frequency,
		dt:        time.Duration(float64(time.Second) / frequency),
		clock:     clock.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Frequency returns the loop's frequency.
func (l *Loop) Frequency() float64 {
	return l.frequency
}

// Period returns the time between ticks.
func (l *Loop) Period() time.Duration {
	return l.dt
}

// Start starts ticking. Starting a running loop does nothing.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.logger.Infof("running loop at %1.1fHz (%v)", l.frequency, l.dt)

	cancelCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.ticker = l.clock.Ticker(l.dt)
	l.errs = make(chan error, 1)

	ticker, errs := l.ticker, l.errs
	l.activeBackgroundWorkers.Add(2)
	utils.ManagedGo(func() {
		for {
			select {
			case <-cancelCtx.Done():
				return
			case now := <-ticker.C:
				l.ticks.Inc()
				if err := l.target.Update(now); err != nil {
					l.failures.Inc()
					select {
					case errs <- err:
					default:
					}
				}
			}
		}
	}, l.activeBackgroundWorkers.Done)
	utils.ManagedGo(func() {
		for {
			select {
			case <-cancelCtx.Done():
				return
			case err := <-errs:
				if l.onError != nil {
					l.onError(err)
				} else {
					l.logger.Warnw("control tick failed", "error", err)
				}
			}
		}
	}, l.activeBackgroundWorkers.Done)
	l.running = true
}

// Stop stops ticking and waits for an in-flight tick to finish. Stopping a stopped loop does
// nothing.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.logger.Debug("closing loop")
	l.ticker.Stop()
	l.cancel()
	l.activeBackgroundWorkers.Wait()
	l.running = false
}

// Running reports whether the loop is ticking.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Stats returns the number of ticks run and how many of them failed.
func (l *Loop) Stats() (ticks, failures uint64) {
	return l.ticks.Load(), l.failures.Load()
}
