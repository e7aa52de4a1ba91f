// Package wait polls observable UI state until it converges.
//
// The trading UI recomputes dependent fields (stop-loss and take-profit points,
// prices) asynchronously after an input changes, and the settle time depends on
// the environment. Fixed sleeps are either flaky or slow, so page objects wait
// on an explicit predicate instead:
//
//	points, err := poller.Numeric("stop-loss points", field.InputValue, 0, 0)
//
// A Poller evaluates the predicate, returns as soon as it holds, and otherwise
// sleeps one interval and evaluates again. Once the timeout has elapsed after a
// false evaluation it fails with *failure.TimedOutError, so the total wait lies
// in [timeout, timeout+interval].
//
// Predicate errors marked transient (failure.Transient) are treated as "not yet";
// any other predicate error stops the wait immediately.
package wait

import (
	"time"

	"github.com/entrhq/aqx-uitest/pkg/failure"
)

// Default timing used when neither the condition nor the poller sets one.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// Predicate reports whether the awaited state holds.
type Predicate func() (bool, error)

// Condition describes one wait: a predicate plus its timing. It is built and
// consumed by a single call and never stored.
type Condition struct {
	Name      string
	Predicate Predicate
	Timeout   time.Duration
	Interval  time.Duration
}

// Observer is notified once per finished wait.
type Observer interface {
	PollFinished(name string, evaluations int, elapsed time.Duration, err error)
}

// Logger receives debug traces of each wait.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// Poller runs wait conditions.
type Poller struct {
	clock    Clock
	timeout  time.Duration
	interval time.Duration
	observer Observer
	logger   Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithDefaults sets the timing used for conditions that leave it zero.
func WithDefaults(timeout, interval time.Duration) Option {
	return func(p *Poller) {
		if timeout > 0 {
			p.timeout = timeout
		}
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithObserver registers an observer for finished waits.
func WithObserver(o Observer) Option {
	return func(p *Poller) { p.observer = o }
}

// WithLogger enables debug tracing.
func WithLogger(l Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// NewPoller creates a poller using the real clock and package defaults.
func NewPoller(opts ...Option) *Poller {
	p := &Poller{
		clock:    RealClock{},
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Clock returns the poller's time source.
func (p *Poller) Clock() Clock {
	return p.clock
}

// Until blocks until c.Predicate holds or c.Timeout elapses.
func (p *Poller) Until(c Condition) error {
	_, err := p.until(c, nil)
	return err
}

// until is the polling loop. lastValue, when non-nil, is read into the timeout
// error so callers can see what the field held when the wait gave up.
func (p *Poller) until(c Condition, lastValue *string) (int, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = p.timeout
	}
	interval := c.Interval
	if interval <= 0 {
		interval = p.interval
	}

	start := p.clock.Now()
	evaluations := 0
	var lastErr error

	for {
		evaluations++
		ok, err := c.Predicate()
		switch {
		case err != nil && !failure.IsTransient(err):
			p.finish(c.Name, evaluations, start, err)
			return evaluations, err
		case err != nil:
			lastErr = err
		case ok:
			p.finish(c.Name, evaluations, start, nil)
			return evaluations, nil
		}

		elapsed := Since(p.clock, start)
		if elapsed >= timeout {
			timedOut := &failure.TimedOutError{
				Condition:   c.Name,
				Timeout:     timeout,
				Elapsed:     elapsed,
				Evaluations: evaluations,
				LastErr:     lastErr,
			}
			if lastValue != nil {
				timedOut.LastValue = *lastValue
			}
			p.finish(c.Name, evaluations, start, timedOut)
			return evaluations, timedOut
		}

		p.clock.Sleep(interval)
	}
}

func (p *Poller) finish(name string, evaluations int, start time.Time, err error) {
	elapsed := Since(p.clock, start)
	if p.logger != nil {
		if err != nil {
			p.logger.Debugf("wait %q failed after %d evaluations in %s: %v", name, evaluations, elapsed, err)
		} else {
			p.logger.Debugf("wait %q converged after %d evaluations in %s", name, evaluations, elapsed)
		}
	}
	if p.observer != nil {
		p.observer.PollFinished(name, evaluations, elapsed, err)
	}
}
