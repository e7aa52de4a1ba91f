// Package retry re-runs UI interactions that fail transiently.
//
// An action reports its outcome as an explicit Result: Ok, TransientErr or
// FatalErr. Only transient outcomes are retried; a fatal outcome or success ends
// the loop at once. When every attempt allowed by the Policy fails transiently
// the caller gets a *failure.ExhaustedError wrapping the final attempt's error.
package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/aqx-uitest/pkg/failure"
	"github.com/entrhq/aqx-uitest/pkg/wait"
)

// Kind classifies the outcome of one attempt.
type Kind int

const (
	KindOK Kind = iota
	KindTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of a single attempt.
type Result[T any] struct {
	Value T
	Kind  Kind
	Err   error
}

// Ok is a successful attempt.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Kind: KindOK}
}

// TransientErr is a failed attempt that may succeed if repeated.
func TransientErr[T any](err error) Result[T] {
	return Result[T]{Kind: KindTransient, Err: err}
}

// FatalErr is a failed attempt that must not be repeated.
func FatalErr[T any](err error) Result[T] {
	return Result[T]{Kind: KindFatal, Err: err}
}

// From classifies a conventional (value, error) pair using failure.IsTransient.
func From[T any](v T, err error) Result[T] {
	switch {
	case err == nil:
		return Ok(v)
	case failure.IsTransient(err):
		return TransientErr[T](err)
	default:
		return FatalErr[T](err)
	}
}

// BackoffFunc returns the delay before the given attempt (2, 3, ...), given
// the policy's base delay.
type BackoffFunc func(attempt int, delay time.Duration) time.Duration

// Constant waits delay between every pair of attempts.
func Constant() BackoffFunc {
	return func(_ int, delay time.Duration) time.Duration { return delay }
}

// Linear adds step for every attempt after the second.
func Linear(step time.Duration) BackoffFunc {
	return func(attempt int, delay time.Duration) time.Duration {
		return delay + time.Duration(attempt-2)*step
	}
}

// Exponential multiplies the delay by mult per attempt, capped at limit when limit > 0.
func Exponential(mult float64, limit time.Duration) BackoffFunc {
	return func(attempt int, delay time.Duration) time.Duration {
		d := float64(delay)
		for i := 2; i < attempt; i++ {
			d *= mult
			if limit > 0 && d > float64(limit) {
				return limit
			}
		}
		if limit > 0 && time.Duration(d) > limit {
			return limit
		}
		return time.Duration(d)
	}
}

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int
	// Delay is the base wait between attempts.
	Delay time.Duration
	// Backoff derives the actual wait from Delay. Nil means Constant.
	Backoff BackoffFunc
}

// DefaultPolicy is three attempts one second apart.
var DefaultPolicy = Policy{MaxAttempts: 3, Delay: time.Second}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) delayBefore(attempt int) time.Duration {
	backoff := p.Backoff
	if backoff == nil {
		backoff = Constant()
	}
	d := backoff(attempt, p.Delay)
	if d < 0 {
		return 0
	}
	return d
}

// Observer is told about every attempt and every exhausted loop.
type Observer interface {
	RetryAttempt(name string, attempt int, kind Kind)
	RetryExhausted(name string, attempts int)
}

// Logger receives per-attempt warnings.
type Logger interface {
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Executor runs retry loops against a clock.
type Executor struct {
	clock    wait.Clock
	observer Observer
	logger   Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the time source used between attempts.
func WithClock(c wait.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// WithObserver registers an attempt observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithLogger enables attempt logging.
func WithLogger(l Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor returns an executor on the real clock.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{clock: wait.RealClock{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run invokes action until it succeeds, fails fatally, or the policy's
// attempts are used up. Attempts are numbered from 1.
func Run[T any](e *Executor, name string, policy Policy, action func(attempt int) Result[T]) (T, error) {
	var zero T
	attempts := policy.attempts()
	var last error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			e.clock.Sleep(policy.delayBefore(attempt))
		}

		res := action(attempt)
		if res.Kind != KindOK && res.Err == nil {
			res.Err = errors.New("attempt failed without an error")
		}
		if e.observer != nil {
			e.observer.RetryAttempt(name, attempt, res.Kind)
		}

		switch res.Kind {
		case KindOK:
			if attempt > 1 && e.logger != nil {
				e.logger.Debugf("%s succeeded on attempt %d/%d", name, attempt, attempts)
			}
			return res.Value, nil
		case KindTransient:
			last = res.Err
			if e.logger != nil {
				e.logger.Warnf("%s attempt %d/%d failed: %v", name, attempt, attempts, res.Err)
			}
		default:
			return zero, res.Err
		}
	}

	if e.observer != nil {
		e.observer.RetryExhausted(name, attempts)
	}
	return zero, &failure.ExhaustedError{Op: name, Attempts: attempts, Err: last}
}

// Do retries fn, classifying its error with failure.IsTransient.
func (e *Executor) Do(name string, policy Policy, fn func() error) error {
	_, err := Run(e, name, policy, func(int) Result[struct{}] {
		return From(struct{}{}, fn())
	})
	return err
}
