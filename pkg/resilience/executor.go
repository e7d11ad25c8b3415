// Package resilience bounds calls to external stores with a per-call timeout,
// jittered retries and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrBreakerOpen is returned when the breaker rejects a call.
var ErrBreakerOpen = errors.New("circuit breaker open")

type Options struct {
	Name            string
	Timeout         time.Duration
	Retries         int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	OnStateChange   func(name string, from, to string)
}

type Option func(*Options)

func WithName(name string) Option { return func(o *Options) { o.Name = name } }

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }

func WithRetries(n int, base, max time.Duration) Option {
	return func(o *Options) {
		o.Retries = n
		o.BackoffBase = base
		o.BackoffMax = max
	}
}

// WithBreaker trips after the given consecutive failures and half-opens after timeout.
func WithBreaker(failures uint32, timeout time.Duration) Option {
	return func(o *Options) {
		o.BreakerFailures = failures
		o.BreakerTimeout = timeout
	}
}

func WithStateChange(fn func(name string, from, to string)) Option {
	return func(o *Options) { o.OnStateChange = fn }
}

// Executor runs operations against one dependency. Safe for concurrent use.
type Executor struct {
	opts Options
	cb   *gobreaker.CircuitBreaker
}

func New(opts ...Option) *Executor {
	o := Options{
		Name:            "store",
		Timeout:         5 * time.Second,
		Retries:         2,
		BackoffBase:     100 * time.Millisecond,
		BackoffMax:      2 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	st := gobreaker.Settings{Name: o.Name}
	st.Interval = 60 * time.Second
	st.Timeout = o.BreakerTimeout
	failures := o.BreakerFailures
	st.ReadyToTrip = func(c gobreaker.Counts) bool {
		if c.ConsecutiveFailures >= failures {
			return true
		}
		if c.Requests < 20 {
			return false
		}
		return float64(c.TotalFailures)/float64(c.Requests) > 0.5
	}
	// caller cancellation and permanent errors say nothing about store health
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled) || IsPermanent(err)
	}
	if o.OnStateChange != nil {
		cb := o.OnStateChange
		st.OnStateChange = func(name string, from, to gobreaker.State) { cb(name, from.String(), to.String()) }
	}

	return &Executor{opts: o, cb: gobreaker.NewCircuitBreaker(st)}
}

// State reports the breaker state: closed, half-open or open.
func (e *Executor) State() string { return e.cb.State().String() }

// Do runs fn with a per-attempt timeout, retrying transient failures.
// It stops at once on parent cancellation, a permanent error or an open breaker.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 0; attempt <= e.opts.Retries; attempt++ {
		if attempt > 0 {
			if err := Sleep(ctx, Backoff(e.opts.BackoffBase, e.opts.BackoffMax, attempt)); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}

		_, err := e.cb.Execute(func() (interface{}, error) {
			callCtx := ctx
			if e.opts.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
				defer cancel()
			}
			return nil, fn(callCtx)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s: %w", op, ErrBreakerOpen)
		}
		if IsPermanent(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		last = err
	}
	return fmt.Errorf("%s: after %d attempts: %w", op, e.opts.Retries+1, last)
}

// Call is Do for operations that return a value.
func Call[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// IsBreakerOpen reports whether err came from an open breaker.
func IsBreakerOpen(err error) bool { return errors.Is(err, ErrBreakerOpen) }
