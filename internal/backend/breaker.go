package backend

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/slok/goresilience"
	"github.com/slok/goresilience/circuitbreaker"
	resilienceerrors "github.com/slok/goresilience/errors"

	"github.com/pitabwire/maximiza/internal/config"
)

// ErrBreakerOpen is returned by Do while the breaker rejects calls.
var ErrBreakerOpen = errors.New("backend: circuit breaker is open")

// errCountedFailure stands in for a failed call that produced no error.
var errCountedFailure = errors.New("backend: counted failure")

// BreakerState is the position of a Breaker.
type BreakerState int

const (
	// BreakerClosed lets every call through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cool-down elapses.
	BreakerOpen
	// BreakerHalfOpen lets trial calls through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

const (
	windowBuckets  = 10
	defaultWindow  = 10 * time.Second
	allCallsFailed = 99
)

// Breaker guards the backend with a goresilience circuit breaker. Calls
// report for themselves whether they count as a failure, so answers the
// backend gave on purpose (4xx) never trip it.
//
// The goresilience breaker keeps its state private; Breaker mirrors it
// from what happens to each call so the state can be exported as a gauge.
// Safe for concurrent use.
type Breaker struct {
	runner goresilience.Runner
	cfg    config.CircuitBreakerConfig
	now    func() time.Time

	mu        sync.Mutex
	state     BreakerState
	openedAt  time.Time
	successes int
}

// NewBreaker builds a closed breaker. It opens once FailureThreshold calls
// in the error-rate window have failed at ErrorRateThreshold or more; with
// no threshold set every call in the window must have failed. Zero values
// fall back to 5 calls, 2 half-open successes, a 30s cool-down and a 10s
// window.
func NewBreaker(cfg config.CircuitBreakerConfig) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ErrorRateWindow <= 0 {
		cfg.ErrorRateWindow = defaultWindow
	}

	percent := allCallsFailed
	if cfg.ErrorRateThreshold > 0 {
		percent = min(max(int(math.Round(cfg.ErrorRateThreshold*100)), 1), allCallsFailed)
	}
	bucket := max(cfg.ErrorRateWindow/windowBuckets, time.Millisecond)

	return &Breaker{
		runner: goresilience.RunnerChain(circuitbreaker.NewMiddleware(circuitbreaker.Config{
			ErrorPercentThresholdToOpen:        percent,
			MinimumRequestToOpen:               cfg.FailureThreshold,
			SuccessfulRequiredOnHalfOpen:       cfg.SuccessThreshold,
			WaitDurationInOpenState:            cfg.Timeout,
			MetricsSlidingWindowBucketQuantity: windowBuckets,
			MetricsBucketDuration:              bucket,
		})),
		cfg: cfg,
		now: time.Now,
	}
}

// Do runs fn unless the breaker is open, in which case it returns
// ErrBreakerOpen without calling fn. fn returns its error and whether the
// call counts as a backend failure; Do returns fn's error unchanged.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) (failed bool, err error)) error {
	var (
		ran     bool
		failed  bool
		callErr error
	)
	err := b.runner.Run(ctx, func(ctx context.Context) error {
		ran = true
		failed, callErr = fn(ctx)
		if !failed {
			return nil
		}
		if callErr == nil {
			return errCountedFailure
		}
		return callErr
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	if !ran {
		if errors.Is(err, resilienceerrors.ErrCircuitOpen) {
			b.markOpen()
			return ErrBreakerOpen
		}
		return err
	}
	b.observe(failed)
	return callErr
}

// State returns the state last observed, moving Open to HalfOpen once the
// cool-down has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.advance()
}

// The helpers below expect b.mu to be held.

func (b *Breaker) advance() BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.Timeout {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
	return b.state
}

func (b *Breaker) markOpen() {
	if b.state != BreakerOpen {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
	b.successes = 0
}

// observe mirrors a call that went through. A call passing an open breaker
// means the cool-down ended and it is a half-open trial.
func (b *Breaker) observe(failed bool) {
	if b.state == BreakerOpen {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
	if b.state != BreakerHalfOpen {
		return
	}
	if failed {
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.successes = 0
		return
	}
	b.successes++
	if b.successes >= b.cfg.SuccessThreshold {
		b.state = BreakerClosed
		b.successes = 0
	}
}
