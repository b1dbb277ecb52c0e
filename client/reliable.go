package client

import (
	"context"
	"time"

	"github.com/paulbellamy/ratecounter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gopkg.in/cenkalti/backoff.v1"

	"github.com/NodeSentinel/beacon-validator-monitor/metrics"
	"github.com/NodeSentinel/beacon-validator-monitor/ratelimit"
)

// Missed is the tagged sentinel of design note §9: a first-class "this slot
// has nothing" outcome that must never be smuggled through the error
// channel. A Result's Missed flag is authoritative only when the call that
// returned it also returned a nil error.
type Result[T any] struct {
	Value  T
	Missed bool
}

// ErrorPolicy is one of a small, closed set of ways a reliable request can
// turn a terminal error (retries exhausted) into a sentinel result instead
// of propagating the error. Per design note §9 this replaces a dynamic
// closure with a named, enumerable set of policies.
type ErrorPolicy int

// Known error policies.
const (
	// PropagateError surfaces the terminal error unchanged. Default.
	PropagateError ErrorPolicy = iota
	// Missed404AsSentinel turns an HTTP 404 into a Missed result; any other
	// error still propagates. Used on every slot-addressed endpoint.
	Missed404AsSentinel
)

// HTTPStatusError carries the status code of a non-2xx beacon API response
// so error policies can branch on it without string matching.
type HTTPStatusError struct {
	StatusCode int
	Err        error
}

func (e *HTTPStatusError) Error() string { return e.Err.Error() }
func (e *HTTPStatusError) Unwrap() error { return e.Err }

// RetryConfig controls the exponential-backoff retry wrapped around every
// attempt, per spec §4.2: delay = baseDelay * 2^(attempt-1) plus jitter,
// capped at maxDelay.
type RetryConfig struct {
	Retries  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryConfig matches the spec's description of a small number of
// retries with a short base delay, suitable for most beacon endpoints.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Retries: 5, BaseDelay: 250 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// Client is the reliable beacon-request dispatcher of spec §4.2: it
// multiplexes between a full-node and archive-node base URL, each gated by
// its own concurrency semaphore, wrapped in retry-with-backoff, and fed
// through a single process-global rate limiter before any HTTP send.
//
// Grounded on the teacher's client/rpcclient.Service (one small service
// owning a connection) combined with the per-peer concurrency gate in
// beacon-chain/sync/initial-sync/blocks_fetcher.go, generalized from one
// gate per libp2p peer to one gate per node pool.
type Client struct {
	fullBaseURL    string
	archiveBaseURL string

	fullSem    *semaphore.Weighted
	archiveSem *semaphore.Weighted

	limiter *ratelimit.Limiter
	rps     *ratecounter.RateCounter
	retry   RetryConfig

	log *logrus.Entry
}

// Config configures a new reliable Client.
type Config struct {
	FullBaseURL         string
	ArchiveBaseURL      string
	FullNodeConcurrency int64
	ArchiveConcurrency  int64
	RequestsPerSecond   int
	Retry               RetryConfig
	Log                 *logrus.Entry
}

// New constructs a reliable Client from cfg.
func New(cfg Config) *Client {
	retry := cfg.Retry
	if retry.Retries == 0 {
		retry = DefaultRetryConfig()
	}
	return &Client{
		fullBaseURL:    cfg.FullBaseURL,
		archiveBaseURL: cfg.ArchiveBaseURL,
		fullSem:        semaphore.NewWeighted(cfg.FullNodeConcurrency),
		archiveSem:     semaphore.NewWeighted(cfg.ArchiveConcurrency),
		limiter:        ratelimit.New(cfg.RequestsPerSecond),
		rps:            ratecounter.NewRateCounter(time.Second),
		retry:          retry,
		log:            cfg.Log,
	}
}

// RequestsPerSecond reports the rolling count of beacon requests issued in
// the last second, sampled alongside the rate limiter's token level.
func (c *Client) RequestsPerSecond() int64 {
	return c.rps.Rate()
}

func (c *Client) semaphoreFor(pool Pool) *semaphore.Weighted {
	if pool == PoolArchive {
		return c.archiveSem
	}
	return c.fullSem
}

func (c *Client) baseURLFor(pool Pool) string {
	if pool == PoolArchive {
		return c.archiveBaseURL
	}
	return c.fullBaseURL
}

// Do executes call against the chosen pool's base URL, honoring the pool's
// concurrency gate and the global rate limiter, retrying transient failures
// with exponential backoff, and applying policy to a terminal error.
func Do[T any](ctx context.Context, c *Client, pool Pool, policy ErrorPolicy, call func(ctx context.Context, baseURL string) (T, error)) (Result[T], error) {
	sem := c.semaphoreFor(pool)
	if err := sem.Acquire(ctx, 1); err != nil {
		var zero Result[T]
		return zero, errors.Wrap(err, "acquiring pool semaphore")
	}
	metrics.PoolInFlight.WithLabelValues(pool.String()).Inc()
	defer func() {
		metrics.PoolInFlight.WithLabelValues(pool.String()).Dec()
		sem.Release(1)
	}()

	start := time.Now()
	defer func() {
		metrics.ReliableRequestLatency.WithLabelValues(pool.String()).Observe(time.Since(start).Seconds())
	}()

	baseURL := c.baseURLFor(pool)

	var value T
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			metrics.ReliableRequestAttempts.WithLabelValues(pool.String(), "retry").Inc()
		}
		c.limiter.Wait()
		metrics.RateLimiterTokens.Set(float64(c.limiter.Remaining()))
		c.rps.Incr(1)
		metrics.RequestsPerSecond.Set(float64(c.rps.Rate()))
		v, err := call(ctx, baseURL)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		value = v
		return nil
	}

	b := c.backoffFor(ctx)
	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		if c.log != nil {
			c.log.WithError(err).WithFields(logrus.Fields{
				"pool":    pool.String(),
				"attempt": attempt,
				"wait":    wait,
			}).Warn("beacon request attempt failed, retrying")
		}
	})

	if err != nil {
		if policy == Missed404AsSentinel && isNotFound(err) {
			metrics.ReliableRequestAttempts.WithLabelValues(pool.String(), "missed").Inc()
			return Result[T]{Missed: true}, nil
		}
		metrics.ReliableRequestAttempts.WithLabelValues(pool.String(), "error").Inc()
		var zero Result[T]
		return zero, errors.Wrap(err, "upstream unavailable after retries")
	}
	metrics.ReliableRequestAttempts.WithLabelValues(pool.String(), "success").Inc()
	return Result[T]{Value: value}, nil
}

func isNotFound(err error) bool {
	var httpErr *HTTPStatusError
	return errors.As(err, &httpErr) && httpErr.StatusCode == 404
}

// backoffFor builds a bounded exponential backoff matching spec §4.2:
// baseDelay*2^(n-1) with jitter, capped, retried up to c.retry.Retries times.
func (c *Client) backoffFor(ctx context.Context) backoff.BackOff {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     c.retry.BaseDelay,
		RandomizationFactor: 0.25,
		Multiplier:          2,
		MaxInterval:         c.retry.MaxDelay,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	eb.Reset()
	withCtx := backoff.WithContext(eb, ctx)
	return backoff.WithMaxRetries(withCtx, uint64(c.retry.Retries))
}
