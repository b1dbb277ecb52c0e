package client

import (
	"context"
	"io/ioutil"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return New(Config{
		FullBaseURL:         "http://full",
		ArchiveBaseURL:      "http://archive",
		FullNodeConcurrency: 2,
		ArchiveConcurrency:  4,
		RequestsPerSecond:   1000,
		Retry:               RetryConfig{Retries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond},
		Log:                 logrus.NewEntry(l),
	})
}

func TestDoSucceedsFirstTry(t *testing.T) {
	c := testClient(t)
	res, err := Do(context.Background(), c, PoolFull, PropagateError, func(ctx context.Context, baseURL string) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != 42 || res.Missed {
		t.Errorf("got %+v, want value=42 missed=false", res)
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	c := testClient(t)
	var calls int32
	res, err := Do(context.Background(), c, PoolFull, PropagateError, func(ctx context.Context, baseURL string) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return 0, &HTTPStatusError{StatusCode: 503, Err: errTransient}
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != 7 {
		t.Errorf("got %d, want 7", res.Value)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoMissed404AsSentinel(t *testing.T) {
	c := testClient(t)
	res, err := Do(context.Background(), c, PoolFull, Missed404AsSentinel, func(ctx context.Context, baseURL string) (int, error) {
		return 0, &HTTPStatusError{StatusCode: 404, Err: errNotFound}
	})
	if err != nil {
		t.Fatalf("unexpected error, want sentinel: %v", err)
	}
	if !res.Missed {
		t.Errorf("expected Missed=true")
	}
}

func TestDoPropagatesAfterRetriesExhausted(t *testing.T) {
	c := testClient(t)
	_, err := Do(context.Background(), c, PoolFull, PropagateError, func(ctx context.Context, baseURL string) (int, error) {
		return 0, &HTTPStatusError{StatusCode: 503, Err: errTransient}
	})
	if err == nil {
		t.Fatalf("expected error after retries exhausted")
	}
}

func TestDoNonMissedErrorNotSwallowedByPolicy(t *testing.T) {
	c := testClient(t)
	_, err := Do(context.Background(), c, PoolFull, Missed404AsSentinel, func(ctx context.Context, baseURL string) (int, error) {
		return 0, &HTTPStatusError{StatusCode: 500, Err: errTransient}
	})
	if err == nil {
		t.Fatalf("expected a 500 to still propagate, not be treated as missed")
	}
}

var errTransient = &testError{"transient failure"}
var errNotFound = &testError{"not found"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
