package scheduler

import (
	"context"
	"io/ioutil"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLog(t *testing.T) *logrus.Entry {
	t.Helper()
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return logrus.NewEntry(l)
}

func TestSchedulerRunsImmediatelyAndTicks(t *testing.T) {
	var runs int32
	s := New(testLog(t), []Job{
		{
			ID:             "count",
			Interval:       5 * time.Millisecond,
			RunImmediately: true,
			PreventOverrun: true,
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&runs, 1)
				return nil
			},
		},
	})
	s.Start()
	defer s.Stop()

	deadline := time.After(200 * time.Millisecond)
	for atomic.LoadInt32(&runs) < 3 {
		select {
		case <-deadline:
			t.Fatalf("job only ran %d times in 200ms, want at least 3", atomic.LoadInt32(&runs))
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSchedulerDropsOverlappingTicksWhenPreventOverrunSet(t *testing.T) {
	release := make(chan struct{})
	var started, completed int32
	s := New(testLog(t), []Job{
		{
			ID:             "slow",
			Interval:       2 * time.Millisecond,
			RunImmediately: true,
			PreventOverrun: true,
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&started, 1)
				<-release
				atomic.AddInt32(&completed, 1)
				return nil
			},
		},
	})
	s.Start()

	// Give the scheduler time to fire several ticks while the first run
	// blocks on release; preventOverrun should drop them all.
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&started); got != 1 {
		t.Errorf("started = %d, want exactly 1 while the first run is in flight", got)
	}
	close(release)
	s.Stop()
	if got := atomic.LoadInt32(&completed); got != 1 {
		t.Errorf("completed = %d, want exactly 1", got)
	}
}

func TestSchedulerJobFailureDoesNotStopOtherTicks(t *testing.T) {
	var failingRuns, okRuns int32
	s := New(testLog(t), []Job{
		{
			ID:             "failing",
			Interval:       3 * time.Millisecond,
			RunImmediately: true,
			PreventOverrun: true,
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&failingRuns, 1)
				return errAlways
			},
		},
		{
			ID:             "ok",
			Interval:       3 * time.Millisecond,
			RunImmediately: true,
			PreventOverrun: true,
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&okRuns, 1)
				return nil
			},
		},
	})
	s.Start()
	defer s.Stop()

	deadline := time.After(200 * time.Millisecond)
	for atomic.LoadInt32(&failingRuns) < 3 || atomic.LoadInt32(&okRuns) < 3 {
		select {
		case <-deadline:
			t.Fatalf("failing=%d ok=%d after 200ms, want both >= 3", atomic.LoadInt32(&failingRuns), atomic.LoadInt32(&okRuns))
		case <-time.After(time.Millisecond):
		}
	}
}

var errAlways = errString("boom")

type errString string

func (e errString) Error() string { return string(e) }
