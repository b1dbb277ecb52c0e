// Package scheduler implements spec §4.6: a fixed set of periodic jobs,
// each guarded against overrunning itself, run concurrently with one
// another, never terminated by a job's own failure.
//
// Grounded on the teacher's beacon-chain/node.BeaconNode Start/Close shape:
// one owner goroutine per long-lived loop, a stop channel for shutdown, and
// every failure caught and logged rather than propagated up.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/metrics"
)

// Job is one entry of the §4.6 fixed job set: its ID, Interval,
// RunImmediately and PreventOverrun settings plus the work it performs.
// There is no per-job switch for logging; every job's runs are logged.
type Job struct {
	// ID names the job for logging and is never overloaded for control flow.
	ID string

	// Interval is the tick period between runs.
	Interval time.Duration

	// RunImmediately fires the job once at Start before waiting out the
	// first interval.
	RunImmediately bool

	// PreventOverrun, when true, drops a tick that arrives while the
	// previous run of this same job is still in flight rather than queuing
	// it. Per §4.6 every job in the fixed set has this on; the field exists
	// so a future one-off job could opt out.
	PreventOverrun bool

	// Run performs one unit of work. Run must not block past ctx
	// cancellation; jobs that call through the reliable client inherit its
	// per-call timeouts.
	Run func(ctx context.Context) error
}

// Scheduler drives a fixed set of Jobs, each on its own ticker goroutine.
// Different jobs run concurrently; within a job, preventOverrun means an
// in-flight run is the only instance.
type Scheduler struct {
	jobs []Job
	log  *logrus.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Scheduler over the given fixed job set.
func New(log *logrus.Entry, jobs []Job) *Scheduler {
	return &Scheduler{jobs: jobs, log: log}
}

// Start launches one goroutine per job, matching the shared.Service
// lifecycle the orchestrator expects from every long-lived component.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, job := range s.jobs {
		job := job
		jobLog := s.log.WithField("job", job.ID)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runLoop(ctx, job, jobLog)
		}()
	}
	s.log.WithField("jobs", len(s.jobs)).Info("scheduler started")
}

func (s *Scheduler) runLoop(ctx context.Context, job Job, jobLog *logrus.Entry) {
	var busy int32

	execute := func() {
		if job.PreventOverrun {
			if !atomic.CompareAndSwapInt32(&busy, 0, 1) {
				jobLog.Warn("tick dropped: previous run still in flight")
				metrics.JobOverrunsDropped.WithLabelValues(job.ID).Inc()
				return
			}
			defer atomic.StoreInt32(&busy, 0)
		}
		start := time.Now()
		err := job.Run(ctx)
		metrics.JobDuration.WithLabelValues(job.ID).Observe(time.Since(start).Seconds())
		if err != nil {
			jobLog.WithError(err).WithField("elapsed", time.Since(start)).Error("job run failed")
			metrics.JobRuns.WithLabelValues(job.ID, "error").Inc()
			return
		}
		jobLog.WithField("elapsed", time.Since(start)).Debug("job run completed")
		metrics.JobRuns.WithLabelValues(job.ID, "ok").Inc()
	}

	if job.RunImmediately {
		execute()
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			jobLog.Debug("context canceled, stopping job loop")
			return
		case <-ticker.C:
			execute()
		}
	}
}

// Stop cancels every job loop and waits for in-flight runs to finish or for
// drainTimeout to elapse, whichever comes first, matching §4.6
// cancellation: "waits for in-flight jobs to finish or time out".
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	const drainTimeout = 30 * time.Second
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-time.After(drainTimeout):
		s.log.Warn("scheduler stop timed out waiting for in-flight jobs")
	}
	return nil
}

// Status always reports the scheduler as healthy, whether or not it has
// been started; individual job failures are logged, not surfaced here, since a failing
// job is expected to retry on its own next tick.
func (s *Scheduler) Status() error {
	return nil
}
