package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/client"
	"github.com/NodeSentinel/beacon-validator-monitor/fetch"
	"github.com/NodeSentinel/beacon-validator-monitor/maintenance"
	"github.com/NodeSentinel/beacon-validator-monitor/scheduler"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
	"github.com/NodeSentinel/beacon-validator-monitor/summarize"
)

// Per-job tick intervals. Spec §4.6 fixes the job set and its
// {preventOverrun, runImmediately} semantics but leaves exact cadences
// unspecified; these are scaled off the chain's own slot duration so a
// fetcher never polls more often than new data could possibly appear, down
// to a practical floor for the slower, epoch/hour/day-scoped jobs.
func jobIntervals(cfg *config) map[string]time.Duration {
	slot := cfg.chain.SlotDuration
	epoch := slot * time.Duration(cfg.chain.SlotsPerEpoch)
	return map[string]time.Duration{
		"create-epochs":               slot,
		"fetch-committees":            slot,
		"fetch-sync-committees":       epoch,
		"fetch-attestations":          slot,
		"fetch-block-and-sync-rewards": slot,
		"fetch-attestation-rewards":   epoch,
		"fetch-validator-info":        epoch,
		"fetch-validator-balances":    epoch,
		"summarize-hourly":            5 * time.Minute,
		"summarize-daily":             30 * time.Minute,
		"cleanup-committee":           10 * time.Minute,
		"prune":                       time.Hour,
	}
}

// buildJobs assembles the §4.6 fixed job set. Every job shares the same
// preventOverrun=true, runImmediately=true shape: an in-flight run is the
// only instance, and the first tick fires immediately on Start rather than
// waiting out a full interval.
func buildJobs(cfg *config, log *logrus.Entry, q store.Querier, vacuumer maintenance.Vacuumer, bc *client.BeaconClient) []scheduler.Job {
	intervals := jobIntervals(cfg)
	chainCfg := cfg.chain

	maxSlotToFetch := func() uint64 { return chainCfg.MaxSlotToFetch(time.Now()) }

	fixed := []struct {
		id  string
		run func(ctx context.Context) error
	}{
		{"create-epochs", func(ctx context.Context) error {
			return fetch.CreateEpochsAndSlots(ctx, log, q, chainCfg, time.Now())
		}},
		{"fetch-committees", func(ctx context.Context) error {
			return fetch.Committees(ctx, log, q, bc, chainCfg, maxSlotToFetch())
		}},
		{"fetch-sync-committees", func(ctx context.Context) error {
			return fetch.SyncCommittees(ctx, log, q, bc, chainCfg, maxSlotToFetch())
		}},
		{"fetch-attestations", func(ctx context.Context) error {
			return fetch.Attestations(ctx, log, q, bc, chainCfg, maxSlotToFetch())
		}},
		{"fetch-block-and-sync-rewards", func(ctx context.Context) error {
			return fetch.BlockAndSyncRewards(ctx, log, q, bc, chainCfg, maxSlotToFetch())
		}},
		{"fetch-attestation-rewards", func(ctx context.Context) error {
			return fetch.AttestationRewards(ctx, log, q, bc, chainCfg, maxSlotToFetch())
		}},
		{"fetch-validator-info", func(ctx context.Context) error {
			return fetch.ValidatorInfo(ctx, log, q, bc, chainCfg, maxSlotToFetch())
		}},
		{"fetch-validator-balances", func(ctx context.Context) error {
			return fetch.ValidatorBalances(ctx, log, q, bc, chainCfg, maxSlotToFetch())
		}},
		{"summarize-hourly", func(ctx context.Context) error {
			return summarize.Hourly(ctx, log, q, chainCfg, time.Now())
		}},
		{"summarize-daily", func(ctx context.Context) error {
			return summarize.Daily(ctx, log, q, chainCfg, time.Now())
		}},
		{"cleanup-committee", func(ctx context.Context) error {
			return maintenance.CleanupCommittee(ctx, log, q, chainCfg, maxSlotToFetch())
		}},
		{"prune", func(ctx context.Context) error {
			return maintenance.Prune(ctx, log, vacuumer)
		}},
	}

	jobs := make([]scheduler.Job, 0, len(fixed))
	for _, f := range fixed {
		jobs = append(jobs, scheduler.Job{
			ID:             f.id,
			Interval:       intervals[f.id],
			RunImmediately: true,
			PreventOverrun: true,
			Run:            f.run,
		})
	}
	return jobs
}
