package summarize

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/chain"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
)

// minHourlyRowsPerDay is the §4.5 "Daily" precondition (I3): at least 24
// HourlyValidatorStats rows (one per validator per hour) must have landed
// since the last daily rollup before a new day can be summarized.
const minHourlyRowsPerDay = 24

// Daily implements §4.5 "Daily": once 24h have elapsed since the last daily
// watermark and at least 24 hourly rows have landed since then, roll the
// completed day's hourly stats and reward totals into DailyValidatorStats.
func Daily(ctx context.Context, log *logrus.Entry, q store.Querier, cfg *chain.Config, now time.Time) error {
	lastDaily, err := q.DailyWatermark(ctx)
	if err != nil {
		return errors.Wrap(err, "reading daily watermark")
	}
	nextDaily := lastDaily.Add(24 * time.Hour)
	if now.Before(nextDaily) {
		log.Debug("skipping daily summary: 24h have not elapsed since the last watermark")
		return nil
	}

	count, err := q.HourlyStatsCountSince(ctx, lastDaily)
	if err != nil {
		return errors.Wrap(err, "counting hourly stats since last daily watermark")
	}
	if count < minHourlyRowsPerDay {
		log.WithField("hourly_rows", count).Info("skipping daily summary: fewer than 24 hourly rows landed")
		return nil
	}

	lastSlotOfDay := cfg.SlotOf(nextDaily) - 1
	slotFlags, err := q.SlotFlagsOf(ctx, lastSlotOfDay)
	if err != nil {
		return errors.Wrapf(err, "reading slot %d flags", lastSlotOfDay)
	}
	if !slotFlags.Exists || !slotFlags.ConsensusRewardsFetched || !slotFlags.SyncRewardsFetched {
		log.WithField("slot", lastSlotOfDay).Info("skipping daily summary: block/sync rewards not yet complete for the day's last slot")
		return nil
	}

	epoch := cfg.EpochOf(lastSlotOfDay)
	epochFlags, err := q.EpochFlagsOf(ctx, epoch)
	if err != nil {
		return errors.Wrapf(err, "reading epoch %d flags", epoch)
	}
	if !epochFlags.RewardsFetched {
		log.WithField("epoch", epoch).Info("skipping daily summary: attestation rewards not yet fetched for the day's last epoch")
		return nil
	}

	if err := q.SummarizeDay(ctx, lastDaily); err != nil {
		return errors.Wrapf(err, "summarizing day %s", lastDaily)
	}

	log.WithField("day", lastDaily).Info("summarized day")
	return nil
}
