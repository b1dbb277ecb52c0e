// Package summarize implements the §4.5 hourly and daily rollups: both wait
// on an "enough data has settled" precondition before aggregating, and both
// advance their watermark only inside the same transaction that writes the
// rolled-up rows (I5), via store.Querier.SummarizeHour/SummarizeDay.
package summarize

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/chain"
	"github.com/NodeSentinel/beacon-validator-monitor/metrics"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
)

// Hourly implements §4.5 "Hourly": aggregate missed-attestation counts for
// the next unsummarized [startTime, startTime+1h) window, once its
// precondition (I2) holds.
func Hourly(ctx context.Context, log *logrus.Entry, q store.Querier, cfg *chain.Config, now time.Time) error {
	startTime, err := q.HourlyWatermark(ctx)
	if err != nil {
		return errors.Wrap(err, "reading hourly watermark")
	}
	endTime := startTime.Add(time.Hour)
	if endTime.After(now) {
		log.Debug("skipping hourly summary: window has not fully elapsed yet")
		return nil
	}

	endSlot := cfg.SlotOf(endTime)
	if endSlot == 0 {
		log.Debug("skipping hourly summary: before genesis")
		return nil
	}
	lastSlotInWindow := endSlot - 1

	slotFlags, err := q.SlotFlagsOf(ctx, lastSlotInWindow)
	if err != nil {
		return errors.Wrapf(err, "reading slot %d flags", lastSlotInWindow)
	}
	if !slotFlags.Exists || !slotFlags.AttestationsFetched || !slotFlags.ConsensusRewardsFetched || !slotFlags.SyncRewardsFetched {
		log.WithField("slot", lastSlotInWindow).Info("skipping hourly summary: per-slot flags not yet complete")
		return nil
	}

	nextEpoch := cfg.EpochOf(endSlot) + 1
	epochFlags, err := q.EpochFlagsOf(ctx, nextEpoch)
	if err != nil {
		return errors.Wrapf(err, "reading epoch %d flags", nextEpoch)
	}
	if !epochFlags.RewardsFetched {
		log.WithField("epoch", nextEpoch).Info("skipping hourly summary: attestation-reward feed has not advanced past the window")
		return nil
	}

	startSlot := cfg.SlotOf(startTime)
	date, hour := cfg.HourOf(startSlot)

	written, err := q.SummarizeHour(ctx, startSlot, lastSlotInWindow, cfg.MaxAttestationDelay, date, hour, endTime)
	if err != nil {
		return errors.Wrapf(err, "summarizing hour [%s,%s)", startTime, endTime)
	}
	if written == 0 {
		log.WithFields(logrus.Fields{"start": startTime, "end": endTime}).Info("hourly summary found nothing to write, watermark not advanced")
		return nil
	}

	metrics.HourlyWatermarkSlot.Set(float64(endSlot))
	log.WithFields(logrus.Fields{"start": startTime, "end": endTime, "validators": written}).Info("summarized hour")
	return nil
}
