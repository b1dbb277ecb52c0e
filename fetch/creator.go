// Package fetch implements the idempotent forward-progress tasks of
// spec §4.4: one module per beacon feed, each reading a watermark from the
// store, computing the next target, verifying prerequisite flags, fetching
// via the beacon client, writing back, and flipping the completion flag.
// The attestation, block/sync-reward and attestation-reward fetchers flip
// their flag in the same transaction as their writes; the committee,
// sync-committee, validator-info and validator-balance fetchers flip it
// with a separate statement after their writes have committed.
//
// Grounded on the teacher's slasher/beaconclient/historical_data_retrieval.go
// pagination loop: read progress, fetch the next page, persist, advance —
// generalized from a single gRPC stream to the store-driven watermark model
// this spec requires.
package fetch

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/chain"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
)

// CreateEpochsAndSlots is the forward-scanning creator task of §3
// "Lifecycles": it ensures every Epoch/Slot row from oldestLookbackSlot to
// currentSlot-delaySlotsToHead exists.
func CreateEpochsAndSlots(ctx context.Context, log *logrus.Entry, q store.Querier, cfg *chain.Config, now time.Time) error {
	from := cfg.OldestLookbackSlot(now)
	to := cfg.MaxSlotToFetch(now)
	if to < from {
		log.Debug("skipping epoch/slot creation: max slot to fetch precedes lookback floor")
		return nil
	}

	latest, ok, err := q.LatestCreatedSlot(ctx)
	if err != nil {
		return errors.Wrap(err, "reading latest created slot")
	}
	if ok && latest >= from {
		from = latest + 1
	}
	if from > to {
		log.Debug("skipping epoch/slot creation: already caught up to max slot to fetch")
		return nil
	}

	if err := q.EnsureEpochsAndSlots(ctx, from, to, cfg.SlotsPerEpoch); err != nil {
		return errors.Wrap(err, "creating epochs and slots")
	}
	log.WithFields(logrus.Fields{"from_slot": from, "to_slot": to}).Info("created epochs and slots")
	return nil
}
