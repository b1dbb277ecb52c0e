package fetch

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/chain"
	"github.com/NodeSentinel/beacon-validator-monitor/client"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
)

// SyncCommittees implements §4.4 "Sync committees": normalize the oldest
// pending epoch to its sync-committee period window and upsert one row
// keyed by (fromEpoch, toEpoch).
func SyncCommittees(ctx context.Context, log *logrus.Entry, q store.Querier, bc *client.BeaconClient, cfg *chain.Config, maxSlotToFetch uint64) error {
	maxEpoch := cfg.EpochOf(maxSlotToFetch)
	epoch, ok, err := q.OldestEpochMissingFlag(ctx, store.EpochSyncCommitteesFetched, maxEpoch)
	if err != nil {
		return errors.Wrap(err, "reading oldest epoch missing sync committees")
	}
	if !ok {
		log.Debug("skipping sync committees: no epoch pending within fetch horizon")
		return nil
	}

	fromEpoch := cfg.PeriodStartEpoch(epoch)
	toEpoch := cfg.PeriodEndEpoch(epoch)
	startSlot := cfg.StartSlot(fromEpoch)

	res, err := bc.SyncCommittees(ctx, startSlot, epoch)
	if err != nil {
		return errors.Wrapf(err, "fetching sync committee for epoch %d", epoch)
	}

	if err := q.UpsertSyncCommittee(ctx, fromEpoch, toEpoch, res.Value.Validators); err != nil {
		return errors.Wrapf(err, "upserting sync committee for period [%d,%d]", fromEpoch, toEpoch)
	}
	if err := q.SetEpochFlag(ctx, epoch, store.EpochSyncCommitteesFetched); err != nil {
		return errors.Wrapf(err, "flipping sync_committees_fetched for epoch %d", epoch)
	}

	log.WithFields(logrus.Fields{"epoch": epoch, "period": []uint64{fromEpoch, toEpoch}}).Info("fetched sync committee")
	return nil
}
