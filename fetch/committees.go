package fetch

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/chain"
	"github.com/NodeSentinel/beacon-validator-monitor/client"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
)

// Committees implements §4.4 "Committees": for the oldest epoch still
// missing its committees, fetch every committee assignment, write one
// Committee row per (slot, index, position, validatorIndex), recompute
// each touched slot's committeesCountInSlot vector, and flip
// Epoch.committeesFetched.
func Committees(ctx context.Context, log *logrus.Entry, q store.Querier, bc *client.BeaconClient, cfg *chain.Config, maxSlotToFetch uint64) error {
	maxEpoch := cfg.EpochOf(maxSlotToFetch)
	epoch, ok, err := q.OldestEpochMissingFlag(ctx, store.EpochCommitteesFetched, maxEpoch)
	if err != nil {
		return errors.Wrap(err, "reading oldest epoch missing committees")
	}
	if !ok {
		log.Debug("skipping committees: no epoch pending within fetch horizon")
		return nil
	}

	res, err := bc.Committees(ctx, epoch)
	if err != nil {
		return errors.Wrapf(err, "fetching committees for epoch %d", epoch)
	}

	var members []store.CommitteeMember
	for _, duty := range res.Value {
		for position, validator := range duty.Validators {
			members = append(members, store.CommitteeMember{
				Slot:           duty.Slot,
				Index:          duty.Index,
				Position:       position,
				ValidatorIndex: validator,
			})
		}
	}

	if err := q.UpsertCommittees(ctx, epoch, members); err != nil {
		return errors.Wrapf(err, "upserting committees for epoch %d", epoch)
	}
	if err := q.SetEpochFlag(ctx, epoch, store.EpochCommitteesFetched); err != nil {
		return errors.Wrapf(err, "flipping committees_fetched for epoch %d", epoch)
	}

	log.WithFields(logrus.Fields{"epoch": epoch, "committee_rows": len(members)}).Info("fetched committees")
	return nil
}
