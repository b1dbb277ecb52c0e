package fetch

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/chain"
	"github.com/NodeSentinel/beacon-validator-monitor/client"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
)

// BlockAndSyncRewards implements §4.4 "Block and sync rewards": for the
// oldest pending slot, fetch the proposer reward and the sync-committee
// rewards, add them into the hour bucket they fall in, and flip both of
// the slot's reward flags. A SLOT_MISSED from either call still records
// zero rows and flips the flags — the slot truly has no block.
func BlockAndSyncRewards(ctx context.Context, log *logrus.Entry, q store.Querier, bc *client.BeaconClient, cfg *chain.Config, maxSlotToFetch uint64) error {
	slot, ok, err := q.OldestSlotMissingFlag(ctx, "consensus_rewards_fetched", maxSlotToFetch)
	if err != nil {
		return errors.Wrap(err, "reading oldest slot missing block/sync rewards")
	}
	if !ok {
		log.Debug("skipping block/sync rewards: no slot pending within fetch horizon")
		return nil
	}

	epoch := cfg.EpochOf(slot)
	committeeMembers, err := q.SyncCommitteeValidators(ctx, epoch)
	if err != nil {
		return errors.Wrapf(err, "reading sync committee for epoch %d", epoch)
	}
	if len(committeeMembers) == 0 {
		log.WithFields(logrus.Fields{"slot": slot, "epoch": epoch}).Info("skipping block/sync rewards: sync committee not yet known")
		return nil
	}

	var rows []store.BlockOrSyncRewardRow

	blockRes, err := bc.BlockRewards(ctx, slot)
	if err != nil {
		return errors.Wrapf(err, "fetching block rewards for slot %d", slot)
	}
	if !blockRes.Missed {
		proposer, err := strconv.ParseUint(blockRes.Value.ProposerIndex, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "parsing proposer index for slot %d", slot)
		}
		rows = append(rows, store.BlockOrSyncRewardRow{ValidatorIndex: proposer, BlockReward: blockRes.Value.Total, SyncReward: "0"})
	}

	syncRes, err := bc.SyncCommitteeRewards(ctx, slot, committeeMembers)
	if err != nil {
		return errors.Wrapf(err, "fetching sync committee rewards for slot %d", slot)
	}
	if !syncRes.Missed {
		for _, reward := range syncRes.Value {
			validator, err := strconv.ParseUint(reward.ValidatorIndex, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "parsing sync reward validator index for slot %d", slot)
			}
			rows = append(rows, store.BlockOrSyncRewardRow{ValidatorIndex: validator, BlockReward: "0", SyncReward: reward.Reward})
		}
	}

	date, hour := cfg.HourOf(slot)
	if err := q.AddBlockAndSyncRewards(ctx, slot, date, hour, rows); err != nil {
		return errors.Wrapf(err, "writing block/sync rewards for slot %d", slot)
	}

	log.WithFields(logrus.Fields{"slot": slot, "rows": len(rows), "block_missed": blockRes.Missed, "sync_missed": syncRes.Missed}).Info("fetched block/sync rewards")
	return nil
}
