package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// AddBlockAndSyncRewards upserts proposer/sync-committee rewards for slot s
// into the hour bucket (date, hour) computed from timeOf(s), adding to any
// existing values (§4.4 "Block and sync rewards": "add to any existing
// values"), then flips both of slot s's reward flags in the same
// transaction.
func (s *Store) AddBlockAndSyncRewards(ctx context.Context, slot uint64, date time.Time, hour int, rows []BlockOrSyncRewardRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning block/sync reward tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hourly_block_and_sync_rewards (validator_index, date, hour, block_reward, sync_reward)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (validator_index, date, hour) DO UPDATE SET
			block_reward = hourly_block_and_sync_rewards.block_reward + EXCLUDED.block_reward,
			sync_reward  = hourly_block_and_sync_rewards.sync_reward  + EXCLUDED.sync_reward`)
	if err != nil {
		return errors.Wrap(err, "preparing block/sync reward upsert")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ValidatorIndex, date, hour, r.BlockReward, r.SyncReward); err != nil {
			return errors.Wrapf(err, "upserting block/sync reward for validator %d", r.ValidatorIndex)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE slots SET consensus_rewards_fetched = TRUE, sync_rewards_fetched = TRUE WHERE slot = $1`, slot); err != nil {
		return errors.Wrapf(err, "flipping reward flags for slot %d", slot)
	}

	return errors.Wrap(tx.Commit(), "committing block/sync reward write")
}

// StageAndMergeAttestationRewards implements §4.4's "Attestation rewards"
// write path with the Open Question #1 fix applied: the temp-table
// truncate, staging insert, merge into the hourly table, and the epoch
// flag flip all happen inside one transaction, giving true at-most-once
// semantics per epoch even across a crash mid-fetch.
func (s *Store) StageAndMergeAttestationRewards(ctx context.Context, epoch uint64, date time.Time, hour int, rows []AttestationRewardRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning attestation reward tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE epoch_rewards_temp`); err != nil {
		return errors.Wrap(err, "truncating epoch rewards temp table")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO epoch_rewards_temp
			(validator_index, date, hour, head, target, source, inactivity,
			 missed_head, missed_target, missed_source, missed_inactivity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	if err != nil {
		return errors.Wrap(err, "preparing attestation reward staging insert")
	}
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ValidatorIndex, date, hour, r.Head, r.Target, r.Source, r.Inactivity,
			r.MissedHead, r.MissedTarget, r.MissedSource, r.MissedInactivity); err != nil {
			stmt.Close()
			return errors.Wrapf(err, "staging attestation reward for validator %d", r.ValidatorIndex)
		}
	}
	stmt.Close()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO hourly_validator_stats
			(validator_index, date, hour, head, target, source, inactivity,
			 missed_head, missed_target, missed_source, missed_inactivity)
		SELECT validator_index, date, hour,
		       SUM(head), SUM(target), SUM(source), SUM(inactivity),
		       SUM(missed_head), SUM(missed_target), SUM(missed_source), SUM(missed_inactivity)
		FROM epoch_rewards_temp
		GROUP BY validator_index, date, hour
		ON CONFLICT (validator_index, date, hour) DO UPDATE SET
			head              = hourly_validator_stats.head              + EXCLUDED.head,
			target            = hourly_validator_stats.target            + EXCLUDED.target,
			source            = hourly_validator_stats.source            + EXCLUDED.source,
			inactivity        = hourly_validator_stats.inactivity        + EXCLUDED.inactivity,
			missed_head       = hourly_validator_stats.missed_head       + EXCLUDED.missed_head,
			missed_target     = hourly_validator_stats.missed_target     + EXCLUDED.missed_target,
			missed_source     = hourly_validator_stats.missed_source     + EXCLUDED.missed_source,
			missed_inactivity = hourly_validator_stats.missed_inactivity + EXCLUDED.missed_inactivity`); err != nil {
		return errors.Wrap(err, "merging epoch rewards temp into hourly validator stats")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE epochs SET rewards_fetched = TRUE WHERE epoch = $1`, epoch); err != nil {
		return errors.Wrapf(err, "flipping rewards_fetched for epoch %d", epoch)
	}

	return errors.Wrap(tx.Commit(), "committing attestation reward merge")
}
