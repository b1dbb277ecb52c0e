package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor/shared"
)

// EnsureEpochsAndSlots implements the forward-scanning creator of §3
// "Lifecycles": it inserts any Epoch/Slot row in [fromSlot, toSlot] that
// does not already exist, never touching rows that do (I4: flags never
// regress, and a re-create must be a no-op).
func (s *Store) EnsureEpochsAndSlots(ctx context.Context, fromSlot, toSlot uint64, slotsPerEpoch uint64) error {
	if toSlot < fromSlot {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning epoch/slot creation tx")
	}
	defer tx.Rollback()

	fromEpoch := fromSlot / slotsPerEpoch
	toEpoch := toSlot / slotsPerEpoch
	for e := fromEpoch; e <= toEpoch; e++ {
		if _, err := tx.ExecContext(ctx, `INSERT INTO epochs (epoch) VALUES ($1) ON CONFLICT DO NOTHING`, e); err != nil {
			return errors.Wrapf(err, "inserting epoch %d", e)
		}
	}
	for sl := fromSlot; sl <= toSlot; sl++ {
		epoch := sl / slotsPerEpoch
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO slots (slot, epoch) VALUES ($1, $2) ON CONFLICT DO NOTHING`, sl, epoch); err != nil {
			return errors.Wrapf(err, "inserting slot %d", sl)
		}
	}
	return errors.Wrap(tx.Commit(), "committing epoch/slot creation")
}

// LatestCreatedSlot returns the highest slot number known to the store.
func (s *Store) LatestCreatedSlot(ctx context.Context) (uint64, bool, error) {
	var slot sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(slot) FROM slots`).Scan(&slot)
	if err != nil {
		return 0, false, errors.Wrap(err, "querying latest created slot")
	}
	if !slot.Valid {
		return 0, false, nil
	}
	return uint64(slot.Int64), true, nil
}

// EpochFlagsOf reads the monotonic completion flags of one epoch.
func (s *Store) EpochFlagsOf(ctx context.Context, epoch uint64) (EpochFlags, error) {
	var f EpochFlags
	err := s.db.QueryRowContext(ctx, `
		SELECT committees_fetched, sync_committees_fetched, validators_info_fetched,
		       validators_balances_fetched, rewards_fetched
		FROM epochs WHERE epoch = $1`, epoch).
		Scan(&f.CommitteesFetched, &f.SyncCommitteesFetched, &f.ValidatorsInfoFetched,
			&f.ValidatorsBalFetched, &f.RewardsFetched)
	if errors.Is(err, sql.ErrNoRows) {
		return EpochFlags{}, errors.Wrapf(shared.ErrDataIntegrity, "epoch %d does not exist", epoch)
	}
	return f, errors.Wrap(err, "querying epoch flags")
}

// SetEpochFlag flips one monotonic flag true (I4: never regresses, so the
// statement only ever sets true and is safe to replay).
func (s *Store) SetEpochFlag(ctx context.Context, epoch uint64, flag EpochFlag) error {
	query := `UPDATE epochs SET ` + string(flag) + ` = TRUE WHERE epoch = $1`
	_, err := s.db.ExecContext(ctx, query, epoch)
	return errors.Wrapf(err, "setting epoch %d flag %s", epoch, flag)
}

// OldestEpochMissingFlag returns the lowest epoch <= maxEpoch that does not
// yet have flag set, the watermark-read step of every epoch fetcher (§4.4
// step 1).
func (s *Store) OldestEpochMissingFlag(ctx context.Context, flag EpochFlag, maxEpoch uint64) (uint64, bool, error) {
	query := `SELECT epoch FROM epochs WHERE ` + string(flag) + ` = FALSE AND epoch <= $1 ORDER BY epoch ASC LIMIT 1`
	var epoch int64
	err := s.db.QueryRowContext(ctx, query, maxEpoch).Scan(&epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "querying oldest epoch missing flag")
	}
	return uint64(epoch), true, nil
}
