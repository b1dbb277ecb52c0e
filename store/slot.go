package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// SlotFlagsOf reads the monotonic per-slot flags of §3.
func (s *Store) SlotFlagsOf(ctx context.Context, slot uint64) (SlotFlags, error) {
	var f SlotFlags
	err := s.db.QueryRowContext(ctx, `
		SELECT attestations_fetched, consensus_rewards_fetched, sync_rewards_fetched
		FROM slots WHERE slot = $1`, slot).
		Scan(&f.AttestationsFetched, &f.ConsensusRewardsFetched, &f.SyncRewardsFetched)
	if errors.Is(err, sql.ErrNoRows) {
		return SlotFlags{Exists: false}, nil
	}
	if err != nil {
		return SlotFlags{}, errors.Wrap(err, "querying slot flags")
	}
	f.Exists = true
	return f, nil
}

// OldestSlotMissingFlag returns the lowest slot <= maxSlot that does not yet
// have the named boolean column set, used by the per-slot fetchers.
func (s *Store) OldestSlotMissingFlag(ctx context.Context, flag string, maxSlot uint64) (uint64, bool, error) {
	query := `SELECT slot FROM slots WHERE ` + flag + ` = FALSE AND slot <= $1 ORDER BY slot ASC LIMIT 1`
	var slot int64
	err := s.db.QueryRowContext(ctx, query, maxSlot).Scan(&slot)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "querying oldest slot missing flag")
	}
	return uint64(slot), true, nil
}

// SetSlotAttestationsFetched flips the slot's attestations flag.
func (s *Store) SetSlotAttestationsFetched(ctx context.Context, slot uint64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE slots SET attestations_fetched = TRUE WHERE slot = $1`, slot)
	return errors.Wrapf(err, "setting slot %d attestations_fetched", slot)
}
