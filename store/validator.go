package store

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// MaxValidatorIndex returns the highest validator index currently known,
// the upper bound the balance fetcher uses to enumerate [0, maxId) per
// §4.4 "Validator balances".
func (s *Store) MaxValidatorIndex(ctx context.Context) (uint64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(index) FROM validators`).Scan(&max)
	if err != nil {
		return 0, errors.Wrap(err, "querying max validator index")
	}
	if !max.Valid {
		return 0, nil
	}
	return uint64(max.Int64), nil
}

// NonTerminalValidatorIDs returns every validator index below maxID whose
// status is not terminal (§3 "Validator": exited_*/withdrawal_done are
// excluded from balance-refresh batches).
func (s *Store) NonTerminalValidatorIDs(ctx context.Context, maxID uint64) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT index FROM validators
		WHERE index < $1 AND (status IS NULL OR status NOT IN ('exited_unslashed', 'exited_slashed', 'withdrawal_done'))
		ORDER BY index`, maxID)
	if err != nil {
		return nil, errors.Wrap(err, "querying non-terminal validator ids")
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning validator id")
		}
		ids = append(ids, uint64(id))
	}
	return ids, errors.Wrap(rows.Err(), "iterating validator ids")
}

// EffectiveBalances returns the current effective balance (gwei, decimal
// string) of each requested validator that has a known row.
func (s *Store) EffectiveBalances(ctx context.Context, ids []uint64) (map[uint64]string, error) {
	if len(ids) == 0 {
		return map[uint64]string{}, nil
	}
	boxed := make([]int64, len(ids))
	for i, id := range ids {
		boxed[i] = int64(id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT index, COALESCE(effective_balance::text, '0') FROM validators WHERE index = ANY($1)`, pq.Array(boxed))
	if err != nil {
		return nil, errors.Wrap(err, "querying effective balances")
	}
	defer rows.Close()

	out := make(map[uint64]string, len(ids))
	for rows.Next() {
		var idx int64
		var balance string
		if err := rows.Scan(&idx, &balance); err != nil {
			return nil, errors.Wrap(err, "scanning effective balance row")
		}
		out[uint64(idx)] = balance
	}
	return out, errors.Wrap(rows.Err(), "iterating effective balance rows")
}

// UpsertValidatorInfo writes the lifecycle/effective-balance snapshot for a
// batch of validators.
func (s *Store) UpsertValidatorInfo(ctx context.Context, infos []ValidatorInfoRow) error {
	if len(infos) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning validator info upsert tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO validators (index, status, effective_balance, withdrawal_credentials)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (index) DO UPDATE SET
			status = EXCLUDED.status,
			effective_balance = EXCLUDED.effective_balance,
			withdrawal_credentials = EXCLUDED.withdrawal_credentials`)
	if err != nil {
		return errors.Wrap(err, "preparing validator info upsert")
	}
	defer stmt.Close()

	for _, v := range infos {
		if _, err := stmt.ExecContext(ctx, v.Index, v.Status, v.EffectiveBalanceGwei, v.WithdrawalCredentials); err != nil {
			return errors.Wrapf(err, "upserting validator %d info", v.Index)
		}
	}
	return errors.Wrap(tx.Commit(), "committing validator info upsert")
}

// UpsertValidatorBalances writes the current balance for a batch of
// validators (§4.4 "Validator balances") with one INSERT ... ON CONFLICT
// upsert per row inside a single transaction; no staging table is used.
func (s *Store) UpsertValidatorBalances(ctx context.Context, balances []ValidatorBalanceRow) error {
	if len(balances) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning validator balance upsert tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO validators (index, balance)
		VALUES ($1, $2)
		ON CONFLICT (index) DO UPDATE SET balance = EXCLUDED.balance`)
	if err != nil {
		return errors.Wrap(err, "preparing validator balance upsert")
	}
	defer stmt.Close()

	for _, b := range balances {
		if _, err := stmt.ExecContext(ctx, b.Index, b.BalanceGwei); err != nil {
			return errors.Wrapf(err, "upserting validator %d balance", b.Index)
		}
	}
	return errors.Wrap(tx.Commit(), "committing validator balance upsert")
}
