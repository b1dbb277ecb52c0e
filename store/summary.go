package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// HourlyWatermark returns LastSummaryUpdate.hourlyValidatorStats.
func (s *Store) HourlyWatermark(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT hourly_validator_stats FROM last_summary_update`).Scan(&t)
	return t, errors.Wrap(err, "querying hourly watermark")
}

// DailyWatermark returns LastSummaryUpdate.dailyValidatorStats.
func (s *Store) DailyWatermark(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT daily_validator_stats FROM last_summary_update`).Scan(&t)
	return t, errors.Wrap(err, "querying daily watermark")
}

// SummarizeHour implements §4.5 "Hourly": group committees in
// [startSlot, endSlot] with a null or late-window-exceeding delay by
// validator, overwrite HourlyValidatorStats.attestationsMissed with the
// count, and advance the hourly watermark — atomically, so a crash between
// the aggregate write and the watermark advance cannot happen (I5).
func (s *Store) SummarizeHour(ctx context.Context, startSlot, endSlot, maxAttestationDelay uint64, date time.Time, hour int, endTime time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "beginning hourly summary tx")
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT validator_index, COUNT(*)
		FROM committees
		WHERE slot BETWEEN $1 AND $2 AND (attestation_delay IS NULL OR attestation_delay > $3)
		GROUP BY validator_index`, startSlot, endSlot, maxAttestationDelay)
	if err != nil {
		return 0, errors.Wrap(err, "aggregating missed attestation counts")
	}
	counts := make(map[uint64]int)
	for rows.Next() {
		var validator int64
		var count int
		if err := rows.Scan(&validator, &count); err != nil {
			rows.Close()
			return 0, errors.Wrap(err, "scanning missed attestation row")
		}
		counts[uint64(validator)] = count
	}
	if err := rows.Err(); err != nil {
		return 0, errors.Wrap(err, "iterating missed attestation rows")
	}
	rows.Close()

	if len(counts) == 0 {
		// §4.5: "a run that finds zero rows aborts without advancing the
		// watermark"; the deferred Rollback discards the read-only tx.
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hourly_validator_stats (validator_index, date, hour, attestations_missed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (validator_index, date, hour) DO UPDATE SET attestations_missed = EXCLUDED.attestations_missed`)
	if err != nil {
		return 0, errors.Wrap(err, "preparing hourly missed-attestation upsert")
	}
	for validator, count := range counts {
		if _, err := stmt.ExecContext(ctx, validator, date, hour, count); err != nil {
			stmt.Close()
			return 0, errors.Wrapf(err, "upserting hourly missed attestations for validator %d", validator)
		}
	}
	stmt.Close()

	if _, err := tx.ExecContext(ctx, `UPDATE last_summary_update SET hourly_validator_stats = $1`, endTime); err != nil {
		return 0, errors.Wrap(err, "advancing hourly watermark")
	}

	return len(counts), errors.Wrap(tx.Commit(), "committing hourly summary")
}

// HourlyStatsCountSince counts HourlyValidatorStats rows whose (date, hour)
// bucket starts strictly after since, the §4.5 daily precondition's "at
// least 24 rows strictly after the previous watermark" check.
func (s *Store) HourlyStatsCountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM hourly_validator_stats
		WHERE (date + (hour || ' hours')::interval) > $1`, since).Scan(&n)
	return n, errors.Wrap(err, "counting hourly stats since watermark")
}

// SummarizeDay sums every HourlyValidatorStats and
// HourlyBlockAndSyncRewards row for day into DailyValidatorStats and
// advances the daily watermark, per §4.5 "Daily" — atomically, for the
// same reason as SummarizeHour.
func (s *Store) SummarizeDay(ctx context.Context, day time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning daily summary tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO daily_validator_stats
			(validator_index, date, head, target, source, inactivity,
			 missed_head, missed_target, missed_source, missed_inactivity, attestations_missed)
		SELECT validator_index, date,
		       SUM(head), SUM(target), SUM(source), SUM(inactivity),
		       SUM(missed_head), SUM(missed_target), SUM(missed_source), SUM(missed_inactivity),
		       SUM(attestations_missed)
		FROM hourly_validator_stats
		WHERE date = $1
		GROUP BY validator_index, date
		ON CONFLICT (validator_index, date) DO UPDATE SET
			head                = EXCLUDED.head,
			target              = EXCLUDED.target,
			source              = EXCLUDED.source,
			inactivity          = EXCLUDED.inactivity,
			missed_head         = EXCLUDED.missed_head,
			missed_target       = EXCLUDED.missed_target,
			missed_source       = EXCLUDED.missed_source,
			missed_inactivity   = EXCLUDED.missed_inactivity,
			attestations_missed = EXCLUDED.attestations_missed`, day); err != nil {
		return errors.Wrap(err, "summing hourly stats into daily stats")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE daily_validator_stats d SET
			block_reward = h.block_reward,
			sync_reward  = h.sync_reward
		FROM (
			SELECT validator_index, SUM(block_reward) AS block_reward, SUM(sync_reward) AS sync_reward
			FROM hourly_block_and_sync_rewards
			WHERE date = $1
			GROUP BY validator_index
		) h
		WHERE d.validator_index = h.validator_index AND d.date = $1`, day); err != nil {
		return errors.Wrap(err, "summing hourly block/sync rewards into daily stats")
	}

	nextWatermark := day.Add(24 * time.Hour)
	if _, err := tx.ExecContext(ctx, `UPDATE last_summary_update SET daily_validator_stats = $1`, nextWatermark); err != nil {
		return errors.Wrap(err, "advancing daily watermark")
	}

	return errors.Wrap(tx.Commit(), "committing daily summary")
}
