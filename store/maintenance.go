package store

import (
	"context"

	"github.com/pkg/errors"
)

// hotTables are the tables under constant insert/update/delete churn from
// the fetchers and the committee pruner, and so the ones that most need
// periodic VACUUM/ANALYZE to keep their planner statistics and dead-tuple
// bloat in check.
var hotTables = []string{
	"committees",
	"slots",
	"hourly_validator_stats",
	"hourly_block_and_sync_rewards",
}

// VacuumAnalyze runs the §4.6 "prune" job's maintenance pass: VACUUM ANALYZE
// followed by REINDEX TABLE on each hot table. VACUUM cannot run inside a
// transaction block, so this issues one statement at a time directly
// against the pool.
func (s *Store) VacuumAnalyze(ctx context.Context) error {
	for _, table := range hotTables {
		if _, err := s.db.ExecContext(ctx, `VACUUM ANALYZE `+table); err != nil {
			return errors.Wrapf(err, "vacuuming table %s", table)
		}
		if _, err := s.db.ExecContext(ctx, `REINDEX TABLE `+table); err != nil {
			return errors.Wrapf(err, "reindexing table %s", table)
		}
	}
	return nil
}
