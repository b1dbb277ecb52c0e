// Package maintenance implements the two §4.6 housekeeping jobs that are
// not themselves part of the fetch/summarize data path: periodic VACUUM
// ANALYZE and REINDEX of the hot tables, and an independent sweep of resolved
// committee evidence (fetch.Attestations already prunes inline after each
// run; this job exists so cleanup still happens on its own cadence if the
// attestations fetcher stalls or falls behind).
package maintenance

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/chain"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
)

// Vacuumer is implemented by store.Store; Memory has no pool to vacuum, so
// this stays a narrow interface rather than widening store.Querier.
type Vacuumer interface {
	VacuumAnalyze(ctx context.Context) error
}

// Prune runs the "prune" job: VACUUM ANALYZE and REINDEX the hot tables.
func Prune(ctx context.Context, log *logrus.Entry, v Vacuumer) error {
	if err := v.VacuumAnalyze(ctx); err != nil {
		return errors.Wrap(err, "vacuuming hot tables")
	}
	log.Debug("vacuumed hot tables")
	return nil
}

// retentionEpochs mirrors fetch.Attestations' own pruning window (§8: "a
// null that will never be filled (s is older than 3 epochs)"): committee
// evidence for slots more than 3 epochs behind the fetch horizon is safe to
// discard once every member has either attested on time or aged out.
const retentionEpochs = 3

// CleanupCommittee runs the "cleanup-committee" job: delete on-time
// committee rows older than the retention window, independent of whichever
// slot the attestations fetcher is currently working through.
func CleanupCommittee(ctx context.Context, log *logrus.Entry, q store.Querier, cfg *chain.Config, maxSlotToFetch uint64) error {
	retentionSlots := cfg.SlotsPerEpoch * retentionEpochs
	if maxSlotToFetch < retentionSlots {
		log.Debug("skipping committee cleanup: fetch horizon has not reached the retention window yet")
		return nil
	}
	olderThanSlot := maxSlotToFetch - retentionSlots

	n, err := q.PruneOnTimeCommittees(ctx, olderThanSlot, cfg.MaxAttestationDelay)
	if err != nil {
		return errors.Wrapf(err, "pruning on-time committees older than slot %d", olderThanSlot)
	}
	if n > 0 {
		log.WithFields(logrus.Fields{"older_than_slot": olderThanSlot, "pruned": n}).Info("cleaned up resolved committee evidence")
	}
	return nil
}
