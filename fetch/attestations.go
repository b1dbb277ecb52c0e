package fetch

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/chain"
	"github.com/NodeSentinel/beacon-validator-monitor/client"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
)

// Attestations implements §4.4 "Attestations and the delay computation",
// the subtle algorithmic heart of the indexer: for the oldest pending slot,
// fetch its block, walk every included attestation, and for each set
// aggregation bit record the number of slots between the attested slot and
// the including block — first inclusion wins.
func Attestations(ctx context.Context, log *logrus.Entry, q store.Querier, bc *client.BeaconClient, cfg *chain.Config, maxSlotToFetch uint64) error {
	slot, ok, err := q.OldestSlotMissingFlag(ctx, "attestations_fetched", maxSlotToFetch)
	if err != nil {
		return errors.Wrap(err, "reading oldest slot missing attestations")
	}
	if !ok {
		log.Debug("skipping attestations: no slot pending within fetch horizon")
		return nil
	}

	epoch := cfg.EpochOf(slot)
	epochFlags, err := q.EpochFlagsOf(ctx, epoch)
	if err != nil {
		return errors.Wrapf(err, "reading epoch %d flags for slot %d", epoch, slot)
	}
	if !epochFlags.CommitteesFetched {
		log.WithFields(logrus.Fields{"slot": slot, "epoch": epoch}).Info("skipping attestations: committees not yet fetched")
		return nil
	}

	block, err := bc.Block(ctx, slot)
	if err != nil {
		return errors.Wrapf(err, "fetching block at slot %d", slot)
	}
	if block.Missed {
		// §4.4/§7 SlotMissed: the slot has no block, so it has no
		// attestations either; flip the flag with empty contents.
		if err := q.SetSlotAttestationsFetched(ctx, slot); err != nil {
			return errors.Wrapf(err, "flipping attestations_fetched for missed slot %d", slot)
		}
		log.WithField("slot", slot).Info("slot missed, no attestations to record")
		return nil
	}

	var updates []store.AttestationDelayUpdate
	for _, att := range block.Value.Body.Attestations {
		attestedSlot := att.Data.Slot
		if attestedSlot > slot {
			continue
		}
		delay := slot - attestedSlot

		positions, err := client.AggregationBitIndexes(att.AggregationBits)
		if err != nil {
			return errors.Wrapf(err, "decoding aggregation bits for attestation slot=%d index=%d", attestedSlot, att.Data.Index)
		}

		members, err := q.CommitteeValidatorIndexes(ctx, attestedSlot, att.Data.Index)
		if err != nil {
			return errors.Wrapf(err, "reading committee members for slot=%d index=%d", attestedSlot, att.Data.Index)
		}

		for _, position := range positions {
			if _, known := members[position]; !known {
				log.WithFields(logrus.Fields{
					"attested_slot": attestedSlot, "index": att.Data.Index, "position": position,
				}).Warn("aggregation bit set for a position outside the recorded committee, ignoring")
				continue
			}
			updates = append(updates, store.AttestationDelayUpdate{
				Slot: attestedSlot, Index: att.Data.Index, Position: position, Delay: delay,
			})
		}
	}

	// §4.4 step 5: delay updates, the on-time-evidence prune, and the
	// attestations_fetched flip all land in one DB transaction, so a crash
	// mid-slot never leaves the flag unset with only some delays recorded.
	var pruneOlderThan uint64
	if slot >= cfg.SlotsPerEpoch*3 {
		pruneOlderThan = slot - cfg.SlotsPerEpoch*3
	}
	pruned, err := q.ApplyAttestationResults(ctx, updates, pruneOlderThan, cfg.MaxAttestationDelay, slot)
	if err != nil {
		return errors.Wrapf(err, "applying attestation results for slot %d", slot)
	}
	if pruned > 0 {
		log.WithFields(logrus.Fields{"older_than_slot": pruneOlderThan, "pruned": pruned}).Debug("pruned on-time committee evidence")
	}

	log.WithFields(logrus.Fields{"slot": slot, "attestations": len(block.Value.Body.Attestations)}).Info("fetched attestations")
	return nil
}
