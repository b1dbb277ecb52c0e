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

// balanceBatchSize is the §4.4 "Validator balances" batch size: requests
// are split by 1,000,000 validator ids to keep each POST body bounded.
const balanceBatchSize = 1_000_000

// ValidatorBalances implements §4.4 "Validator balances": enumerate every
// non-terminal validator index, fetch their current balance in batches,
// and merge the results into the Validator table.
func ValidatorBalances(ctx context.Context, log *logrus.Entry, q store.Querier, bc *client.BeaconClient, cfg *chain.Config, maxSlotToFetch uint64) error {
	maxEpoch := cfg.EpochOf(maxSlotToFetch)
	epoch, ok, err := q.OldestEpochMissingFlag(ctx, store.EpochValidatorsBalFetched, maxEpoch)
	if err != nil {
		return errors.Wrap(err, "reading oldest epoch missing validator balances")
	}
	if !ok {
		log.Debug("skipping validator balances: no epoch pending within fetch horizon")
		return nil
	}

	flags, err := q.EpochFlagsOf(ctx, epoch)
	if err != nil {
		return errors.Wrapf(err, "reading epoch %d flags", epoch)
	}
	if !flags.ValidatorsInfoFetched {
		log.WithField("epoch", epoch).Info("skipping validator balances: validator info not yet fetched")
		return nil
	}

	maxID, err := q.MaxValidatorIndex(ctx)
	if err != nil {
		return errors.Wrap(err, "reading max validator index")
	}
	ids, err := q.NonTerminalValidatorIDs(ctx, maxID+1)
	if err != nil {
		return errors.Wrap(err, "reading non-terminal validator ids")
	}
	if len(ids) == 0 {
		log.WithField("epoch", epoch).Info("skipping validator balances: no known validators yet")
		return nil
	}

	stateID := strconv.FormatUint(cfg.StartSlot(epoch), 10)
	total := 0
	for start := 0; start < len(ids); start += balanceBatchSize {
		end := start + balanceBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		res, err := bc.ValidatorBalances(ctx, stateID, batch)
		if err != nil {
			return errors.Wrapf(err, "fetching validator balances batch [%d,%d) for epoch %d", start, end, epoch)
		}

		rows := make([]store.ValidatorBalanceRow, len(res.Value))
		for i, b := range res.Value {
			rows[i] = store.ValidatorBalanceRow{Index: b.Index, BalanceGwei: b.Balance}
		}
		if err := q.UpsertValidatorBalances(ctx, rows); err != nil {
			return errors.Wrapf(err, "upserting validator balances batch [%d,%d) for epoch %d", start, end, epoch)
		}
		total += len(rows)
	}

	if err := q.SetEpochFlag(ctx, epoch, store.EpochValidatorsBalFetched); err != nil {
		return errors.Wrapf(err, "flipping validators_balances_fetched for epoch %d", epoch)
	}

	log.WithFields(logrus.Fields{"epoch": epoch, "validators": total}).Info("fetched validator balances")
	return nil
}
