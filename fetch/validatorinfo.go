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

// ValidatorInfo discovers and refreshes the validator set's lifecycle state
// and effective balance ahead of the balance and reward fetchers, which
// both need to know which indices exist and which are in a terminal
// status. Grounded in the same watermark-then-fetch-then-flag shape as the
// other §4.4 fetchers, applied to the validators(stateId) endpoint.
func ValidatorInfo(ctx context.Context, log *logrus.Entry, q store.Querier, bc *client.BeaconClient, cfg *chain.Config, maxSlotToFetch uint64) error {
	maxEpoch := cfg.EpochOf(maxSlotToFetch)
	epoch, ok, err := q.OldestEpochMissingFlag(ctx, store.EpochValidatorsInfoFetched, maxEpoch)
	if err != nil {
		return errors.Wrap(err, "reading oldest epoch missing validator info")
	}
	if !ok {
		log.Debug("skipping validator info: no epoch pending within fetch horizon")
		return nil
	}

	stateID := strconv.FormatUint(cfg.StartSlot(epoch), 10)
	res, err := bc.Validators(ctx, stateID, nil, nil)
	if err != nil {
		return errors.Wrapf(err, "fetching validator info at epoch %d", epoch)
	}

	infos := make([]store.ValidatorInfoRow, 0, len(res.Value))
	for _, v := range res.Value {
		infos = append(infos, store.ValidatorInfoRow{
			Index:                 v.Index,
			Status:                string(v.Status),
			EffectiveBalanceGwei:  v.Validator.EffectiveBalance,
			WithdrawalCredentials: v.Validator.WithdrawalCredentials,
		})
	}

	if err := q.UpsertValidatorInfo(ctx, infos); err != nil {
		return errors.Wrapf(err, "upserting validator info for epoch %d", epoch)
	}
	if err := q.SetEpochFlag(ctx, epoch, store.EpochValidatorsInfoFetched); err != nil {
		return errors.Wrapf(err, "flipping validators_info_fetched for epoch %d", epoch)
	}

	log.WithFields(logrus.Fields{"epoch": epoch, "validators": len(infos)}).Info("fetched validator info")
	return nil
}
