package fetch

import (
	"context"
	"math/big"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/chain"
	"github.com/NodeSentinel/beacon-validator-monitor/client"
	"github.com/NodeSentinel/beacon-validator-monitor/gwei"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
)

// AttestationRewards implements §4.4 "Attestation rewards (per epoch)" with
// the Open Question #1 fix: the temp-table truncate, staging insert, merge,
// and epoch-flag flip are one transaction inside
// store.StageAndMergeAttestationRewards, giving at-most-once semantics at
// the epoch level rather than the row level.
func AttestationRewards(ctx context.Context, log *logrus.Entry, q store.Querier, bc *client.BeaconClient, cfg *chain.Config, maxSlotToFetch uint64) error {
	maxEpoch := cfg.EpochOf(maxSlotToFetch)
	epoch, ok, err := q.OldestEpochMissingFlag(ctx, store.EpochRewardsFetched, maxEpoch)
	if err != nil {
		return errors.Wrap(err, "reading oldest epoch missing attestation rewards")
	}
	if !ok {
		log.Debug("skipping attestation rewards: no epoch pending within fetch horizon")
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
		log.WithField("epoch", epoch).Info("skipping attestation rewards: no known validators yet")
		return nil
	}

	res, err := bc.AttestationRewards(ctx, epoch, ids)
	if err != nil {
		return errors.Wrapf(err, "fetching attestation rewards for epoch %d", epoch)
	}

	idealByBalance, err := idealRewardsByBalance(res.Value.IdealRewards)
	if err != nil {
		return errors.Wrapf(err, "indexing ideal rewards for epoch %d", epoch)
	}

	balances, err := q.EffectiveBalances(ctx, ids)
	if err != nil {
		return errors.Wrapf(err, "reading effective balances for epoch %d", epoch)
	}

	var rows []store.AttestationRewardRow
	for _, total := range res.Value.TotalRewards {
		validator, err := strconv.ParseUint(total.ValidatorIndex, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "parsing validator index in attestation rewards for epoch %d", epoch)
		}

		received, err := parseRewardComponents(total.Head, total.Target, total.Source, total.Inactivity)
		if err != nil {
			return errors.Wrapf(err, "parsing received rewards for validator %d epoch %d", validator, epoch)
		}

		rawBalance, known := balances[validator]
		if !known {
			rawBalance = "0"
		}
		balance, err := gwei.Parse(rawBalance)
		if err != nil {
			return errors.Wrapf(err, "parsing effective balance for validator %d", validator)
		}

		ideal := rewardComponents{head: gwei.Zero(), target: gwei.Zero(), source: gwei.Zero(), inactivity: gwei.Zero()}
		if balance.Sign() > 0 {
			rounded := gwei.RoundDownToIncrement(balance)
			if found, ok := idealByBalance[rounded.String()]; ok {
				ideal = found
			} else {
				log.WithFields(logrus.Fields{"validator": validator, "rounded_balance": rounded.String()}).
					Warn("no ideal reward row for this effective balance, treating as zero")
			}
		}

		rows = append(rows, store.AttestationRewardRow{
			ValidatorIndex:   validator,
			Head:             received.head.String(),
			Target:           received.target.String(),
			Source:           received.source.String(),
			Inactivity:       received.inactivity.String(),
			MissedHead:       gwei.SubClamped(ideal.head, received.head).String(),
			MissedTarget:     gwei.SubClamped(ideal.target, received.target).String(),
			MissedSource:     gwei.SubClamped(ideal.source, received.source).String(),
			MissedInactivity: gwei.SubClamped(ideal.inactivity, received.inactivity).String(),
		})
	}

	date, hour := cfg.HourOf(cfg.StartSlot(epoch))
	if err := q.StageAndMergeAttestationRewards(ctx, epoch, date, hour, rows); err != nil {
		return errors.Wrapf(err, "merging attestation rewards for epoch %d", epoch)
	}

	log.WithFields(logrus.Fields{"epoch": epoch, "validators": len(rows)}).Info("fetched attestation rewards")
	return nil
}

type rewardComponents struct {
	head, target, source, inactivity *big.Int
}

func idealRewardsByBalance(ideals []client.IdealReward) (map[string]rewardComponents, error) {
	out := make(map[string]rewardComponents, len(ideals))
	for _, ideal := range ideals {
		components, err := parseRewardComponents(ideal.Head, ideal.Target, ideal.Source, ideal.Inactivity)
		if err != nil {
			return nil, err
		}
		balance, err := gwei.Parse(ideal.EffectiveBalance)
		if err != nil {
			return nil, errors.Wrap(err, "parsing ideal reward effective balance")
		}
		out[gwei.RoundDownToIncrement(balance).String()] = components
	}
	return out, nil
}

func parseRewardComponents(head, target, source, inactivity string) (rewardComponents, error) {
	h, err := gwei.Parse(head)
	if err != nil {
		return rewardComponents{}, err
	}
	t, err := gwei.Parse(target)
	if err != nil {
		return rewardComponents{}, err
	}
	so, err := gwei.Parse(source)
	if err != nil {
		return rewardComponents{}, err
	}
	in, err := gwei.Parse(inactivity)
	if err != nil {
		return rewardComponents{}, err
	}
	return rewardComponents{head: h, target: t, source: so, inactivity: in}, nil
}
