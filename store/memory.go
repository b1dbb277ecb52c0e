package store

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor/shared"
)

type committeeKey struct {
	slot, index uint64
	position    int
}

type committeeRow struct {
	validatorIndex uint64
	delay          *uint64
}

type hourKey struct {
	validatorIndex uint64
	date           time.Time
	hour           int
}

type dailyKey struct {
	validatorIndex uint64
	date           time.Time
}

type hourlyStatsRow struct {
	head, target, source, inactivity                         string
	missedHead, missedTarget, missedSource, missedInactivity string
	attestationsMissed                                       int
}

type blockSyncRow struct {
	blockReward, syncReward string
}

// Memory is an in-process Querier used by fetcher/summarizer tests so they
// can exercise their control flow (precondition checks, idempotent
// replays, watermark advance) without a live Postgres instance, per
// SPEC_FULL's test-tooling section.
type Memory struct {
	mu sync.Mutex

	epochs    map[uint64]EpochFlags
	slots     map[uint64]SlotFlags
	slotEpoch map[uint64]uint64

	committees     map[committeeKey]committeeRow
	syncCommittees map[[2]uint64][]uint64

	validators map[uint64]ValidatorInfoRow
	balances   map[uint64]string

	hourly      map[hourKey]hourlyStatsRow
	hourlyBS    map[hourKey]blockSyncRow
	daily       map[dailyKey]hourlyStatsRow
	dailyBS     map[dailyKey]blockSyncRow
	hourlyWater time.Time
	dailyWater  time.Time
}

// NewMemory constructs an empty in-memory Querier.
func NewMemory() *Memory {
	return &Memory{
		epochs:         make(map[uint64]EpochFlags),
		slots:          make(map[uint64]SlotFlags),
		slotEpoch:      make(map[uint64]uint64),
		committees:     make(map[committeeKey]committeeRow),
		syncCommittees: make(map[[2]uint64][]uint64),
		validators:     make(map[uint64]ValidatorInfoRow),
		balances:       make(map[uint64]string),
		hourly:         make(map[hourKey]hourlyStatsRow),
		hourlyBS:       make(map[hourKey]blockSyncRow),
		daily:          make(map[dailyKey]hourlyStatsRow),
		dailyBS:        make(map[dailyKey]blockSyncRow),
	}
}

func (m *Memory) EnsureEpochsAndSlots(ctx context.Context, fromSlot, toSlot uint64, slotsPerEpoch uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if toSlot < fromSlot {
		return nil
	}
	for sl := fromSlot; sl <= toSlot; sl++ {
		epoch := sl / slotsPerEpoch
		if _, ok := m.epochs[epoch]; !ok {
			m.epochs[epoch] = EpochFlags{}
		}
		if _, ok := m.slots[sl]; !ok {
			m.slots[sl] = SlotFlags{Exists: true}
			m.slotEpoch[sl] = epoch
		}
	}
	return nil
}

func (m *Memory) LatestCreatedSlot(ctx context.Context) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max uint64
	found := false
	for sl := range m.slots {
		if !found || sl > max {
			max = sl
			found = true
		}
	}
	return max, found, nil
}

func (m *Memory) EpochFlagsOf(ctx context.Context, epoch uint64) (EpochFlags, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.epochs[epoch]
	if !ok {
		return EpochFlags{}, errors.Wrapf(shared.ErrDataIntegrity, "epoch %d does not exist", epoch)
	}
	return f, nil
}

func (m *Memory) SetEpochFlag(ctx context.Context, epoch uint64, flag EpochFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.epochs[epoch]
	switch flag {
	case EpochCommitteesFetched:
		f.CommitteesFetched = true
	case EpochSyncCommitteesFetched:
		f.SyncCommitteesFetched = true
	case EpochValidatorsInfoFetched:
		f.ValidatorsInfoFetched = true
	case EpochValidatorsBalFetched:
		f.ValidatorsBalFetched = true
	case EpochRewardsFetched:
		f.RewardsFetched = true
	}
	m.epochs[epoch] = f
	return nil
}

func (m *Memory) OldestEpochMissingFlag(ctx context.Context, flag EpochFlag, maxEpoch uint64) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var epochs []uint64
	for e := range m.epochs {
		if e <= maxEpoch {
			epochs = append(epochs, e)
		}
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })
	for _, e := range epochs {
		f := m.epochs[e]
		var done bool
		switch flag {
		case EpochCommitteesFetched:
			done = f.CommitteesFetched
		case EpochSyncCommitteesFetched:
			done = f.SyncCommitteesFetched
		case EpochValidatorsInfoFetched:
			done = f.ValidatorsInfoFetched
		case EpochValidatorsBalFetched:
			done = f.ValidatorsBalFetched
		case EpochRewardsFetched:
			done = f.RewardsFetched
		}
		if !done {
			return e, true, nil
		}
	}
	return 0, false, nil
}

func (m *Memory) SlotFlagsOf(ctx context.Context, slot uint64) (SlotFlags, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.slots[slot]
	if !ok {
		return SlotFlags{Exists: false}, nil
	}
	return f, nil
}

func (m *Memory) OldestSlotMissingFlag(ctx context.Context, flag string, maxSlot uint64) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var slots []uint64
	for sl := range m.slots {
		if sl <= maxSlot {
			slots = append(slots, sl)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	for _, sl := range slots {
		f := m.slots[sl]
		var done bool
		switch flag {
		case "attestations_fetched":
			done = f.AttestationsFetched
		case "consensus_rewards_fetched":
			done = f.ConsensusRewardsFetched
		case "sync_rewards_fetched":
			done = f.SyncRewardsFetched
		}
		if !done {
			return sl, true, nil
		}
	}
	return 0, false, nil
}

func (m *Memory) SetSlotAttestationsFetched(ctx context.Context, slot uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.slots[slot]
	f.Exists = true
	f.AttestationsFetched = true
	m.slots[slot] = f
	return nil
}

func (m *Memory) UpsertCommittees(ctx context.Context, epoch uint64, members []CommitteeMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range members {
		key := committeeKey{slot: mem.Slot, index: mem.Index, position: mem.Position}
		m.committees[key] = committeeRow{validatorIndex: mem.ValidatorIndex}
	}
	return nil
}

func (m *Memory) CommitteeValidatorIndexes(ctx context.Context, slot, index uint64) (map[int]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]uint64)
	for k, v := range m.committees {
		if k.slot == slot && k.index == index {
			out[k.position] = v.validatorIndex
		}
	}
	return out, nil
}

// ApplyAttestationResults is the in-memory counterpart of
// Store.ApplyAttestationResults: one critical section applies every delay
// update, prunes on-time committee evidence, and flips the slot's
// attestations flag, matching the single-transaction shape the Postgres
// implementation commits.
func (m *Memory) ApplyAttestationResults(ctx context.Context, updates []AttestationDelayUpdate, pruneOlderThanSlot, maxAttestationDelay, flagSlot uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range updates {
		key := committeeKey{slot: u.Slot, index: u.Index, position: u.Position}
		row := m.committees[key]
		if row.delay == nil || u.Delay < *row.delay {
			d := u.Delay
			row.delay = &d
		}
		m.committees[key] = row
	}

	var pruned int64
	for k, v := range m.committees {
		if k.slot < pruneOlderThanSlot && v.delay != nil && *v.delay <= maxAttestationDelay {
			delete(m.committees, k)
			pruned++
		}
	}

	f := m.slots[flagSlot]
	f.Exists = true
	f.AttestationsFetched = true
	m.slots[flagSlot] = f

	return pruned, nil
}

// PruneOnTimeCommittees is the standalone in-memory counterpart used by the
// "cleanup-committee" maintenance job.
func (m *Memory) PruneOnTimeCommittees(ctx context.Context, olderThanSlot, maxAttestationDelay uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, v := range m.committees {
		if k.slot < olderThanSlot && v.delay != nil && *v.delay <= maxAttestationDelay {
			delete(m.committees, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpsertSyncCommittee(ctx context.Context, fromEpoch, toEpoch uint64, validators []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncCommittees[[2]uint64{fromEpoch, toEpoch}] = validators
	return nil
}

// CommitteeDelay exposes one committee row's recorded attestation delay for
// tests; there is no Postgres counterpart since tests against a live
// database would just SELECT the column directly.
func (m *Memory) CommitteeDelay(slot, index uint64, position int) *uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.committees[committeeKey{slot: slot, index: index, position: position}]
	if !ok {
		return nil
	}
	return row.delay
}

func (m *Memory) SyncCommitteeValidators(ctx context.Context, epoch uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for period, validators := range m.syncCommittees {
		if period[0] <= epoch && epoch <= period[1] {
			return validators, nil
		}
	}
	return nil, nil
}

func (m *Memory) AddBlockAndSyncRewards(ctx context.Context, slot uint64, date time.Time, hour int, rows []BlockOrSyncRewardRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		key := hourKey{validatorIndex: r.ValidatorIndex, date: date, hour: hour}
		existing := m.hourlyBS[key]
		m.hourlyBS[key] = blockSyncRow{
			blockReward: addDecimal(existing.blockReward, r.BlockReward),
			syncReward:  addDecimal(existing.syncReward, r.SyncReward),
		}
	}
	f := m.slots[slot]
	f.Exists = true
	f.ConsensusRewardsFetched = true
	f.SyncRewardsFetched = true
	m.slots[slot] = f
	return nil
}

func (m *Memory) StageAndMergeAttestationRewards(ctx context.Context, epoch uint64, date time.Time, hour int, rows []AttestationRewardRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		key := hourKey{validatorIndex: r.ValidatorIndex, date: date, hour: hour}
		existing := m.hourly[key]
		m.hourly[key] = hourlyStatsRow{
			head:              addDecimal(existing.head, r.Head),
			target:            addDecimal(existing.target, r.Target),
			source:            addDecimal(existing.source, r.Source),
			inactivity:        addDecimal(existing.inactivity, r.Inactivity),
			missedHead:        addDecimal(existing.missedHead, r.MissedHead),
			missedTarget:      addDecimal(existing.missedTarget, r.MissedTarget),
			missedSource:      addDecimal(existing.missedSource, r.MissedSource),
			missedInactivity:  addDecimal(existing.missedInactivity, r.MissedInactivity),
			attestationsMissed: existing.attestationsMissed,
		}
	}
	f := m.epochs[epoch]
	f.RewardsFetched = true
	m.epochs[epoch] = f
	return nil
}

func (m *Memory) MaxValidatorIndex(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max uint64
	for idx := range m.validators {
		if idx > max {
			max = idx
		}
	}
	return max, nil
}

func (m *Memory) NonTerminalValidatorIDs(ctx context.Context, maxID uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint64
	for idx, v := range m.validators {
		if idx >= maxID {
			continue
		}
		if !isTerminalStatus(v.Status) {
			ids = append(ids, idx)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) EffectiveBalances(ctx context.Context, ids []uint64) (map[uint64]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64]string, len(ids))
	for _, id := range ids {
		if v, ok := m.validators[id]; ok {
			out[id] = v.EffectiveBalanceGwei
		}
	}
	return out, nil
}

func (m *Memory) UpsertValidatorInfo(ctx context.Context, infos []ValidatorInfoRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range infos {
		m.validators[v.Index] = v
	}
	return nil
}

func (m *Memory) UpsertValidatorBalances(ctx context.Context, balances []ValidatorBalanceRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range balances {
		m.balances[b.Index] = b.BalanceGwei
	}
	return nil
}

func (m *Memory) HourlyWatermark(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hourlyWater, nil
}

func (m *Memory) SummarizeHour(ctx context.Context, startSlot, endSlot, maxAttestationDelay uint64, date time.Time, hour int, endTime time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[uint64]int)
	for k, v := range m.committees {
		if k.slot < startSlot || k.slot > endSlot {
			continue
		}
		if v.delay == nil || *v.delay > maxAttestationDelay {
			counts[v.validatorIndex]++
		}
	}
	if len(counts) == 0 {
		return 0, nil
	}
	for validator, count := range counts {
		key := hourKey{validatorIndex: validator, date: date, hour: hour}
		row := m.hourly[key]
		row.attestationsMissed = count
		m.hourly[key] = row
	}
	m.hourlyWater = endTime
	return len(counts), nil
}

func (m *Memory) HourlyStatsCountSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.hourly {
		bucketStart := k.date.Add(time.Duration(k.hour) * time.Hour)
		if bucketStart.After(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) SummarizeDay(ctx context.Context, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := make(map[uint64]hourlyStatsRow)
	for k, v := range m.hourly {
		if !k.date.Equal(day) {
			continue
		}
		agg := sums[k.validatorIndex]
		agg.head = addDecimal(agg.head, v.head)
		agg.target = addDecimal(agg.target, v.target)
		agg.source = addDecimal(agg.source, v.source)
		agg.inactivity = addDecimal(agg.inactivity, v.inactivity)
		agg.missedHead = addDecimal(agg.missedHead, v.missedHead)
		agg.missedTarget = addDecimal(agg.missedTarget, v.missedTarget)
		agg.missedSource = addDecimal(agg.missedSource, v.missedSource)
		agg.missedInactivity = addDecimal(agg.missedInactivity, v.missedInactivity)
		agg.attestationsMissed += v.attestationsMissed
		sums[k.validatorIndex] = agg
	}
	for validator, agg := range sums {
		m.daily[dailyKey{validatorIndex: validator, date: day}] = agg
	}

	bsSums := make(map[uint64]blockSyncRow)
	for k, v := range m.hourlyBS {
		if !k.date.Equal(day) {
			continue
		}
		agg := bsSums[k.validatorIndex]
		agg.blockReward = addDecimal(agg.blockReward, v.blockReward)
		agg.syncReward = addDecimal(agg.syncReward, v.syncReward)
		bsSums[k.validatorIndex] = agg
	}
	for validator, agg := range bsSums {
		m.dailyBS[dailyKey{validatorIndex: validator, date: day}] = agg
	}

	m.dailyWater = day.Add(24 * time.Hour)
	return nil
}

func (m *Memory) DailyWatermark(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyWater, nil
}

// addDecimal adds two decimal-string amounts without going through
// float64, mirroring the gwei package's big.Int discipline for the
// in-memory test double.
func addDecimal(a, b string) string {
	if a == "" {
		a = "0"
	}
	if b == "" {
		b = "0"
	}
	x, ok := new(big.Int).SetString(a, 10)
	if !ok {
		x = big.NewInt(0)
	}
	y, ok := new(big.Int).SetString(b, 10)
	if !ok {
		y = big.NewInt(0)
	}
	return x.Add(x, y).String()
}

// isTerminalStatus mirrors client.ValidatorStatus.IsTerminal without
// importing the client package, to keep store free of beacon-API types.
func isTerminalStatus(status string) bool {
	switch status {
	case "exited_unslashed", "exited_slashed", "withdrawal_done":
		return true
	default:
		return false
	}
}
