// Package store is the typed Postgres gateway of spec §3/§6: upserts,
// watermarks, and batched bulk inserts via temp tables, all behind a narrow
// Querier interface so fetchers and summarizers can be tested against an
// in-memory fake instead of a live database.
//
// Grounded on the teacher's beacon-chain/db/kv.Store: one struct owning the
// database handle, exposing typed methods per entity rather than leaking
// SQL to callers, and implementing the shared.Service lifecycle so the
// orchestrator can open and close the pool like any other component.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// EpochFlag names one of Epoch's monotonic completion flags (§3, I4).
type EpochFlag string

// Known epoch flags.
const (
	EpochCommitteesFetched      EpochFlag = "committees_fetched"
	EpochSyncCommitteesFetched  EpochFlag = "sync_committees_fetched"
	EpochValidatorsInfoFetched  EpochFlag = "validators_info_fetched"
	EpochValidatorsBalFetched   EpochFlag = "validators_balances_fetched"
	EpochRewardsFetched         EpochFlag = "rewards_fetched"
)

// EpochFlags is a snapshot of one Epoch row's monotonic flags.
type EpochFlags struct {
	CommitteesFetched     bool
	SyncCommitteesFetched bool
	ValidatorsInfoFetched bool
	ValidatorsBalFetched  bool
	RewardsFetched        bool
}

// SlotFlags is a snapshot of one Slot row's monotonic flags.
type SlotFlags struct {
	Exists                   bool
	AttestationsFetched      bool
	ConsensusRewardsFetched  bool
	SyncRewardsFetched       bool
}

// AttestationRewardRow is one validator's staged attestation-reward delta
// for the hour the fetching epoch falls in, per §4.4.
type AttestationRewardRow struct {
	ValidatorIndex uint64
	Head           string
	Target         string
	Source         string
	Inactivity     string
	MissedHead     string
	MissedTarget   string
	MissedSource   string
	MissedInactivity string
}

// BlockOrSyncRewardRow is one validator's proposer or sync-committee reward
// for a single slot, destined for HourlyBlockAndSyncRewards.
type BlockOrSyncRewardRow struct {
	ValidatorIndex uint64
	BlockReward    string
	SyncReward     string
}

// CommitteeMember is one (position, validatorIndex) pair of a committee as
// returned by the beacon API's committees endpoint.
type CommitteeMember struct {
	Slot           uint64
	Index          uint64
	Position       int
	ValidatorIndex uint64
}

// AttestationDelayUpdate is one set-bit of one included attestation,
// destined for a LEAST-merge into a Committee row's attestationDelay
// (§4.4 "first-inclusion wins").
type AttestationDelayUpdate struct {
	Slot     uint64
	Index    uint64
	Position int
	Delay    uint64
}

// ValidatorInfoRow is the subset of a validator's info persisted verbatim.
type ValidatorInfoRow struct {
	Index                 uint64
	Status                string
	EffectiveBalanceGwei  string
	WithdrawalCredentials string
}

// ValidatorBalanceRow is one validator's current balance.
type ValidatorBalanceRow struct {
	Index       uint64
	BalanceGwei string
}

// Querier is the narrow surface fetchers and summarizers depend on. *Store
// implements it against Postgres; store.Memory implements it in-process for
// tests, per SPEC_FULL's test-tooling section.
type Querier interface {
	EnsureEpochsAndSlots(ctx context.Context, fromSlot, toSlot uint64, slotsPerEpoch uint64) error
	LatestCreatedSlot(ctx context.Context) (uint64, bool, error)

	EpochFlagsOf(ctx context.Context, epoch uint64) (EpochFlags, error)
	SetEpochFlag(ctx context.Context, epoch uint64, flag EpochFlag) error
	OldestEpochMissingFlag(ctx context.Context, flag EpochFlag, maxEpoch uint64) (uint64, bool, error)

	SlotFlagsOf(ctx context.Context, slot uint64) (SlotFlags, error)
	OldestSlotMissingFlag(ctx context.Context, flag string, maxSlot uint64) (uint64, bool, error)

	UpsertCommittees(ctx context.Context, epoch uint64, members []CommitteeMember) error
	CommitteeValidatorIndexes(ctx context.Context, slot, index uint64) (map[int]uint64, error)
	// ApplyAttestationResults applies every delay update, prunes on-time
	// committee evidence older than pruneOlderThanSlot, and flips
	// Slot(flagSlot).attestationsFetched, all in one transaction, per §4.4
	// step 5 ("writes in a single DB transaction that also flips the
	// completion flag"). pruneOlderThanSlot of 0 is a no-op prune (no slot
	// is ever older than slot 0), used when the pruning window has not
	// opened yet. Returns the number of committee rows pruned.
	ApplyAttestationResults(ctx context.Context, updates []AttestationDelayUpdate, pruneOlderThanSlot, maxAttestationDelay, flagSlot uint64) (int64, error)
	// SetSlotAttestationsFetched flips the flag alone, for the SlotMissed
	// path where there are no delay updates or pruning to apply.
	SetSlotAttestationsFetched(ctx context.Context, slot uint64) error
	// PruneOnTimeCommittees is the standalone form used by the
	// "cleanup-committee" maintenance job, which runs on its own cadence
	// independent of whichever slot fetch.Attestations is currently
	// working through.
	PruneOnTimeCommittees(ctx context.Context, olderThanSlot, maxAttestationDelay uint64) (int64, error)

	UpsertSyncCommittee(ctx context.Context, fromEpoch, toEpoch uint64, validators []uint64) error
	SyncCommitteeValidators(ctx context.Context, epoch uint64) ([]uint64, error)

	AddBlockAndSyncRewards(ctx context.Context, slot uint64, date time.Time, hour int, rows []BlockOrSyncRewardRow) error

	StageAndMergeAttestationRewards(ctx context.Context, epoch uint64, date time.Time, hour int, rows []AttestationRewardRow) error

	NonTerminalValidatorIDs(ctx context.Context, maxID uint64) ([]uint64, error)
	MaxValidatorIndex(ctx context.Context) (uint64, error)
	EffectiveBalances(ctx context.Context, ids []uint64) (map[uint64]string, error)
	UpsertValidatorInfo(ctx context.Context, infos []ValidatorInfoRow) error
	UpsertValidatorBalances(ctx context.Context, balances []ValidatorBalanceRow) error

	HourlyWatermark(ctx context.Context) (time.Time, error)
	// SummarizeHour aggregates missed-attestation counts for committees in
	// [startSlot, endSlot], upserts them (overwriting, not adding) into
	// HourlyValidatorStats, and advances the hourly watermark to endTime —
	// all in one transaction per I5. Returns the number of validator rows
	// written; a zero count means the caller must not treat the watermark
	// as advanced (§4.5 "a run that finds zero rows aborts").
	SummarizeHour(ctx context.Context, startSlot, endSlot, maxAttestationDelay uint64, date time.Time, hour int, endTime time.Time) (int, error)

	HourlyStatsCountSince(ctx context.Context, since time.Time) (int, error)
	SummarizeDay(ctx context.Context, day time.Time) error
	DailyWatermark(ctx context.Context) (time.Time, error)
}

// Store is the Postgres-backed implementation of Querier.
type Store struct {
	dsn string
	db  *sql.DB
	log *logrus.Entry
}

// New constructs a Store. The connection pool is opened in Start, per the
// shared.Service lifecycle.
func New(dsn string, log *logrus.Entry) *Store {
	return &Store{dsn: dsn, log: log}
}

// Start opens the connection pool and applies the schema. Matches the
// teacher's db/kv.NewKVStore eager-open-then-migrate sequence.
func (s *Store) Start() {
	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		s.log.WithError(err).Fatal("opening database pool")
		return
	}
	// §5: "a single DB connection pool with pool_timeout=0 (callers wait
	// forever rather than fail)" — no MaxOpenConns ceiling that would reject
	// a caller outright; concurrency is instead bounded upstream by the
	// scheduler's job set and the reliable client's pool semaphores.
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		s.log.WithError(err).Fatal("connecting to database")
		return
	}
	s.db = db

	if _, err := db.Exec(schemaDDL); err != nil {
		s.log.WithError(err).Fatal("applying schema")
		return
	}
	s.log.Info("store started")
}

// Stop closes the connection pool.
func (s *Store) Stop() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Status reports whether the pool is reachable.
func (s *Store) Status() error {
	if s.db == nil {
		return errors.New("store not started")
	}
	return s.db.PingContext(context.Background())
}

var (
	_ Querier = (*Store)(nil)
	_ Querier = (*Memory)(nil)
)
