package fetch

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/chain"
	"github.com/NodeSentinel/beacon-validator-monitor/client"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
)

func testLog(t *testing.T) *logrus.Entry {
	t.Helper()
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return logrus.NewEntry(l)
}

func writeData(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	raw, _ := json.Marshal(v)
	w.Write([]byte(`{"data":` + string(raw) + `}`))
}

func testBeacon(t *testing.T, handler http.HandlerFunc, head uint64) *client.BeaconClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	rc := client.New(client.Config{
		FullBaseURL:         srv.URL,
		ArchiveBaseURL:      srv.URL,
		FullNodeConcurrency: 4,
		ArchiveConcurrency:  4,
		RequestsPerSecond:   1000,
		Retry:               client.RetryConfig{Retries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Log:                 logrus.NewEntry(l),
	})
	return client.NewBeaconClient(rc, func() uint64 { return head })
}

func TestCreateEpochsAndSlotsRespectsLookbackAndDelay(t *testing.T) {
	cfg := chain.MainnetConfig().Copy()
	cfg.LookbackSlots = 10
	cfg.DelaySlotsToHead = 2
	now := cfg.TimeOf(1000)

	q := store.NewMemory()
	if err := CreateEpochsAndSlots(context.Background(), testLog(t), q, cfg, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	latest, ok, err := q.LatestCreatedSlot(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected a created slot, got ok=%v err=%v", ok, err)
	}
	if latest != 998 {
		t.Errorf("latest created slot = %d, want 998 (1000 - delaySlotsToHead)", latest)
	}
}

func TestCommitteesFetchesAndFlipsFlag(t *testing.T) {
	cfg := chain.MainnetConfig()
	q := store.NewMemory()
	ctx := context.Background()
	if err := q.EnsureEpochsAndSlots(ctx, 0, cfg.SlotsPerEpoch-1, cfg.SlotsPerEpoch); err != nil {
		t.Fatalf("setup error: %v", err)
	}

	bc := testBeacon(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, []client.CommitteeDuty{{Slot: 100, Index: 3, Validators: []uint64{10, 42, 99}}})
	}, 1000)

	if err := Committees(ctx, testLog(t), q, bc, cfg, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flags, err := q.EpochFlagsOf(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !flags.CommitteesFetched {
		t.Errorf("expected committees_fetched=true")
	}
	members, err := q.CommitteeValidatorIndexes(ctx, 100, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if members[1] != 42 {
		t.Errorf("validator at position 1 = %d, want 42", members[1])
	}
}

func TestAttestationsComputesDelayScenario(t *testing.T) {
	// Concrete scenario 1: committee at slot 100 index 3 has validator 42 at
	// position 7; block at slot 102 includes an attestation voting for
	// slot 100, aggregation bit 7 set. Expect delay=2.
	cfg := chain.MainnetConfig()
	q := store.NewMemory()
	ctx := context.Background()
	if err := q.EnsureEpochsAndSlots(ctx, 102, cfg.SlotsPerEpoch*4-1, cfg.SlotsPerEpoch); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.UpsertCommittees(ctx, 0, []store.CommitteeMember{{Slot: 100, Index: 3, Position: 7, ValidatorIndex: 42}}); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.SetEpochFlag(ctx, cfg.EpochOf(102), store.EpochCommitteesFetched); err != nil {
		t.Fatalf("setup error: %v", err)
	}

	// SSZ bitlist encoding for an 8-member committee with only position 7
	// voting: byte 0 = 0x80 (bit 7 set, the vote), byte 1 = 0x01 (bit 8,
	// the length sentinel, not a vote and dropped during decode).
	bc := testBeacon(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, client.Block{
			Slot: 102,
			Body: client.BlockBody{Attestations: []client.Attestation{
				{AggregationBits: "0x8001", Data: client.AttestationData{Slot: 100, Index: 3}},
			}},
		})
	}, 1000)

	if err := Attestations(ctx, testLog(t), q, bc, cfg, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	delay := q.CommitteeDelay(100, 3, 7)
	if delay == nil || *delay != 2 {
		t.Fatalf("attestation delay = %v, want 2", delay)
	}

	flags, err := q.SlotFlagsOf(ctx, 102)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !flags.AttestationsFetched {
		t.Errorf("expected slot 102 attestations_fetched=true")
	}
}

func TestAttestationsHandlesMissedSlot(t *testing.T) {
	cfg := chain.MainnetConfig()
	q := store.NewMemory()
	ctx := context.Background()
	if err := q.EnsureEpochsAndSlots(ctx, 0, cfg.SlotsPerEpoch-1, cfg.SlotsPerEpoch); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.SetEpochFlag(ctx, 0, store.EpochCommitteesFetched); err != nil {
		t.Fatalf("setup error: %v", err)
	}

	bc := testBeacon(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, 1000)

	if err := Attestations(ctx, testLog(t), q, bc, cfg, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flags, err := q.SlotFlagsOf(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !flags.AttestationsFetched {
		t.Errorf("missed slot should still flip attestations_fetched")
	}
}

func TestBlockAndSyncRewardsMissedSlotStillFlipsFlags(t *testing.T) {
	cfg := chain.MainnetConfig()
	q := store.NewMemory()
	ctx := context.Background()
	if err := q.EnsureEpochsAndSlots(ctx, 0, cfg.SlotsPerEpoch-1, cfg.SlotsPerEpoch); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.UpsertSyncCommittee(ctx, 0, cfg.EpochsPerSyncCommitteePeriod-1, []uint64{1, 2, 3}); err != nil {
		t.Fatalf("setup error: %v", err)
	}

	bc := testBeacon(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, 1000)

	if err := BlockAndSyncRewards(ctx, testLog(t), q, bc, cfg, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flags, err := q.SlotFlagsOf(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !flags.ConsensusRewardsFetched || !flags.SyncRewardsFetched {
		t.Errorf("missed slot should still flip both reward flags, got %+v", flags)
	}
}

func TestValidatorBalancesSkipsUntilInfoFetched(t *testing.T) {
	cfg := chain.MainnetConfig()
	q := store.NewMemory()
	ctx := context.Background()
	if err := q.EnsureEpochsAndSlots(ctx, 0, cfg.SlotsPerEpoch-1, cfg.SlotsPerEpoch); err != nil {
		t.Fatalf("setup error: %v", err)
	}

	bc := testBeacon(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("beacon should not be called before validator info is fetched")
	}, 1000)

	if err := ValidatorBalances(ctx, testLog(t), q, bc, cfg, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flags, err := q.EpochFlagsOf(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flags.ValidatorsBalFetched {
		t.Errorf("balances should not be marked fetched before validator info exists")
	}
}
