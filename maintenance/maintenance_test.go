package maintenance

import (
	"context"
	"io/ioutil"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor/chain"
	"github.com/NodeSentinel/beacon-validator-monitor/store"
)

func testLog(t *testing.T) *logrus.Entry {
	t.Helper()
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return logrus.NewEntry(l)
}

type fakeVacuumer struct {
	calls int
	err   error
}

func (f *fakeVacuumer) VacuumAnalyze(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestPruneCallsVacuumAnalyze(t *testing.T) {
	v := &fakeVacuumer{}
	if err := Prune(context.Background(), testLog(t), v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.calls != 1 {
		t.Errorf("VacuumAnalyze called %d times, want 1", v.calls)
	}
}

func TestCleanupCommitteeDeletesResolvedEvidenceOutsideRetentionWindow(t *testing.T) {
	cfg := chain.MainnetConfig()
	q := store.NewMemory()
	ctx := context.Background()

	// A committee member attested on time at slot 10, well outside the
	// 3-epoch retention window behind a fetch horizon of slot 1000.
	if err := q.UpsertCommittees(ctx, cfg.EpochOf(10), []store.CommitteeMember{{Slot: 10, Index: 0, Position: 0, ValidatorIndex: 1}}); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if _, err := q.ApplyAttestationResults(ctx, []store.AttestationDelayUpdate{{Slot: 10, Index: 0, Position: 0, Delay: 1}}, 0, cfg.MaxAttestationDelay, 10); err != nil {
		t.Fatalf("setup error: %v", err)
	}

	if err := CleanupCommittee(ctx, testLog(t), q, cfg, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := q.CommitteeDelay(10, 0, 0); got != nil {
		t.Errorf("expected resolved committee row to be pruned, got delay=%v", *got)
	}
}

func TestCleanupCommitteeSkipsBeforeRetentionWindowReached(t *testing.T) {
	cfg := chain.MainnetConfig()
	q := store.NewMemory()
	ctx := context.Background()

	if err := CleanupCommittee(ctx, testLog(t), q, cfg, cfg.SlotsPerEpoch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
