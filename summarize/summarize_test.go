package summarize

import (
	"context"
	"io/ioutil"
	"testing"
	"time"

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

// testConfig anchors genesis at the zero time so a Memory store's
// zero-value watermarks line up with slot 0, keeping the arithmetic in
// these tests readable.
func testConfig() *chain.Config {
	return &chain.Config{
		Name:                chain.Ethereum,
		GenesisTime:         time.Time{},
		SlotDuration:        12 * time.Second,
		SlotsPerEpoch:       32,
		MaxAttestationDelay: 32,
	}
}

func TestHourlySkipsWhenWindowHasNotElapsed(t *testing.T) {
	cfg := testConfig()
	q := store.NewMemory()
	ctx := context.Background()

	if err := Hourly(ctx, testLog(t), q, cfg, time.Time{}.Add(30*time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wm, err := q.HourlyWatermark(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !wm.IsZero() {
		t.Errorf("watermark advanced despite an unelapsed window: %v", wm)
	}
}

func TestHourlyAdvancesWatermarkAndRecordsMissed(t *testing.T) {
	cfg := testConfig()
	q := store.NewMemory()
	ctx := context.Background()

	endTime := time.Time{}.Add(time.Hour)
	if err := q.EnsureEpochsAndSlots(ctx, 0, 335, cfg.SlotsPerEpoch); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	// A committee member at slot 100 with no recorded delay (never attested
	// on time) should count as missed for the window ending at slot 300.
	if err := q.UpsertCommittees(ctx, cfg.EpochOf(100), []store.CommitteeMember{{Slot: 100, Index: 0, Position: 0, ValidatorIndex: 7}}); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.SetSlotAttestationsFetched(ctx, 299); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.AddBlockAndSyncRewards(ctx, 299, time.Time{}, 0, nil); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.SetEpochFlag(ctx, cfg.EpochOf(300)+1, store.EpochRewardsFetched); err != nil {
		t.Fatalf("setup error: %v", err)
	}

	if err := Hourly(ctx, testLog(t), q, cfg, endTime); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wm, err := q.HourlyWatermark(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !wm.Equal(endTime) {
		t.Errorf("hourly watermark = %v, want %v", wm, endTime)
	}
}

func TestHourlySkipsWhenSlotFlagsIncomplete(t *testing.T) {
	cfg := testConfig()
	q := store.NewMemory()
	ctx := context.Background()

	endTime := time.Time{}.Add(time.Hour)
	if err := q.EnsureEpochsAndSlots(ctx, 0, 335, cfg.SlotsPerEpoch); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.SetEpochFlag(ctx, cfg.EpochOf(300)+1, store.EpochRewardsFetched); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	// Deliberately do not flip slot 299's reward flags.

	if err := Hourly(ctx, testLog(t), q, cfg, endTime); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wm, err := q.HourlyWatermark(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !wm.IsZero() {
		t.Errorf("watermark advanced despite incomplete per-slot flags: %v", wm)
	}
}

func TestDailySkipsUntil24HourlyRowsLand(t *testing.T) {
	cfg := testConfig()
	q := store.NewMemory()
	ctx := context.Background()

	lastSlotOfDay := cfg.SlotOf(time.Time{}.Add(24*time.Hour)) - 1
	if err := q.EnsureEpochsAndSlots(ctx, 0, lastSlotOfDay+cfg.SlotsPerEpoch, cfg.SlotsPerEpoch); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.SetSlotAttestationsFetched(ctx, lastSlotOfDay); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.AddBlockAndSyncRewards(ctx, lastSlotOfDay, time.Time{}, 23, nil); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.SetEpochFlag(ctx, cfg.EpochOf(lastSlotOfDay), store.EpochRewardsFetched); err != nil {
		t.Fatalf("setup error: %v", err)
	}

	// Only a handful of hourly rows, well short of the 24 required.
	for h := 0; h < 5; h++ {
		if err := q.StageAndMergeAttestationRewards(ctx, cfg.EpochOf(lastSlotOfDay), time.Time{}, h, []store.AttestationRewardRow{{ValidatorIndex: 1, Head: "1", Target: "1", Source: "1", Inactivity: "0"}}); err != nil {
			t.Fatalf("setup error: %v", err)
		}
	}

	if err := Daily(ctx, testLog(t), q, cfg, time.Time{}.Add(25*time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wm, err := q.DailyWatermark(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !wm.IsZero() {
		t.Errorf("daily watermark advanced despite fewer than 24 hourly rows: %v", wm)
	}
}

func TestDailySummarizesOnceAllPreconditionsHold(t *testing.T) {
	cfg := testConfig()
	q := store.NewMemory()
	ctx := context.Background()

	lastSlotOfDay := cfg.SlotOf(time.Time{}.Add(24*time.Hour)) - 1
	if err := q.EnsureEpochsAndSlots(ctx, 0, lastSlotOfDay+cfg.SlotsPerEpoch, cfg.SlotsPerEpoch); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.SetSlotAttestationsFetched(ctx, lastSlotOfDay); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.AddBlockAndSyncRewards(ctx, lastSlotOfDay, time.Time{}, 23, nil); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	if err := q.SetEpochFlag(ctx, cfg.EpochOf(lastSlotOfDay), store.EpochRewardsFetched); err != nil {
		t.Fatalf("setup error: %v", err)
	}
	// HourlyStatsCountSince only counts buckets strictly after the
	// watermark, so with a zero-value watermark the bucket at hour 0 would
	// not count; use hours 1..24 so all 24 rows land strictly after it.
	for h := 1; h <= 24; h++ {
		if err := q.StageAndMergeAttestationRewards(ctx, cfg.EpochOf(lastSlotOfDay), time.Time{}, h, []store.AttestationRewardRow{{ValidatorIndex: 1, Head: "1", Target: "1", Source: "1", Inactivity: "0"}}); err != nil {
			t.Fatalf("setup error: %v", err)
		}
	}

	if err := Daily(ctx, testLog(t), q, cfg, time.Time{}.Add(25*time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wm, err := q.DailyWatermark(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Time{}.Add(24 * time.Hour)
	if !wm.Equal(want) {
		t.Errorf("daily watermark = %v, want %v", wm, want)
	}
}
