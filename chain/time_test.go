package chain

import (
	"testing"
	"time"
)

func TestSlotOfTimeOfRoundTrip(t *testing.T) {
	cfg := MainnetConfig()
	for _, slot := range []uint64{0, 1, 100, 7_900_000} {
		tm := cfg.TimeOf(slot)
		got := cfg.SlotOf(tm)
		if got != slot {
			t.Errorf("SlotOf(TimeOf(%d)) = %d, want %d", slot, got, slot)
		}
	}
}

func TestEpochOf(t *testing.T) {
	cfg := MainnetConfig()
	cases := []struct {
		slot uint64
		want uint64
	}{
		{0, 0},
		{31, 0},
		{32, 1},
		{63, 1},
		{64, 2},
	}
	for _, c := range cases {
		if got := cfg.EpochOf(c.slot); got != c.want {
			t.Errorf("EpochOf(%d) = %d, want %d", c.slot, got, c.want)
		}
	}
}

func TestStartEndSlot(t *testing.T) {
	cfg := MainnetConfig()
	if got := cfg.StartSlot(5); got != 160 {
		t.Errorf("StartSlot(5) = %d, want 160", got)
	}
	if got := cfg.EndSlot(5); got != 191 {
		t.Errorf("EndSlot(5) = %d, want 191", got)
	}
}

func TestPeriodStartEpoch(t *testing.T) {
	cfg := MainnetConfig()
	if got := cfg.PeriodStartEpoch(300); got != 256 {
		t.Errorf("PeriodStartEpoch(300) = %d, want 256", got)
	}
	if got := cfg.PeriodStartEpoch(10); got != 0 {
		t.Errorf("PeriodStartEpoch(10) = %d, want 0", got)
	}

	gnosis := GnosisConfig()
	if got := gnosis.PeriodStartEpoch(1000); got != 512 {
		t.Errorf("gnosis PeriodStartEpoch(1000) = %d, want 512", got)
	}
}

func TestMaxSlotToFetchBuffersHead(t *testing.T) {
	cfg := MainnetConfig()
	now := cfg.GenesisTime.Add(1000 * cfg.SlotDuration)
	currentSlot := cfg.SlotOf(now)
	got := cfg.MaxSlotToFetch(now)
	if got != currentSlot-cfg.DelaySlotsToHead {
		t.Errorf("MaxSlotToFetch = %d, want %d", got, currentSlot-cfg.DelaySlotsToHead)
	}
}

func TestOldestLookbackSlotNeverNegative(t *testing.T) {
	cfg := MainnetConfig()
	cfg.LookbackSlots = 1_000_000
	now := cfg.GenesisTime.Add(time.Hour)
	if got := cfg.OldestLookbackSlot(now); got != 0 {
		t.Errorf("OldestLookbackSlot = %d, want 0", got)
	}
}

func TestHourOfBucketsByUTCDay(t *testing.T) {
	cfg := MainnetConfig()
	date, hour := cfg.HourOf(0)
	want := DateOf(cfg.GenesisTime)
	if !date.Equal(want) {
		t.Errorf("HourOf date = %v, want %v", date, want)
	}
	if hour != cfg.GenesisTime.UTC().Hour() {
		t.Errorf("HourOf hour = %d, want %d", hour, cfg.GenesisTime.UTC().Hour())
	}
}

func TestGnosisDiffersFromMainnet(t *testing.T) {
	m := MainnetConfig()
	g := GnosisConfig()
	if m.SlotDuration == g.SlotDuration {
		t.Errorf("expected different slot durations")
	}
	if m.SlotsPerEpoch == g.SlotsPerEpoch {
		t.Errorf("expected different slots per epoch")
	}
	if m.GenesisTime.Equal(g.GenesisTime) {
		t.Errorf("expected different genesis times")
	}
}
