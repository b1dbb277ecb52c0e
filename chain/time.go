package chain

import "time"

// SlotOf returns the slot active at wall-clock time t.
//
//	slotOf(t) = floor((t - T0) / slotDuration)
func (c *Config) SlotOf(t time.Time) uint64 {
	d := t.Sub(c.GenesisTime)
	if d < 0 {
		return 0
	}
	return uint64(d / c.SlotDuration)
}

// TimeOf returns the wall-clock time a slot begins at.
//
//	timeOf(s) = T0 + s*slotDuration
func (c *Config) TimeOf(slot uint64) time.Time {
	return c.GenesisTime.Add(time.Duration(slot) * c.SlotDuration)
}

// EpochOf returns the epoch containing a slot.
func (c *Config) EpochOf(slot uint64) uint64 {
	return slot / c.SlotsPerEpoch
}

// StartSlot returns the first slot of an epoch.
func (c *Config) StartSlot(epoch uint64) uint64 {
	return epoch * c.SlotsPerEpoch
}

// EndSlot returns the last slot of an epoch.
func (c *Config) EndSlot(epoch uint64) uint64 {
	return c.StartSlot(epoch) + c.SlotsPerEpoch - 1
}

// PeriodStartEpoch returns the first epoch of the sync-committee period that
// contains epoch e.
func (c *Config) PeriodStartEpoch(epoch uint64) uint64 {
	return (epoch / c.EpochsPerSyncCommitteePeriod) * c.EpochsPerSyncCommitteePeriod
}

// PeriodEndEpoch returns the last epoch of the sync-committee period that
// contains epoch e.
func (c *Config) PeriodEndEpoch(epoch uint64) uint64 {
	return c.PeriodStartEpoch(epoch) + c.EpochsPerSyncCommitteePeriod - 1
}

// OldestLookbackSlot is the oldest slot the indexer will ever create state
// for, relative to now.
func (c *Config) OldestLookbackSlot(now time.Time) uint64 {
	currentSlot := c.SlotOf(now)
	if c.LookbackSlots >= currentSlot {
		return 0
	}
	return currentSlot - c.LookbackSlots
}

// MaxSlotToFetch is the newest slot considered safe to index, buffered away
// from the head by DelaySlotsToHead to absorb reorgs.
func (c *Config) MaxSlotToFetch(now time.Time) uint64 {
	currentSlot := c.SlotOf(now)
	if c.DelaySlotsToHead >= currentSlot {
		return 0
	}
	return currentSlot - c.DelaySlotsToHead
}

// HourOf returns the UTC (date, hour) bucket a slot's timestamp falls in,
// the primary sharding dimension for hourly tables.
func (c *Config) HourOf(slot uint64) (date time.Time, hour int) {
	t := c.TimeOf(slot).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), t.Hour()
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
