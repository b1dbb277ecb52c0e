// Package chain defines the per-network constants the indexer needs to
// translate between wall-clock time, slots and epochs, and to know how much
// of the chain's recent history is still subject to reorg.
package chain

import "time"

// Name identifies one of the supported beacon chains.
type Name string

// Supported chains.
const (
	Ethereum Name = "ethereum"
	Gnosis   Name = "gnosis"
)

// Config holds the static parameters of a beacon chain that the indexer
// needs. Unlike the teacher's BeaconChainConfig this is deliberately small:
// only what the indexing pipeline consumes, not full consensus parameters.
type Config struct {
	Name Name

	// GenesisTime is the wall-clock time of slot 0.
	GenesisTime time.Time

	// SlotDuration is the fixed wall-clock duration of one slot.
	SlotDuration time.Duration

	// SlotsPerEpoch is the number of slots sharing one committee assignment.
	SlotsPerEpoch uint64

	// EpochsPerSyncCommitteePeriod is the number of epochs a sync committee
	// serves before rotating.
	EpochsPerSyncCommitteePeriod uint64

	// MaxAttestationDelay is the largest delay, in slots, still counted as
	// an on-time attestation.
	MaxAttestationDelay uint64

	// DelaySlotsToHead is the buffer kept behind the chain head to absorb
	// reorgs before a slot is considered safe to index.
	DelaySlotsToHead uint64

	// LookbackSlots is how many slots behind the current slot (computed from
	// "now") the indexer will still create state for.
	LookbackSlots uint64
}

// Copy returns a deep copy, mirroring the teacher's BeaconChainConfig.Copy
// so per-network configs can be derived from a base without aliasing.
func (c *Config) Copy() *Config {
	cp := *c
	return &cp
}

// MainnetConfig returns the Ethereum mainnet profile.
func MainnetConfig() *Config {
	return &Config{
		Name:                         Ethereum,
		GenesisTime:                  time.Unix(1606824023, 0).UTC(),
		SlotDuration:                 12 * time.Second,
		SlotsPerEpoch:                32,
		EpochsPerSyncCommitteePeriod: 256,
		MaxAttestationDelay:          32,
		DelaySlotsToHead:             3,
		LookbackSlots:                225 * 32 * 10, // ~10 days of epochs, overridden by CONSENSUS_LOOKBACK_SLOT
	}
}

// GnosisConfig returns the Gnosis Chain profile, derived from mainnet's the
// way the teacher derives testnet configs from MainnetConfig().Copy().
func GnosisConfig() *Config {
	cfg := MainnetConfig().Copy()
	cfg.Name = Gnosis
	cfg.GenesisTime = time.Unix(1638993340, 0).UTC()
	cfg.SlotDuration = 5 * time.Second
	cfg.SlotsPerEpoch = 16
	cfg.EpochsPerSyncCommitteePeriod = 512
	cfg.MaxAttestationDelay = 16
	return cfg
}

// ForName resolves a chain profile by its env/flag name.
func ForName(name string) (*Config, bool) {
	switch Name(name) {
	case Ethereum:
		return MainnetConfig(), true
	case Gnosis:
		return GnosisConfig(), true
	default:
		return nil, false
	}
}
