package client

// Pool identifies which upstream beacon node a request should prefer: the
// real-time full node, or the archive node that retains historical state.
// Modeled on the teacher's practice of keeping one concurrency gate per
// upstream peer class (beacon-chain/sync/initial-sync/blocks_fetcher.go
// keys its rate limiter per peer; here there are exactly two well-known
// peers instead of an open set).
type Pool int

// The two beacon node pools.
const (
	PoolFull Pool = iota
	PoolArchive
)

func (p Pool) String() string {
	switch p {
	case PoolFull:
		return "full"
	case PoolArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// headProximitySlots is the §4.2 head-proximity heuristic threshold: within
// this many slots of head, attestation requests prefer the archive pool
// because the full node's attestation body for a near-head block is still
// volatile.
const headProximitySlots = 5

// indexerDelayedSlots is the §4.2 indexer-is-delayed heuristic threshold:
// once the indexer falls this far behind head, the full node typically
// lacks the historical state being requested, so the archive pool is
// forced regardless of the caller's preference.
const indexerDelayedSlots = 250

// SelectPool applies the §4.2 priority-selection heuristics on top of a
// caller's preferred pool. headSlot is the chain head slot; targetSlot is
// the slot or epoch-start-slot the request concerns; forAttestations marks
// the head-proximity override, which only applies to attestation requests.
func SelectPool(preferred Pool, headSlot, targetSlot uint64, forAttestations bool) Pool {
	if headSlot > targetSlot && headSlot-targetSlot > indexerDelayedSlots {
		return PoolArchive
	}
	if forAttestations {
		if headSlot >= targetSlot && headSlot-targetSlot <= headProximitySlots {
			return PoolArchive
		}
		return PoolFull
	}
	return preferred
}
