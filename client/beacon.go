package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// bulkCallTimeout bounds the large POST endpoints (validators, balances,
// attestation rewards) per spec §4.2: "3-10 minutes for bulk calls".
const bulkCallTimeout = 5 * time.Minute

// defaultCallTimeout bounds ordinary per-slot/per-epoch GET calls.
const defaultCallTimeout = 30 * time.Second

// BeaconClient is the typed façade of spec §4.3 over the beacon REST API,
// built on top of the reliable Client. Each method picks a pool per §4.2
// and, for slot-addressed endpoints, applies Missed404AsSentinel.
type BeaconClient struct {
	rc         *Client
	httpClient *http.Client
	headSlot   func() uint64
}

// NewBeaconClient wraps a reliable Client with the typed beacon endpoints.
// headSlot supplies the current chain head slot for pool-selection
// heuristics; it is normally chain.Config.SlotOf(time.Now()).
func NewBeaconClient(rc *Client, headSlot func() uint64) *BeaconClient {
	return &BeaconClient{
		rc:         rc,
		httpClient: &http.Client{},
		headSlot:   headSlot,
	}
}

type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func (b *BeaconClient) get(ctx context.Context, baseURL, path string, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	return b.do(req)
}

func (b *BeaconClient) post(ctx context.Context, baseURL, path string, body interface{}, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encoding request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req)
}

func (b *BeaconClient) do(req *http.Request) (json.RawMessage, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "performing http request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("beacon API returned status %d for %s", resp.StatusCode, req.URL.Path),
		}
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, errors.Wrap(err, "decoding response envelope")
	}
	return env.Data, nil
}

// Committees fetches every committee assignment for an epoch.
func (b *BeaconClient) Committees(ctx context.Context, epoch uint64) (Result[[]CommitteeDuty], error) {
	pool := SelectPool(PoolArchive, b.headSlot(), epoch, false)
	return Do(ctx, b.rc, pool, PropagateError, func(ctx context.Context, baseURL string) ([]CommitteeDuty, error) {
		path := fmt.Sprintf("/eth/v1/beacon/states/head/committees?epoch=%d", epoch)
		raw, err := b.get(ctx, baseURL, path, defaultCallTimeout)
		if err != nil {
			return nil, err
		}
		var out []CommitteeDuty
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, errors.Wrap(err, "decoding committees")
		}
		return out, nil
	})
}

// SyncCommittees fetches the sync committee serving the period containing epoch.
func (b *BeaconClient) SyncCommittees(ctx context.Context, startSlot, epoch uint64) (Result[SyncCommitteeDuty], error) {
	pool := SelectPool(PoolArchive, b.headSlot(), startSlot, false)
	return Do(ctx, b.rc, pool, PropagateError, func(ctx context.Context, baseURL string) (SyncCommitteeDuty, error) {
		path := fmt.Sprintf("/eth/v1/beacon/states/%d/sync_committees?epoch=%d", startSlot, epoch)
		raw, err := b.get(ctx, baseURL, path, defaultCallTimeout)
		if err != nil {
			return SyncCommitteeDuty{}, err
		}
		var out SyncCommitteeDuty
		if err := json.Unmarshal(raw, &out); err != nil {
			return SyncCommitteeDuty{}, errors.Wrap(err, "decoding sync committee")
		}
		return out, nil
	})
}

// Block fetches the block at slot s. A missing block (empty slot) surfaces
// as Result.Missed via Missed404AsSentinel.
func (b *BeaconClient) Block(ctx context.Context, slot uint64) (Result[Block], error) {
	pool := SelectPool(PoolFull, b.headSlot(), slot, false)
	return Do(ctx, b.rc, pool, Missed404AsSentinel, func(ctx context.Context, baseURL string) (Block, error) {
		path := fmt.Sprintf("/eth/v2/beacon/blocks/%d", slot)
		raw, err := b.get(ctx, baseURL, path, defaultCallTimeout)
		if err != nil {
			return Block{}, err
		}
		var out Block
		if err := json.Unmarshal(raw, &out); err != nil {
			return Block{}, errors.Wrap(err, "decoding block")
		}
		return out, nil
	})
}

// Attestations fetches the attestations included in the block at slot s.
// Applies the head-proximity pool heuristic per §4.2.
func (b *BeaconClient) Attestations(ctx context.Context, slot uint64) (Result[[]Attestation], error) {
	pool := SelectPool(PoolFull, b.headSlot(), slot, true)
	return Do(ctx, b.rc, pool, Missed404AsSentinel, func(ctx context.Context, baseURL string) ([]Attestation, error) {
		path := fmt.Sprintf("/eth/v1/beacon/blocks/%d/attestations", slot)
		raw, err := b.get(ctx, baseURL, path, defaultCallTimeout)
		if err != nil {
			return nil, err
		}
		var out []Attestation
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, errors.Wrap(err, "decoding attestations")
		}
		return out, nil
	})
}

// Validators fetches validator info for a state, optionally filtered by ids
// and statuses.
func (b *BeaconClient) Validators(ctx context.Context, stateID string, ids []uint64, statuses []string) (Result[[]ValidatorInfo], error) {
	pool := SelectPool(PoolArchive, b.headSlot(), b.headSlot(), false)
	return Do(ctx, b.rc, pool, PropagateError, func(ctx context.Context, baseURL string) ([]ValidatorInfo, error) {
		body := map[string]interface{}{"ids": idStrings(ids), "statuses": statuses}
		raw, err := b.post(ctx, baseURL, fmt.Sprintf("/eth/v1/beacon/states/%s/validators", stateID), body, bulkCallTimeout)
		if err != nil {
			return nil, err
		}
		var out []ValidatorInfo
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, errors.Wrap(err, "decoding validators")
		}
		return out, nil
	})
}

// ValidatorBalances fetches balances for a batch of validator ids at stateID.
func (b *BeaconClient) ValidatorBalances(ctx context.Context, stateID string, ids []uint64) (Result[[]ValidatorBalance], error) {
	pool := SelectPool(PoolArchive, b.headSlot(), b.headSlot(), false)
	return Do(ctx, b.rc, pool, PropagateError, func(ctx context.Context, baseURL string) ([]ValidatorBalance, error) {
		raw, err := b.post(ctx, baseURL, fmt.Sprintf("/eth/v1/beacon/states/%s/validator_balances", stateID), idStrings(ids), bulkCallTimeout)
		if err != nil {
			return nil, err
		}
		var out []ValidatorBalance
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, errors.Wrap(err, "decoding validator balances")
		}
		return out, nil
	})
}

// AttestationRewards fetches the ideal and received attestation rewards for
// an epoch and a set of validator ids.
func (b *BeaconClient) AttestationRewards(ctx context.Context, epoch uint64, ids []uint64) (Result[AttestationRewards], error) {
	pool := SelectPool(PoolArchive, b.headSlot(), epoch, false)
	return Do(ctx, b.rc, pool, PropagateError, func(ctx context.Context, baseURL string) (AttestationRewards, error) {
		path := fmt.Sprintf("/eth/v1/beacon/rewards/attestations/%d", epoch)
		raw, err := b.post(ctx, baseURL, path, idStrings(ids), bulkCallTimeout)
		if err != nil {
			return AttestationRewards{}, err
		}
		var out AttestationRewards
		if err := json.Unmarshal(raw, &out); err != nil {
			return AttestationRewards{}, errors.Wrap(err, "decoding attestation rewards")
		}
		return out, nil
	})
}

// BlockRewards fetches the proposer reward breakdown for the block at slot s.
func (b *BeaconClient) BlockRewards(ctx context.Context, slot uint64) (Result[BlockRewards], error) {
	pool := SelectPool(PoolFull, b.headSlot(), slot, false)
	return Do(ctx, b.rc, pool, Missed404AsSentinel, func(ctx context.Context, baseURL string) (BlockRewards, error) {
		path := fmt.Sprintf("/eth/v1/beacon/rewards/blocks/%d", slot)
		raw, err := b.get(ctx, baseURL, path, defaultCallTimeout)
		if err != nil {
			return BlockRewards{}, err
		}
		var out BlockRewards
		if err := json.Unmarshal(raw, &out); err != nil {
			return BlockRewards{}, errors.Wrap(err, "decoding block rewards")
		}
		return out, nil
	})
}

// SyncCommitteeRewards fetches sync-committee rewards for the block at slot
// s for the given committee member ids.
func (b *BeaconClient) SyncCommitteeRewards(ctx context.Context, slot uint64, ids []uint64) (Result[[]SyncCommitteeReward], error) {
	pool := SelectPool(PoolFull, b.headSlot(), slot, false)
	return Do(ctx, b.rc, pool, Missed404AsSentinel, func(ctx context.Context, baseURL string) ([]SyncCommitteeReward, error) {
		path := fmt.Sprintf("/eth/v1/beacon/rewards/sync_committee/%d", slot)
		raw, err := b.post(ctx, baseURL, path, idStrings(ids), defaultCallTimeout)
		if err != nil {
			return nil, err
		}
		var out []SyncCommitteeReward
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, errors.Wrap(err, "decoding sync committee rewards")
		}
		return out, nil
	})
}

// ProposerDuties fetches the proposer assignment for every slot in an epoch.
func (b *BeaconClient) ProposerDuties(ctx context.Context, epoch uint64) (Result[[]ProposerDuty], error) {
	pool := SelectPool(PoolArchive, b.headSlot(), epoch, false)
	return Do(ctx, b.rc, pool, PropagateError, func(ctx context.Context, baseURL string) ([]ProposerDuty, error) {
		path := fmt.Sprintf("/eth/v1/validator/duties/proposer/%d", epoch)
		raw, err := b.get(ctx, baseURL, path, defaultCallTimeout)
		if err != nil {
			return nil, err
		}
		var out []ProposerDuty
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, errors.Wrap(err, "decoding proposer duties")
		}
		return out, nil
	})
}

func idStrings(ids []uint64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatUint(id, 10)
	}
	return out
}

// AggregationBitIndexes decodes a little-endian aggregation_bits hex string
// (as emitted by the beacon API's "0x..." encoding) into the set bit
// positions, per spec §4.4's attestation-delay computation.
func AggregationBitIndexes(hex string) ([]int, error) {
	raw, err := decodeHex(hex)
	if err != nil {
		return nil, errors.Wrap(err, "decoding aggregation bits")
	}
	var indexes []int
	// The SSZ bitlist carries one extra high "length" bit in its last byte;
	// the highest set bit overall marks the list length and is not a vote.
	highest := -1
	for byteIdx, bb := range raw {
		for bit := 0; bit < 8; bit++ {
			if bb&(1<<uint(bit)) != 0 {
				pos := byteIdx*8 + bit
				if pos > highest {
					highest = pos
				}
				indexes = append(indexes, pos)
			}
		}
	}
	// Drop the length-marker bit (the highest set bit) if present.
	if highest >= 0 {
		for i, v := range indexes {
			if v == highest {
				indexes = append(indexes[:i], indexes[i+1:]...)
				break
			}
		}
	}
	return indexes, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
