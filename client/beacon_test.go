package client

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testBeaconClient(t *testing.T, fullURL, archiveURL string, head uint64) *BeaconClient {
	t.Helper()
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	rc := New(Config{
		FullBaseURL:         fullURL,
		ArchiveBaseURL:      archiveURL,
		FullNodeConcurrency: 4,
		ArchiveConcurrency:  4,
		RequestsPerSecond:   1000,
		Retry:               RetryConfig{Retries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Log:                 logrus.NewEntry(l),
	})
	return NewBeaconClient(rc, func() uint64 { return head })
}

func writeEnvelope(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	raw, _ := json.Marshal(data)
	w.Write([]byte(`{"data":` + string(raw) + `}`))
}

func TestBeaconClientBlockSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, Block{Slot: 100, ProposerIndex: 7})
	}))
	defer srv.Close()

	bc := testBeaconClient(t, srv.URL, srv.URL, 1000)
	res, err := bc.Block(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Missed {
		t.Fatalf("expected a found block")
	}
	if res.Value.Slot != 100 || res.Value.ProposerIndex != 7 {
		t.Errorf("got %+v", res.Value)
	}
}

func TestBeaconClientBlockMissedSlot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	bc := testBeaconClient(t, srv.URL, srv.URL, 1000)
	res, err := bc.Block(context.Background(), 101)
	if err != nil {
		t.Fatalf("expected sentinel, got error: %v", err)
	}
	if !res.Missed {
		t.Errorf("expected Missed=true for empty slot")
	}
}

func TestBeaconClientValidatorsPostsIDsAndStatuses(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		writeEnvelope(w, []ValidatorInfo{{Index: 5, Status: StatusWithdrawalPossible}})
	}))
	defer srv.Close()

	bc := testBeaconClient(t, srv.URL, srv.URL, 1000)
	res, err := bc.Validators(context.Background(), "head", []uint64{5}, []string{"active_ongoing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Value) != 1 || res.Value[0].Index != 5 {
		t.Errorf("got %+v", res.Value)
	}
	ids, _ := gotBody["ids"].([]interface{})
	if len(ids) != 1 || ids[0] != "5" {
		t.Errorf("request body ids = %+v, want [\"5\"]", gotBody["ids"])
	}
}

func TestBeaconClientBlockRewardsPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	bc := testBeaconClient(t, srv.URL, srv.URL, 1000)
	_, err := bc.BlockRewards(context.Background(), 50)
	if err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

func TestAggregationBitIndexesDropsLengthMarker(t *testing.T) {
	// Bits set at positions 0, 2, and the length-marker bit at position 4.
	// 0b00010101 = 0x15
	indexes, err := AggregationBitIndexes("0x15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[int]bool{0: true, 2: true}
	if len(indexes) != len(want) {
		t.Fatalf("got %v, want indexes for %v", indexes, want)
	}
	for _, idx := range indexes {
		if !want[idx] {
			t.Errorf("unexpected index %d in %v", idx, indexes)
		}
	}
}
