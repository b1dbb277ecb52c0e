package ratelimit

import "testing"

func TestLimiterAllowsBurstThenConsumes(t *testing.T) {
	l := New(10)
	for i := 0; i < 10; i++ {
		l.Wait()
	}
	if remaining := l.Remaining(); remaining < 0 {
		t.Errorf("Remaining() = %d, want >= 0 after consuming the burst", remaining)
	}
}

func TestLimiterZeroOrNegativeRequestsPerSecondClampsToOne(t *testing.T) {
	l := New(0)
	l.Wait()
	if l.collector == nil {
		t.Fatalf("expected a collector to be constructed even for rps<=0")
	}
}
