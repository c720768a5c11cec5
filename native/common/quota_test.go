package common

import (
	"errors"
	"math"
	"testing"
)

func TestCheckQuotaCountsWithinEpoch(t *testing.T) {
	quota := Quota{MaxOpsPerEpoch: 2, EpochSeconds: 60}
	if !quota.Enabled() {
		t.Fatal("quota should be enabled")
	}

	usage := QuotaNow{}
	var err error
	for i := 0; i < 2; i++ {
		usage, err = CheckQuota(quota, 100, usage, 1)
		if err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}
	if _, err := CheckQuota(quota, 100, usage, 1); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestCheckQuotaResetsOnNewEpoch(t *testing.T) {
	quota := Quota{MaxOpsPerEpoch: 1, EpochSeconds: 60}
	usage, err := CheckQuota(quota, 100, QuotaNow{}, 1)
	if err != nil {
		t.Fatalf("first op: %v", err)
	}
	if _, err := CheckQuota(quota, 100, usage, 1); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("same epoch: got %v", err)
	}
	usage, err = CheckQuota(quota, 101, usage, 1)
	if err != nil {
		t.Fatalf("next epoch: %v", err)
	}
	if usage.EpochID != 101 || usage.OpCount != 1 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestCheckQuotaCounterOverflow(t *testing.T) {
	quota := Quota{MaxOpsPerEpoch: 0, EpochSeconds: 60}
	prev := QuotaNow{OpCount: math.MaxUint32, EpochID: 5}
	if _, err := CheckQuota(quota, 5, prev, 1); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected ErrQuotaCounterOverflow, got %v", err)
	}
}

func TestDisabledQuotaNeverBlocks(t *testing.T) {
	quota := Quota{}
	if quota.Enabled() {
		t.Fatal("zero quota must be disabled")
	}
	usage, err := CheckQuota(quota, 1, QuotaNow{}, 1)
	if err != nil {
		t.Fatalf("disabled quota: %v", err)
	}
	if usage.OpCount != 1 {
		t.Fatalf("counter should still advance: %+v", usage)
	}
}
