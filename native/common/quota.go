package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaExceeded        = errors.New("operation quota exceeded")
	ErrQuotaCounterOverflow = errors.New("quota counter overflow")
)

// QuotaNow captures the usage counter for an address within one epoch.
type QuotaNow struct {
	OpCount uint32
	EpochID uint64
}

// Quota throttles how many operations an address may perform per epoch. A
// zero MaxOpsPerEpoch disables the throttle.
type Quota struct {
	MaxOpsPerEpoch uint32
	EpochSeconds   uint32
}

// Enabled reports whether the quota imposes any limit.
func (q Quota) Enabled() bool {
	return q.MaxOpsPerEpoch > 0 && q.EpochSeconds > 0
}

// CheckQuota verifies that addOps additional operations fit within the quota
// for the given epoch. The returned QuotaNow reflects the updated counter when
// the quota is not exceeded; on failure the previous counters are returned
// unchanged.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addOps uint32) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}
	if addOps > 0 {
		if next.OpCount > math.MaxUint32-addOps {
			return prev, ErrQuotaCounterOverflow
		}
		next.OpCount += addOps
	}
	if q.MaxOpsPerEpoch > 0 && next.OpCount > q.MaxOpsPerEpoch {
		return prev, ErrQuotaExceeded
	}
	return next, nil
}
