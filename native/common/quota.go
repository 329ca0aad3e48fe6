package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaPointsExceeded   = errors.New("quota points exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for a token within a day.
type QuotaNow struct {
	ReqCount   uint32
	PointsUsed uint64
	Day        uint64
}

// Quota defines the per-day limits enforced for a partner interaction.
type Quota struct {
	MaxRequestsPerDay uint32
	MaxPointsPerDay   uint64
}

// CheckQuota verifies whether the additional request and point usage fit
// within the configured quota. The window resets whenever the supplied day
// index advances past the recorded one. The returned QuotaNow reflects the
// updated counters when the quota is not exceeded; on denial the previous
// counters are returned untouched.
func CheckQuota(q Quota, nowDay uint64, prev QuotaNow, addReq uint32, addPoints uint64) (QuotaNow, error) {
	next := prev
	if prev.Day != nowDay {
		next = QuotaNow{Day: nowDay}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerDay > 0 && next.ReqCount > q.MaxRequestsPerDay {
		return prev, ErrQuotaRequestsExceeded
	}

	if addPoints > 0 {
		if next.PointsUsed > math.MaxUint64-addPoints {
			return prev, ErrQuotaCounterOverflow
		}
		next.PointsUsed += addPoints
	}
	if q.MaxPointsPerDay > 0 && next.PointsUsed > q.MaxPointsPerDay {
		return prev, ErrQuotaPointsExceeded
	}

	return next, nil
}
