package server

import (
	"errors"
	"net/http"
	"strings"

	nativecommon "github.com/Lagxy/Lending-DApps/native/common"
	"github.com/Lagxy/Lending-DApps/native/lending"
)

// statusFor translates engine errors into HTTP status codes. Unknown errors
// that smell like request decoding problems map to 400; everything else is a
// server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrZeroAddress),
		errors.Is(err, lending.ErrSlippageFloorRequired):
		return http.StatusBadRequest
	case errors.Is(err, lending.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, lending.ErrTokenNotSupported),
		errors.Is(err, lending.ErrNoActiveLoan),
		errors.Is(err, lending.ErrRaisingNotFound):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrTokenAlreadySupported),
		errors.Is(err, lending.ErrMaxTokensReached),
		errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, lending.ErrOutstandingDebt),
		errors.Is(err, lending.ErrAmountExceedsLimit),
		errors.Is(err, lending.ErrUnhealthyPosition),
		errors.Is(err, lending.ErrNotLiquidatable),
		errors.Is(err, lending.ErrRaisingAlreadyOpen),
		errors.Is(err, lending.ErrRaisingNotOpen),
		errors.Is(err, lending.ErrRaisingStillOpen),
		errors.Is(err, lending.ErrTargetReached),
		errors.Is(err, lending.ErrTargetNotMet),
		errors.Is(err, lending.ErrUnsettledCollateral),
		errors.Is(err, lending.ErrUnsettledInterest):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, lending.ErrStalePrice),
		errors.Is(err, lending.ErrInvalidPrice):
		return http.StatusServiceUnavailable
	case errors.Is(err, lending.ErrArithmetic):
		return http.StatusInternalServerError
	}
	if msg := err.Error(); strings.HasPrefix(msg, "decode request") ||
		strings.Contains(msg, "invalid address") ||
		strings.Contains(msg, "invalid amount") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
