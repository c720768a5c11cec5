package lending

import "errors"

var (
	// Wiring and input failures.
	ErrNilState      = errors.New("lending: state not configured")
	ErrNilConnector  = errors.New("lending: token connector not configured")
	ErrNilSwapVenue  = errors.New("lending: swap venue not configured")
	ErrInvalidAmount = errors.New("lending: amount must be positive")
	ErrZeroAddress   = errors.New("lending: zero address")
	ErrUnauthorized  = errors.New("lending: caller is not an admin")

	// Token registry failures.
	ErrTokenNotSupported     = errors.New("lending: token not supported")
	ErrTokenAlreadySupported = errors.New("lending: token already supported")
	ErrMaxTokensReached      = errors.New("lending: supported token limit reached")

	// Oracle failures.
	ErrInvalidPrice = errors.New("lending: oracle reported a non-positive price")
	ErrStalePrice   = errors.New("lending: oracle quote is stale")

	// Arithmetic failures. Every product is bounded to 256 bits before
	// division; breaching the bound or dividing by zero aborts the
	// operation instead of wrapping.
	ErrArithmetic = errors.New("lending: arithmetic overflow or division by zero")

	// Position and policy failures.
	ErrInsufficientCollateral = errors.New("lending: insufficient collateral balance")
	ErrInsufficientLiquidity  = errors.New("lending: insufficient debt token liquidity")
	ErrOutstandingDebt        = errors.New("lending: user has outstanding debt")
	ErrAmountExceedsLimit     = errors.New("lending: amount exceeds allowed limit")
	ErrUnhealthyPosition      = errors.New("lending: position below health threshold")
	ErrNoActiveLoan           = errors.New("lending: no active loan")
	ErrNotLiquidatable        = errors.New("lending: loan not eligible for liquidation")
	ErrSlippageFloorRequired  = errors.New("lending: liquidation requires a non-zero minimum swap output")

	// Collateral raising failures.
	ErrRaisingAlreadyOpen  = errors.New("lending: a collateral raising already exists for borrower")
	ErrRaisingNotOpen      = errors.New("lending: collateral raising is not open")
	ErrRaisingStillOpen    = errors.New("lending: collateral raising has not been closed")
	ErrRaisingNotFound     = errors.New("lending: no collateral raising for borrower")
	ErrTargetReached       = errors.New("lending: raising target already reached")
	ErrTargetNotMet        = errors.New("lending: raising target not met")
	ErrUnsettledCollateral = errors.New("lending: funders still hold unsettled collateral")
	ErrUnsettledInterest   = errors.New("lending: funders still hold unsettled interest")
)
