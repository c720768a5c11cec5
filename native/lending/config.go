package lending

// Params groups the governance controlled constants the engine is constructed
// with. All ratios are expressed in basis points for deterministic accounting;
// durations are seconds.
type Params struct {
	// MaxLTVBps specifies the maximum loan-to-value ratio permitted.
	MaxLTVBps uint64 `toml:"MaxLTVBps"`
	// LiquidationPenaltyBps is the surcharge applied to outstanding debt
	// when computing collateral seizure.
	LiquidationPenaltyBps uint64 `toml:"LiquidationPenaltyBps"`
	// HealthFactorThresholdBps is the health factor below which a loan
	// becomes liquidatable. 10_000 means exactly break-even.
	HealthFactorThresholdBps uint64 `toml:"HealthFactorThresholdBps"`
	// InterestRateBps is the fixed interest charged at loan origination.
	InterestRateBps uint64 `toml:"InterestRateBps"`
	// LoanDurationSeconds is how long a borrower has before the loan is
	// overdue and liquidatable regardless of health.
	LoanDurationSeconds int64 `toml:"LoanDurationSeconds"`
	// PriceStaleSeconds bounds the tolerated age of an oracle quote.
	PriceStaleSeconds int64 `toml:"PriceStaleSeconds"`
	// MaxSupportedTokens caps the registry size.
	MaxSupportedTokens int `toml:"MaxSupportedTokens"`
	// SwapDeadlineSeconds is the grace window granted to the swap venue
	// during liquidation conversion.
	SwapDeadlineSeconds int64 `toml:"SwapDeadlineSeconds"`
}

// DefaultParams returns the parameter set used when no configuration is
// supplied.
func DefaultParams() Params {
	return Params{
		MaxLTVBps:                7_000,
		LiquidationPenaltyBps:    500,
		HealthFactorThresholdBps: 10_000,
		InterestRateBps:          300,
		LoanDurationSeconds:      30 * 24 * 60 * 60,
		PriceStaleSeconds:        60 * 60,
		MaxSupportedTokens:       32,
		SwapDeadlineSeconds:      5 * 60,
	}
}

// Validate rejects parameter combinations the engine cannot operate with.
func (p Params) Validate() error {
	if p.MaxLTVBps == 0 || p.MaxLTVBps > 10_000 {
		return ErrAmountExceedsLimit
	}
	if p.InterestRateBps > 10_000 {
		return ErrAmountExceedsLimit
	}
	if p.LoanDurationSeconds <= 0 || p.PriceStaleSeconds <= 0 {
		return ErrInvalidAmount
	}
	if p.MaxSupportedTokens <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
