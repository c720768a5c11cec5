package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "github.com/Lagxy/Lending-DApps/native/common"
)

// LiquidationResult reports what a liquidation recovered.
type LiquidationResult struct {
	SeizedCollateral *big.Int
	RecoveredDebt    *big.Int
	SwapOutput       *big.Int
	LoanCleared      bool
}

// Liquidate seizes collateral from an unhealthy or overdue loan, converts it
// to the debt asset through the swap venue and settles the borrower's debt.
//
// Seizure targets outstanding debt plus the penalty surcharge, capped at the
// borrower's deposited balance of the chosen token. A capped seizure credits
// Repaid with the pro-rata share of outstanding debt it covers and the
// protocol absorbs the shortfall; the loan record survives so later
// liquidations against other collateral can finish the job.
//
// minOut is a required slippage floor for the swap; the venue deadline is the
// configured grace window from now.
func (e *Engine) Liquidate(liquidator, user, token common.Address, minOut *big.Int) (*LiquidationResult, error) {
	if e == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.swap == nil {
		return nil, ErrNilSwapVenue
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}

	if minOut == nil || minOut.Sign() <= 0 {
		return nil, ErrSlippageFloorRequired
	}
	info, err := e.tokenInfo(token)
	if err != nil {
		return nil, err
	}

	loan, err := e.state.GetLoan(user)
	if err != nil {
		return nil, err
	}
	outstanding := loan.Outstanding()
	if outstanding.Sign() == 0 {
		return nil, ErrNotLiquidatable
	}
	loan.ensureDefaults()

	now := e.now()
	overdue := loan.DueDate <= now
	if !overdue {
		hf, err := e.healthFactorLocked(user, loan, nil, nil)
		if err != nil {
			return nil, err
		}
		if hf.Cmp(new(big.Int).SetUint64(e.params.HealthFactorThresholdBps)) >= 0 {
			return nil, ErrNotLiquidatable
		}
	}

	// Penalty-adjusted target in debt token terms, then converted into
	// units of the seized collateral token.
	seizeTargetDebt, err := bpsShare(outstanding, 10_000+e.params.LiquidationPenaltyBps)
	if err != nil {
		return nil, err
	}
	debtFeed, err := e.connector.Feed(e.debtFeed)
	if err != nil {
		return nil, err
	}
	collateralFeed, err := e.connector.Feed(info.Feed)
	if err != nil {
		return nil, err
	}
	ratio, err := e.normalizer.Ratio(debtFeed, collateralFeed, e.params.PriceStaleSeconds)
	if err != nil {
		return nil, err
	}
	debtDecimals, err := e.debtDecimals()
	if err != nil {
		return nil, err
	}
	target18, err := TotalValue(ratio, seizeTargetDebt, debtDecimals)
	if err != nil {
		return nil, err
	}
	seizeTarget, err := FromScale18(target18, info.Decimals)
	if err != nil {
		return nil, err
	}

	balance, err := e.collateralOf(user, token)
	if err != nil {
		return nil, err
	}
	seized := new(big.Int).Set(seizeTarget)
	covered := true
	if seized.Cmp(balance) > 0 {
		seized = new(big.Int).Set(balance)
		covered = false
	}
	if seized.Sign() == 0 {
		return nil, ErrInsufficientCollateral
	}

	recovered := new(big.Int).Set(outstanding)
	if !covered {
		// Pro-rata share of outstanding debt covered by the capped
		// seizure; the shortfall stays on the loan.
		recovered, err = mulDiv(outstanding, seized, seizeTarget)
		if err != nil {
			return nil, err
		}
	}

	remaining, err := checkedSub(balance, seized)
	if err != nil {
		return nil, err
	}

	deadline := now + e.params.SwapDeadlineSeconds
	path := []common.Address{token, e.debtToken}
	out, err := e.swap.SwapExactIn(seized, minOut, path, e.moduleAddress, deadline)
	if err != nil {
		return nil, err
	}

	// The loan record commits before the collateral debit so a storage
	// failure in between never leaves the debit standing on the old debt.
	cleared := covered
	if covered {
		if err := e.state.DeleteLoan(user); err != nil {
			return nil, err
		}
	} else {
		loan.Repaid = new(big.Int).Add(loan.Repaid, recovered)
		if loan.Repaid.Cmp(loan.Debt) >= 0 {
			if err := e.state.DeleteLoan(user); err != nil {
				return nil, err
			}
			cleared = true
		} else if err := e.state.PutLoan(user, loan); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutCollateral(user, token, remaining); err != nil {
		return nil, err
	}

	result := &LiquidationResult{
		SeizedCollateral: seized,
		RecoveredDebt:    recovered,
		SwapOutput:       out,
		LoanCleared:      cleared,
	}
	e.emit(newLiquidationEvent(liquidator, user, token, result))
	return result, nil
}
