package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "github.com/Lagxy/Lending-DApps/native/common"
)

// StartRaising opens a crowdfunding round for the borrower. Only one raising
// may exist per borrower; an earlier round must be closed, settled and reset
// before a new one starts.
func (e *Engine) StartRaising(borrower, token common.Address, target *big.Int, rateBps uint16) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	if borrower == (common.Address{}) {
		return ErrZeroAddress
	}
	if target == nil || target.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := checkAmount(target); err != nil {
		return err
	}
	if rateBps > 10_000 {
		return ErrAmountExceedsLimit
	}
	if _, err := e.tokenInfo(token); err != nil {
		return err
	}
	existing, err := e.state.GetRaising(borrower)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrRaisingAlreadyOpen
	}

	raising := &CollateralRaising{
		Borrower:        borrower,
		Open:            true,
		CollateralToken: token,
		InterestRateBPS: rateBps,
		Target:          new(big.Int).Set(target),
		Raised:          big.NewInt(0),
		Positions:       make(map[common.Address]*FunderPosition),
	}
	if err := e.state.PutRaising(borrower, raising); err != nil {
		return err
	}
	e.emit(newRaisingStartedEvent(borrower, token, target, rateBps))
	return nil
}

// Fund contributes collateral to an open raising. A funder joins the ordered
// funder list on first contribution; contributions can never push Raised past
// Target.
func (e *Engine) Fund(borrower, funder common.Address, amount *big.Int) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if funder == (common.Address{}) {
		return ErrZeroAddress
	}
	raising, err := e.state.GetRaising(borrower)
	if err != nil {
		return err
	}
	if raising == nil || !raising.Open {
		return ErrRaisingNotOpen
	}
	raising.ensureDefaults()
	if raising.Raised.Cmp(raising.Target) == 0 {
		return ErrTargetReached
	}
	headroom := new(big.Int).Sub(raising.Target, raising.Raised)
	if amount.Cmp(headroom) > 0 {
		return ErrAmountExceedsLimit
	}

	tok, err := e.connector.Token(raising.CollateralToken)
	if err != nil {
		return err
	}
	if err := tok.TransferFrom(funder, e.moduleAddress, amount); err != nil {
		return err
	}

	pos := raising.position(funder)
	if pos.Amount.Sign() == 0 && pos.Reward.Sign() == 0 {
		if _, ok := raising.Positions[funder]; !ok {
			raising.Funders = append(raising.Funders, funder)
		}
	}
	pos.Amount = new(big.Int).Add(pos.Amount, amount)
	raising.Positions[funder] = pos
	raising.Raised = new(big.Int).Add(raising.Raised, amount)

	if err := e.state.PutRaising(borrower, raising); err != nil {
		return err
	}
	e.emit(newRaisingFundedEvent(borrower, funder, amount, raising.Raised))
	return nil
}

// CloseRaising freezes the round. The borrower may close at any fill level;
// anyone else only once the target is met. The raised amount is credited to
// the borrower's collateral ledger and every funder's interest reward is
// computed from a single ratio read so all funders settle at the same price.
func (e *Engine) CloseRaising(caller, borrower common.Address) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	raising, err := e.state.GetRaising(borrower)
	if err != nil {
		return err
	}
	if raising == nil || !raising.Open {
		return ErrRaisingNotOpen
	}
	raising.ensureDefaults()
	if caller != borrower && raising.Raised.Cmp(raising.Target) < 0 {
		return ErrTargetNotMet
	}

	info, err := e.tokenInfo(raising.CollateralToken)
	if err != nil {
		return err
	}
	collateralFeed, err := e.connector.Feed(info.Feed)
	if err != nil {
		return err
	}
	debtFeed, err := e.connector.Feed(e.debtFeed)
	if err != nil {
		return err
	}
	pricePerUnit, err := e.normalizer.Ratio(collateralFeed, debtFeed, e.params.PriceStaleSeconds)
	if err != nil {
		return err
	}
	debtDecimals, err := e.debtDecimals()
	if err != nil {
		return err
	}

	for _, funder := range raising.Funders {
		pos := raising.position(funder)
		value18, err := TotalValue(pricePerUnit, pos.Amount, info.Decimals)
		if err != nil {
			return err
		}
		value, err := FromScale18(value18, debtDecimals)
		if err != nil {
			return err
		}
		reward, err := bpsShare(value, uint64(raising.InterestRateBPS))
		if err != nil {
			return err
		}
		pos.Reward = reward
		raising.Positions[funder] = pos
	}

	balance, err := e.collateralOf(borrower, raising.CollateralToken)
	if err != nil {
		return err
	}
	credited, err := checkedAdd(balance, raising.Raised)
	if err != nil {
		return err
	}

	// The closed raising record commits before the collateral credit so a
	// storage failure in between never leaves the credit against an open
	// round.
	raising.Open = false
	if err := e.state.PutRaising(borrower, raising); err != nil {
		return err
	}
	if err := e.state.PutCollateral(borrower, raising.CollateralToken, credited); err != nil {
		return err
	}
	e.emit(newRaisingClosedEvent(caller, borrower, raising.Raised))
	return nil
}

// RepayFunder settles a funder's principal (collateral token) and interest
// reward (debt token) after the raising has closed. Either component may be
// zero, but not both.
func (e *Engine) RepayFunder(borrower, funder common.Address, collateralAmount, interestAmount *big.Int) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	if collateralAmount == nil {
		collateralAmount = big.NewInt(0)
	}
	if interestAmount == nil {
		interestAmount = big.NewInt(0)
	}
	if collateralAmount.Sign() < 0 || interestAmount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if collateralAmount.Sign() == 0 && interestAmount.Sign() == 0 {
		return ErrInvalidAmount
	}

	raising, err := e.state.GetRaising(borrower)
	if err != nil {
		return err
	}
	if raising == nil {
		return ErrRaisingNotFound
	}
	if raising.Open {
		return ErrRaisingStillOpen
	}
	raising.ensureDefaults()
	pos := raising.position(funder)
	if collateralAmount.Cmp(pos.Amount) > 0 {
		return ErrAmountExceedsLimit
	}
	if interestAmount.Cmp(pos.Reward) > 0 {
		return ErrAmountExceedsLimit
	}

	// Both legs must be funded before either transfer runs; a leg must never
	// leave the treasury while the ledger still records it as owed.
	var collateralTok, debtTok Token
	if collateralAmount.Sign() > 0 {
		tok, err := e.connector.Token(raising.CollateralToken)
		if err != nil {
			return err
		}
		collateralTok = tok
	}
	if interestAmount.Sign() > 0 {
		tok, err := e.connector.Token(e.debtToken)
		if err != nil {
			return err
		}
		debtTok = tok
	}
	if collateralTok != nil {
		required := collateralAmount
		if debtTok != nil && raising.CollateralToken == e.debtToken {
			required = new(big.Int).Add(collateralAmount, interestAmount)
		}
		held, err := collateralTok.BalanceOf(e.moduleAddress)
		if err != nil {
			return err
		}
		if held == nil || held.Cmp(required) < 0 {
			return ErrInsufficientCollateral
		}
	}
	if debtTok != nil && (collateralTok == nil || raising.CollateralToken != e.debtToken) {
		held, err := debtTok.BalanceOf(e.moduleAddress)
		if err != nil {
			return err
		}
		if held == nil || held.Cmp(interestAmount) < 0 {
			return ErrInsufficientLiquidity
		}
	}
	if collateralTok != nil {
		if err := collateralTok.Transfer(funder, collateralAmount); err != nil {
			return err
		}
		pos.Amount = new(big.Int).Sub(pos.Amount, collateralAmount)
	}
	if debtTok != nil {
		if err := debtTok.Transfer(funder, interestAmount); err != nil {
			return err
		}
		pos.Reward = new(big.Int).Sub(pos.Reward, interestAmount)
	}
	raising.Positions[funder] = pos

	if err := e.state.PutRaising(borrower, raising); err != nil {
		return err
	}
	e.emit(newFunderRepaidEvent(borrower, funder, collateralAmount, interestAmount))
	return nil
}

// ResetRaising deletes a fully settled raising so the borrower can start a
// new round.
func (e *Engine) ResetRaising(borrower common.Address) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	raising, err := e.state.GetRaising(borrower)
	if err != nil {
		return err
	}
	if raising == nil {
		return ErrRaisingNotFound
	}
	raising.ensureDefaults()
	for _, funder := range raising.Funders {
		pos := raising.position(funder)
		if pos.Amount.Sign() > 0 {
			return ErrUnsettledCollateral
		}
		if pos.Reward.Sign() > 0 {
			return ErrUnsettledInterest
		}
	}
	if err := e.state.DeleteRaising(borrower); err != nil {
		return err
	}
	e.emit(newRaisingResetEvent(borrower))
	return nil
}

// RaisingOf returns a copy of the borrower's raising record, or nil when none
// exists.
func (e *Engine) RaisingOf(borrower common.Address) (*CollateralRaising, error) {
	if e == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	raising, err := e.state.GetRaising(borrower)
	if err != nil {
		return nil, err
	}
	return raising.Clone(), nil
}
