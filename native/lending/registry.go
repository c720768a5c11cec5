package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "github.com/Lagxy/Lending-DApps/native/common"
)

func (e *Engine) requireAdmin(caller common.Address) error {
	if e.auth == nil || !e.auth.IsAdmin(caller) {
		return ErrUnauthorized
	}
	return nil
}

// AddToken admits a collateral token, recording its feed and the decimal
// count reported by the token metadata collaborator.
func (e *Engine) AddToken(caller, token, feed common.Address) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}

	if token == (common.Address{}) || feed == (common.Address{}) {
		return ErrZeroAddress
	}
	existing, err := e.state.GetTokenInfo(token)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrTokenAlreadySupported
	}
	tokens, err := e.state.TokenList()
	if err != nil {
		return err
	}
	if len(tokens) >= e.params.MaxSupportedTokens {
		return ErrMaxTokensReached
	}
	tok, err := e.connector.Token(token)
	if err != nil {
		return err
	}
	decimals, err := tok.Decimals()
	if err != nil {
		return err
	}

	if err := e.state.PutTokenInfo(token, &TokenInfo{Feed: feed, Decimals: decimals}); err != nil {
		return err
	}
	if err := e.state.PutTokenList(append(tokens, token)); err != nil {
		return err
	}
	e.emit(newTokenAddedEvent(caller, token, feed, decimals))
	return nil
}

// RemoveToken drops a token from the registry. The supported list is
// compacted by swapping the last entry into the removed slot, so ordering of
// the remaining tokens is not preserved.
func (e *Engine) RemoveToken(caller, token common.Address) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}

	if _, err := e.tokenInfo(token); err != nil {
		return err
	}
	tokens, err := e.state.TokenList()
	if err != nil {
		return err
	}
	for i, addr := range tokens {
		if addr == token {
			tokens[i] = tokens[len(tokens)-1]
			tokens = tokens[:len(tokens)-1]
			break
		}
	}
	if err := e.state.DeleteTokenInfo(token); err != nil {
		return err
	}
	if err := e.state.PutTokenList(tokens); err != nil {
		return err
	}
	e.emit(newTokenRemovedEvent(caller, token))
	return nil
}

// UpdateFeed repoints a supported token at a new price feed.
func (e *Engine) UpdateFeed(caller, token, feed common.Address) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}

	if feed == (common.Address{}) {
		return ErrZeroAddress
	}
	info, err := e.tokenInfo(token)
	if err != nil {
		return err
	}
	info.Feed = feed
	if err := e.state.PutTokenInfo(token, info); err != nil {
		return err
	}
	e.emit(newFeedUpdatedEvent(caller, token, feed))
	return nil
}

// SetLoanParams adjusts the fixed interest rate and loan duration.
func (e *Engine) SetLoanParams(caller common.Address, rateBps uint64, durationSeconds int64) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}

	if rateBps > 10_000 {
		return ErrAmountExceedsLimit
	}
	if durationSeconds <= 0 {
		return ErrInvalidAmount
	}
	e.params.InterestRateBps = rateBps
	e.params.LoanDurationSeconds = durationSeconds
	e.emit(newLoanParamsEvent(caller, rateBps, durationSeconds))
	return nil
}

// SupportedTokens lists the registry contents.
func (e *Engine) SupportedTokens() ([]common.Address, error) {
	if e == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	tokens, err := e.state.TokenList()
	if err != nil {
		return nil, err
	}
	return append([]common.Address(nil), tokens...), nil
}

// DepositLiquidity pulls debt tokens from the admin into the module treasury
// so they can be lent out.
func (e *Engine) DepositLiquidity(caller common.Address, amount *big.Int) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	debtTok, err := e.connector.Token(e.debtToken)
	if err != nil {
		return err
	}
	if err := debtTok.TransferFrom(caller, e.moduleAddress, amount); err != nil {
		return err
	}
	e.emit(newLiquidityEvent(caller, amount, true))
	return nil
}

// WithdrawLiquidity releases idle debt tokens from the module treasury back
// to the admin.
func (e *Engine) WithdrawLiquidity(caller common.Address, amount *big.Int) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	debtTok, err := e.connector.Token(e.debtToken)
	if err != nil {
		return err
	}
	balance, err := debtTok.BalanceOf(e.moduleAddress)
	if err != nil {
		return err
	}
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	if err := debtTok.Transfer(caller, amount); err != nil {
		return err
	}
	e.emit(newLiquidityEvent(caller, amount, false))
	return nil
}
