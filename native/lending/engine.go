package lending

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "github.com/Lagxy/Lending-DApps/native/common"
)

const moduleName = "lending"

// engineState is the persistence contract the engine mutates through. Lookups
// return nil (not an error) when a record is absent so callers can distinguish
// "no position" from storage failures.
type engineState interface {
	GetTokenInfo(token common.Address) (*TokenInfo, error)
	PutTokenInfo(token common.Address, info *TokenInfo) error
	DeleteTokenInfo(token common.Address) error
	TokenList() ([]common.Address, error)
	PutTokenList(tokens []common.Address) error

	GetCollateral(user, token common.Address) (*big.Int, error)
	PutCollateral(user, token common.Address, amount *big.Int) error

	GetLoan(user common.Address) (*Loan, error)
	PutLoan(user common.Address, loan *Loan) error
	DeleteLoan(user common.Address) error

	GetRaising(borrower common.Address) (*CollateralRaising, error)
	PutRaising(borrower common.Address, raising *CollateralRaising) error
	DeleteRaising(borrower common.Address) error
}

// Engine orchestrates the collateral, loan and raising ledgers. Every public
// mutating operation takes the engine mutex for its full duration and only
// persists state after all validation and external calls have succeeded, so a
// failure anywhere leaves no partial state behind.
type Engine struct {
	mu sync.Mutex

	state      engineState
	connector  Connector
	swap       SwapVenue
	auth       Authorizer
	emitter    Emitter
	pauses     nativecommon.PauseView
	normalizer *Normalizer

	moduleAddress common.Address
	debtToken     common.Address
	debtFeed      common.Address
	params        Params

	// borrowQuota throttles loan originations per address and epoch. It
	// replaces the source system's transaction-origin flash-loan guard,
	// which has no meaning outside an atomic multi-call environment.
	borrowQuota nativecommon.Quota
	quotaUsage  map[common.Address]nativecommon.QuotaNow

	now func() int64
}

// NewEngine constructs an engine bound to the module treasury address and the
// debt asset it lends out.
func NewEngine(moduleAddr, debtToken, debtFeed common.Address, params Params) *Engine {
	e := &Engine{
		moduleAddress: moduleAddr,
		debtToken:     debtToken,
		debtFeed:      debtFeed,
		params:        params,
		now:           func() int64 { return time.Now().Unix() },
	}
	e.normalizer = &Normalizer{Now: func() int64 { return e.now() }}
	return e
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
}

// SetConnector wires the resolver for token and feed collaborators.
func (e *Engine) SetConnector(c Connector) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connector = c
}

// SetSwapVenue wires the venue used for liquidation conversion.
func (e *Engine) SetSwapVenue(v SwapVenue) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.swap = v
}

// SetAuthorizer wires the admin capability check.
func (e *Engine) SetAuthorizer(a Authorizer) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auth = a
}

// SetEmitter wires the audit event sink. A nil emitter drops events.
func (e *Engine) SetEmitter(em Emitter) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitter = em
}

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses = p
}

// SetBorrowQuota configures the per-address loan origination throttle.
func (e *Engine) SetBorrowQuota(q nativecommon.Quota) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.borrowQuota = q
	if e.quotaUsage == nil {
		e.quotaUsage = make(map[common.Address]nativecommon.QuotaNow)
	}
}

// SetClock overrides the time source. Tests use this to pin due-date and
// staleness arithmetic.
func (e *Engine) SetClock(now func() int64) {
	if e == nil || now == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Params returns the currently configured engine parameters.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// ready reports whether the mandatory collaborators are wired. Callers must
// hold e.mu.
func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.connector == nil {
		return ErrNilConnector
	}
	return nil
}

func (e *Engine) emit(ev Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

// Deposit pulls collateral from the user into the module treasury and credits
// their ledger balance.
func (e *Engine) Deposit(user, token common.Address, amount *big.Int) error {
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
	if user == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if _, err := e.tokenInfo(token); err != nil {
		return err
	}

	balance, err := e.collateralOf(user, token)
	if err != nil {
		return err
	}
	updated, err := checkedAdd(balance, amount)
	if err != nil {
		return err
	}

	tok, err := e.connector.Token(token)
	if err != nil {
		return err
	}
	if err := tok.TransferFrom(user, e.moduleAddress, amount); err != nil {
		return err
	}

	if err := e.state.PutCollateral(user, token, updated); err != nil {
		return err
	}
	e.emit(newCollateralDepositedEvent(user, token, amount, updated))
	return nil
}

// Withdraw releases collateral back to the user. Users with outstanding debt
// cannot withdraw; the remaining balance is additionally health-checked before
// any state or token movement so a rejected withdrawal leaves nothing behind.
func (e *Engine) Withdraw(user, token common.Address, amount *big.Int) error {
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
	balance, err := e.collateralOf(user, token)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}

	loan, err := e.state.GetLoan(user)
	if err != nil {
		return err
	}
	if loan.Outstanding().Sign() > 0 {
		return ErrOutstandingDebt
	}

	remaining := new(big.Int).Sub(balance, amount)
	healthy, err := e.remainsHealthy(user, loan, token, remaining)
	if err != nil {
		return err
	}
	if !healthy {
		return ErrUnhealthyPosition
	}

	tok, err := e.connector.Token(token)
	if err != nil {
		return err
	}
	if err := tok.Transfer(user, amount); err != nil {
		return err
	}

	if err := e.state.PutCollateral(user, token, remaining); err != nil {
		return err
	}
	e.emit(newCollateralWithdrawnEvent(user, token, amount, remaining))
	return nil
}

// TakeLoan opens the user's single active loan. Debt is principal plus fixed
// interest; the due date starts the overdue clock for liquidation.
func (e *Engine) TakeLoan(user common.Address, amount *big.Int) error {
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
	if err := checkAmount(amount); err != nil {
		return err
	}

	existing, err := e.state.GetLoan(user)
	if err != nil {
		return err
	}
	if existing != nil && existing.Outstanding().Sign() > 0 {
		return ErrOutstandingDebt
	}

	debtTok, err := e.connector.Token(e.debtToken)
	if err != nil {
		return err
	}
	liquidity, err := debtTok.BalanceOf(e.moduleAddress)
	if err != nil {
		return err
	}
	if liquidity == nil || liquidity.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}

	maxLoan, err := e.maxLoanLocked(user)
	if err != nil {
		return err
	}
	if amount.Cmp(maxLoan) > 0 {
		return ErrAmountExceedsLimit
	}

	if e.borrowQuota.Enabled() {
		epoch := uint64(e.now()) / uint64(e.borrowQuota.EpochSeconds)
		usage, err := nativecommon.CheckQuota(e.borrowQuota, epoch, e.quotaUsage[user], 1)
		if err != nil {
			return err
		}
		e.quotaUsage[user] = usage
	}

	interest, err := bpsShare(amount, e.params.InterestRateBps)
	if err != nil {
		return err
	}
	debt, err := checkedAdd(amount, interest)
	if err != nil {
		return err
	}
	due := e.now() + e.params.LoanDurationSeconds

	if err := debtTok.Transfer(user, amount); err != nil {
		return err
	}

	loan := &Loan{User: user, Debt: debt, Repaid: big.NewInt(0), DueDate: due}
	if err := e.state.PutLoan(user, loan); err != nil {
		return err
	}
	e.emit(newLoanCreatedEvent(user, amount, debt, due))
	return nil
}

// RepayLoan pulls debt tokens from the user and advances Repaid. The loan
// record is deleted once fully repaid.
func (e *Engine) RepayLoan(user common.Address, amount *big.Int) error {
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
	loan, err := e.state.GetLoan(user)
	if err != nil {
		return err
	}
	if loan == nil || loan.Outstanding().Sign() == 0 {
		return ErrNoActiveLoan
	}
	loan.ensureDefaults()
	if amount.Cmp(loan.Outstanding()) > 0 {
		return ErrAmountExceedsLimit
	}

	debtTok, err := e.connector.Token(e.debtToken)
	if err != nil {
		return err
	}
	if err := debtTok.TransferFrom(user, e.moduleAddress, amount); err != nil {
		return err
	}

	repaid := new(big.Int).Add(loan.Repaid, amount)
	if repaid.Cmp(loan.Debt) == 0 {
		if err := e.state.DeleteLoan(user); err != nil {
			return err
		}
		e.emit(newLoanRepaidEvent(user, amount, big.NewInt(0), true))
		return nil
	}
	loan.Repaid = repaid
	if err := e.state.PutLoan(user, loan); err != nil {
		return err
	}
	e.emit(newLoanRepaidEvent(user, amount, loan.Outstanding(), false))
	return nil
}

// TotalCollateralValue values every deposited token of the user in debt-token
// native units using fresh oracle ratios.
func (e *Engine) TotalCollateralValue(user common.Address) (*big.Int, error) {
	if e == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.totalCollateralValueLocked(user, nil, nil)
}

// MaxLoan reports the borrowable limit for the user's current collateral.
func (e *Engine) MaxLoan(user common.Address) (*big.Int, error) {
	if e == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.maxLoanLocked(user)
}

// HealthFactorBPS reports the position safety ratio in basis points; 10_000 is
// exactly break-even. Debt-free positions return the maximum sentinel.
func (e *Engine) HealthFactorBPS(user common.Address) (*big.Int, error) {
	if e == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}

	loan, err := e.state.GetLoan(user)
	if err != nil {
		return nil, err
	}
	return e.healthFactorLocked(user, loan, nil, nil)
}

// CollateralOf returns the user's deposited balance for a token.
func (e *Engine) CollateralOf(user, token common.Address) (*big.Int, error) {
	if e == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.collateralOf(user, token)
}

// LoanOf returns a copy of the user's active loan, or nil when none exists.
func (e *Engine) LoanOf(user common.Address) (*Loan, error) {
	if e == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, ErrNilState
	}
	loan, err := e.state.GetLoan(user)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

func (e *Engine) collateralOf(user, token common.Address) (*big.Int, error) {
	balance, err := e.state.GetCollateral(user, token)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

func (e *Engine) tokenInfo(token common.Address) (*TokenInfo, error) {
	info, err := e.state.GetTokenInfo(token)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrTokenNotSupported
	}
	return info, nil
}

func (e *Engine) debtDecimals() (uint8, error) {
	tok, err := e.connector.Token(e.debtToken)
	if err != nil {
		return 0, err
	}
	return tok.Decimals()
}

// totalCollateralValueLocked iterates every supported token, converts each
// nonzero balance into debt-token terms and sums in debt-native decimals.
// When override is non-nil the balance of *override is replaced by
// overrideBalance, which lets withdrawal validate the post-withdrawal state
// without provisionally committing it.
func (e *Engine) totalCollateralValueLocked(user common.Address, override *common.Address, overrideBalance *big.Int) (*big.Int, error) {
	tokens, err := e.state.TokenList()
	if err != nil {
		return nil, err
	}
	debtFeed, err := e.connector.Feed(e.debtFeed)
	if err != nil {
		return nil, err
	}
	debtDecimals, err := e.debtDecimals()
	if err != nil {
		return nil, err
	}

	total := big.NewInt(0)
	for _, token := range tokens {
		balance, err := e.collateralOf(user, token)
		if err != nil {
			return nil, err
		}
		if override != nil && token == *override {
			balance = new(big.Int).Set(overrideBalance)
		}
		if balance.Sign() == 0 {
			continue
		}
		info, err := e.tokenInfo(token)
		if err != nil {
			return nil, err
		}
		feed, err := e.connector.Feed(info.Feed)
		if err != nil {
			return nil, err
		}
		ratio, err := e.normalizer.Ratio(feed, debtFeed, e.params.PriceStaleSeconds)
		if err != nil {
			return nil, err
		}
		value18, err := TotalValue(ratio, balance, info.Decimals)
		if err != nil {
			return nil, err
		}
		value, err := FromScale18(value18, debtDecimals)
		if err != nil {
			return nil, err
		}
		total, err = checkedAdd(total, value)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}

func (e *Engine) maxLoanLocked(user common.Address) (*big.Int, error) {
	value, err := e.totalCollateralValueLocked(user, nil, nil)
	if err != nil {
		return nil, err
	}
	return bpsShare(value, e.params.MaxLTVBps)
}

// healthFactorLocked computes collateralValue * MaxLTVBps / outstandingDebt.
// The threshold multiplier stays out of the numerator: 10_000 means the debt
// exactly matches the borrowable value of the collateral.
func (e *Engine) healthFactorLocked(user common.Address, loan *Loan, override *common.Address, overrideBalance *big.Int) (*big.Int, error) {
	outstanding := loan.Outstanding()
	if outstanding.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor), nil
	}
	value, err := e.totalCollateralValueLocked(user, override, overrideBalance)
	if err != nil {
		return nil, err
	}
	borrowable := new(big.Int).Mul(value, new(big.Int).SetUint64(e.params.MaxLTVBps))
	return new(big.Int).Quo(borrowable, outstanding), nil
}

// remainsHealthy checks the health factor as if the user's balance of token
// were already reduced to remaining.
func (e *Engine) remainsHealthy(user common.Address, loan *Loan, token common.Address, remaining *big.Int) (bool, error) {
	if loan.Outstanding().Sign() == 0 {
		return true, nil
	}
	hf, err := e.healthFactorLocked(user, loan, &token, remaining)
	if err != nil {
		return false, err
	}
	threshold := new(big.Int).SetUint64(e.params.HealthFactorThresholdBps)
	return hf.Cmp(threshold) >= 0, nil
}
