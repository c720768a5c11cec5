package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenInfo describes a collateral token admitted by the registry. Decimals
// are captured once at registration time from the token metadata collaborator
// so valuation never needs a live metadata call.
type TokenInfo struct {
	Feed     common.Address
	Decimals uint8
}

// Clone returns a copy of the token info.
func (t *TokenInfo) Clone() *TokenInfo {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// Loan is the single active borrowing position allowed per user. Debt is the
// principal plus the fixed interest charged at origination; Repaid grows
// monotonically towards Debt and the record is deleted once they match.
type Loan struct {
	User    common.Address
	Debt    *big.Int
	Repaid  *big.Int
	DueDate int64
}

// Clone returns a deep copy of the loan so callers can safely mutate the copy
// without affecting the stored instance.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := &Loan{User: l.User, DueDate: l.DueDate}
	if l.Debt != nil {
		clone.Debt = new(big.Int).Set(l.Debt)
	}
	if l.Repaid != nil {
		clone.Repaid = new(big.Int).Set(l.Repaid)
	}
	return clone
}

// Outstanding reports the debt still owed.
func (l *Loan) Outstanding() *big.Int {
	if l == nil || l.Debt == nil {
		return big.NewInt(0)
	}
	repaid := l.Repaid
	if repaid == nil {
		repaid = big.NewInt(0)
	}
	out := new(big.Int).Sub(l.Debt, repaid)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

func (l *Loan) ensureDefaults() {
	if l.Debt == nil {
		l.Debt = big.NewInt(0)
	}
	if l.Repaid == nil {
		l.Repaid = big.NewInt(0)
	}
}

// FunderPosition tracks what a single funder is still owed from a raising:
// Amount in collateral token units, Reward in debt token units.
type FunderPosition struct {
	Amount *big.Int
	Reward *big.Int
}

// Clone returns a deep copy of the funder position.
func (p *FunderPosition) Clone() *FunderPosition {
	if p == nil {
		return nil
	}
	clone := &FunderPosition{}
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	}
	if p.Reward != nil {
		clone.Reward = new(big.Int).Set(p.Reward)
	}
	return clone
}

func (p *FunderPosition) ensureDefaults() {
	if p.Amount == nil {
		p.Amount = big.NewInt(0)
	}
	if p.Reward == nil {
		p.Reward = big.NewInt(0)
	}
}

// CollateralRaising is the per-borrower crowdfunding round. Funders keeps
// first-contribution order so reward computation and settlement walk the list
// deterministically.
type CollateralRaising struct {
	Borrower        common.Address
	Open            bool
	CollateralToken common.Address
	InterestRateBPS uint16
	Target          *big.Int
	Raised          *big.Int
	Funders         []common.Address
	Positions       map[common.Address]*FunderPosition
}

// Clone returns a deep copy of the raising record.
func (r *CollateralRaising) Clone() *CollateralRaising {
	if r == nil {
		return nil
	}
	clone := &CollateralRaising{
		Borrower:        r.Borrower,
		Open:            r.Open,
		CollateralToken: r.CollateralToken,
		InterestRateBPS: r.InterestRateBPS,
	}
	if r.Target != nil {
		clone.Target = new(big.Int).Set(r.Target)
	}
	if r.Raised != nil {
		clone.Raised = new(big.Int).Set(r.Raised)
	}
	if r.Funders != nil {
		clone.Funders = append([]common.Address(nil), r.Funders...)
	}
	if r.Positions != nil {
		clone.Positions = make(map[common.Address]*FunderPosition, len(r.Positions))
		for addr, pos := range r.Positions {
			clone.Positions[addr] = pos.Clone()
		}
	}
	return clone
}

func (r *CollateralRaising) ensureDefaults() {
	if r.Target == nil {
		r.Target = big.NewInt(0)
	}
	if r.Raised == nil {
		r.Raised = big.NewInt(0)
	}
	if r.Positions == nil {
		r.Positions = make(map[common.Address]*FunderPosition)
	}
	for _, pos := range r.Positions {
		pos.ensureDefaults()
	}
}

func (r *CollateralRaising) position(funder common.Address) *FunderPosition {
	pos, ok := r.Positions[funder]
	if !ok {
		pos = &FunderPosition{Amount: big.NewInt(0), Reward: big.NewInt(0)}
	}
	pos.ensureDefaults()
	return pos
}
