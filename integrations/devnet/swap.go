package devnet

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Lagxy/Lending-DApps/native/lending"
)

var (
	ErrBadPath         = errors.New("devnet swap: path must name exactly two tokens")
	ErrDeadlinePassed  = errors.New("devnet swap: deadline passed")
	ErrOutputBelowMin  = errors.New("devnet swap: output below minimum")
	ErrUnroutedToken   = errors.New("devnet swap: no feed routed for token")
	ErrInvalidSwapFill = errors.New("devnet swap: zero output")
)

// Swap is a dev swap venue that fills orders at the routed oracle prices with
// no spread. Input is pulled from the payer account and output is minted to
// the recipient.
type Swap struct {
	bank  *Bank
	payer common.Address
	venue common.Address
	feeds map[common.Address]common.Address
	now   func() int64
}

// NewSwap creates a venue that debits the payer (normally the module
// treasury) and parks swapped-away input under the venue address.
func NewSwap(bank *Bank, payer, venue common.Address) *Swap {
	return &Swap{
		bank:  bank,
		payer: payer,
		venue: venue,
		feeds: make(map[common.Address]common.Address),
		now:   func() int64 { return time.Now().Unix() },
	}
}

// Route binds a token address to the feed used to price it.
func (s *Swap) Route(token, feed common.Address) {
	s.feeds[token] = feed
}

// SwapExactIn implements lending.SwapVenue.
func (s *Swap) SwapExactIn(amountIn, minOut *big.Int, path []common.Address, to common.Address, deadline int64) (*big.Int, error) {
	if len(path) != 2 {
		return nil, ErrBadPath
	}
	if deadline < s.now() {
		return nil, ErrDeadlinePassed
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidSwapFill
	}
	tokenIn, ok := s.bank.RawToken(path[0])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, path[0].Hex())
	}
	tokenOut, ok := s.bank.RawToken(path[1])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, path[1].Hex())
	}
	feedInAddr, ok := s.feeds[path[0]]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnroutedToken, path[0].Hex())
	}
	feedOutAddr, ok := s.feeds[path[1]]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnroutedToken, path[1].Hex())
	}
	feedIn, err := s.bank.Feed(feedInAddr)
	if err != nil {
		return nil, err
	}
	feedOut, err := s.bank.Feed(feedOutAddr)
	if err != nil {
		return nil, err
	}

	normalizer := &lending.Normalizer{Now: s.now}
	ratio, err := normalizer.Ratio(feedIn, feedOut, 1<<40)
	if err != nil {
		return nil, err
	}
	decIn, _ := tokenIn.Decimals()
	decOut, _ := tokenOut.Decimals()
	value18, err := lending.TotalValue(ratio, amountIn, decIn)
	if err != nil {
		return nil, err
	}
	out, err := lending.FromScale18(value18, decOut)
	if err != nil {
		return nil, err
	}
	if out.Sign() == 0 {
		return nil, ErrInvalidSwapFill
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, ErrOutputBelowMin
	}

	if err := tokenIn.TransferFrom(s.payer, s.venue, amountIn); err != nil {
		return nil, err
	}
	tokenOut.Mint(to, out)
	return out, nil
}
