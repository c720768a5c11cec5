package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceFeed is the oracle collaborator for a single asset. LatestQuote returns
// the raw price and the unix timestamp of the observation; Decimals reports
// the fractional digits the price carries.
type PriceFeed interface {
	LatestQuote() (price *big.Int, updatedAt int64, err error)
	Decimals() (uint8, error)
}

// Token is the fungible token transfer collaborator. Any transfer error is a
// hard abort of the surrounding operation.
type Token interface {
	TransferFrom(from, to common.Address, amount *big.Int) error
	Transfer(to common.Address, amount *big.Int) error
	Decimals() (uint8, error)
	BalanceOf(addr common.Address) (*big.Int, error)
}

// SwapVenue converts seized collateral into the debt asset during liquidation.
type SwapVenue interface {
	SwapExactIn(amountIn, minOut *big.Int, path []common.Address, to common.Address, deadline int64) (*big.Int, error)
}

// Authorizer gates the administrative surface.
type Authorizer interface {
	IsAdmin(caller common.Address) bool
}

// Connector resolves token and feed addresses recorded in the registry to
// live collaborator handles.
type Connector interface {
	Token(addr common.Address) (Token, error)
	Feed(addr common.Address) (PriceFeed, error)
}
