// Package devnet provides in-process stand-ins for the external token,
// oracle, swap and authorization collaborators so the daemon and integration
// tests run without real infrastructure. Balances, prices and admin sets are
// plain in-memory state.
package devnet

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Lagxy/Lending-DApps/native/lending"
)

var (
	ErrUnknownToken        = errors.New("devnet: unknown token")
	ErrUnknownFeed         = errors.New("devnet: unknown feed")
	ErrInsufficientBalance = errors.New("devnet: insufficient balance")
)

// Token is an in-memory fungible token. TransferFrom is unrestricted; devnet
// has no allowance machinery.
type Token struct {
	mu       sync.Mutex
	decimals uint8
	balances map[common.Address]*big.Int
}

// NewToken creates a token with the given decimal count.
func NewToken(decimals uint8) *Token {
	return &Token{decimals: decimals, balances: make(map[common.Address]*big.Int)}
}

// Mint credits an address out of thin air.
func (t *Token) Mint(addr common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(addr, amount)
}

func (t *Token) credit(addr common.Address, amount *big.Int) {
	balance, ok := t.balances[addr]
	if !ok {
		balance = big.NewInt(0)
	}
	t.balances[addr] = new(big.Int).Add(balance, amount)
}

func (t *Token) debit(addr common.Address, amount *big.Int) error {
	balance, ok := t.balances[addr]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, addr.Hex())
	}
	t.balances[addr] = new(big.Int).Sub(balance, amount)
	return nil
}

func (t *Token) TransferFrom(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInsufficientBalance
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	return nil
}

func (t *Token) Transfer(to common.Address, amount *big.Int) error {
	// Devnet tokens sit in named accounts rather than a contract's own
	// balance, so plain Transfer has no implicit sender to debit. The
	// engine always transfers out of its module treasury; Bank rebinds
	// Transfer to it via boundToken.
	return errors.New("devnet: Transfer requires a bound holder, use Bank")
}

func (t *Token) Decimals() (uint8, error) { return t.decimals, nil }

func (t *Token) BalanceOf(addr common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	balance, ok := t.balances[addr]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// boundToken binds outbound transfers to a fixed holder account.
type boundToken struct {
	*Token
	holder common.Address
}

func (b boundToken) Transfer(to common.Address, amount *big.Int) error {
	return b.Token.TransferFrom(b.holder, to, amount)
}

// Feed is a fixed-price oracle whose quote can be moved by tests and dev
// tooling.
type Feed struct {
	mu        sync.Mutex
	price     *big.Int
	decimals  uint8
	updatedAt int64
}

// NewFeed creates a feed quoting price with the given decimals, stamped now.
func NewFeed(price *big.Int, decimals uint8) *Feed {
	return &Feed{price: new(big.Int).Set(price), decimals: decimals, updatedAt: time.Now().Unix()}
}

// SetPrice moves the quote and refreshes its timestamp.
func (f *Feed) SetPrice(price *big.Int, updatedAt int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = new(big.Int).Set(price)
	f.updatedAt = updatedAt
}

func (f *Feed) LatestQuote() (*big.Int, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.price), f.updatedAt, nil
}

func (f *Feed) Decimals() (uint8, error) { return f.decimals, nil }

// Bank maps addresses to devnet tokens and feeds and implements the engine's
// Connector contract. Outbound Transfer calls are bound to the module
// treasury address.
type Bank struct {
	mu       sync.Mutex
	treasury common.Address
	tokens   map[common.Address]*Token
	feeds    map[common.Address]*Feed
}

// NewBank creates an empty bank bound to the module treasury.
func NewBank(treasury common.Address) *Bank {
	return &Bank{
		treasury: treasury,
		tokens:   make(map[common.Address]*Token),
		feeds:    make(map[common.Address]*Feed),
	}
}

// AddToken registers a token under an address.
func (b *Bank) AddToken(addr common.Address, token *Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[addr] = token
}

// AddFeed registers a feed under an address.
func (b *Bank) AddFeed(addr common.Address, feed *Feed) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feeds[addr] = feed
}

// Token implements lending.Connector.
func (b *Bank) Token(addr common.Address) (lending.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	token, ok := b.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return boundToken{Token: token, holder: b.treasury}, nil
}

// Feed implements lending.Connector.
func (b *Bank) Feed(addr common.Address) (lending.PriceFeed, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	feed, ok := b.feeds[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, addr.Hex())
	}
	return feed, nil
}

// RawToken returns the underlying token for seeding balances.
func (b *Bank) RawToken(addr common.Address) (*Token, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	token, ok := b.tokens[addr]
	return token, ok
}

// RawFeed returns the underlying feed for price manipulation.
func (b *Bank) RawFeed(addr common.Address) (*Feed, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	feed, ok := b.feeds[addr]
	return feed, ok
}

// StaticAdmins is a fixed admin set implementing the engine's Authorizer.
type StaticAdmins map[common.Address]struct{}

// NewStaticAdmins builds the set from a list of addresses.
func NewStaticAdmins(admins ...common.Address) StaticAdmins {
	set := make(StaticAdmins, len(admins))
	for _, admin := range admins {
		set[admin] = struct{}{}
	}
	return set
}

func (s StaticAdmins) IsAdmin(caller common.Address) bool {
	_, ok := s[caller]
	return ok
}
