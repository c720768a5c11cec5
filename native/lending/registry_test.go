package lending

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestAddTokenRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	outsider := makeAddress(0x66)
	if err := f.engine.AddToken(outsider, makeAddress(0x30), makeAddress(0x31)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.RemoveToken(outsider, f.weth); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("remove: expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.UpdateFeed(outsider, f.weth, makeAddress(0x31)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("update feed: expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.SetLoanParams(outsider, 100, 60); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("set params: expected ErrUnauthorized, got %v", err)
	}
}

func TestAddTokenRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.AddToken(f.admin, f.weth, f.wethFeed); !errors.Is(err, ErrTokenAlreadySupported) {
		t.Fatalf("expected ErrTokenAlreadySupported, got %v", err)
	}
}

func TestAddTokenCapsRegistry(t *testing.T) {
	f := newFixture(t)
	// The fixture registered one token already; fill the remaining slots.
	for i := 0; i < DefaultParams().MaxSupportedTokens-1; i++ {
		token := makeAddress(byte(0x80 + i))
		feed := makeAddress(byte(0xC0 + i))
		f.connector.tokens[token] = newMockToken(18, f.moduleAddr)
		f.connector.feeds[feed] = &mockFeed{price: scaled(1, 8), decimals: 8, updatedAt: testNow}
		if err := f.engine.AddToken(f.admin, token, feed); err != nil {
			t.Fatalf("add token %d: %v", i, err)
		}
	}
	extraToken := makeAddress(0x7F)
	f.connector.tokens[extraToken] = newMockToken(18, f.moduleAddr)
	if err := f.engine.AddToken(f.admin, extraToken, makeAddress(0x7E)); !errors.Is(err, ErrMaxTokensReached) {
		t.Fatalf("expected ErrMaxTokensReached, got %v", err)
	}
}

func TestRemoveTokenCompactsList(t *testing.T) {
	f := newFixture(t)
	second := makeAddress(0x30)
	third := makeAddress(0x32)
	f.connector.tokens[second] = newMockToken(8, f.moduleAddr)
	f.connector.tokens[third] = newMockToken(6, f.moduleAddr)
	f.connector.feeds[makeAddress(0x31)] = &mockFeed{price: scaled(1, 8), decimals: 8, updatedAt: testNow}
	f.connector.feeds[makeAddress(0x33)] = &mockFeed{price: scaled(1, 8), decimals: 8, updatedAt: testNow}
	if err := f.engine.AddToken(f.admin, second, makeAddress(0x31)); err != nil {
		t.Fatalf("add second: %v", err)
	}
	if err := f.engine.AddToken(f.admin, third, makeAddress(0x33)); err != nil {
		t.Fatalf("add third: %v", err)
	}

	if err := f.engine.RemoveToken(f.admin, second); err != nil {
		t.Fatalf("remove: %v", err)
	}
	tokens, err := f.engine.SupportedTokens()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	seen := map[common.Address]bool{}
	for _, token := range tokens {
		seen[token] = true
	}
	if !seen[f.weth] || !seen[third] || seen[second] {
		t.Fatalf("unexpected registry contents: %v", tokens)
	}

	if err := f.engine.RemoveToken(f.admin, second); !errors.Is(err, ErrTokenNotSupported) {
		t.Fatalf("double remove: got %v", err)
	}
}

func TestUpdateFeedRepointsToken(t *testing.T) {
	f := newFixture(t)
	newFeed := makeAddress(0x35)
	f.connector.feeds[newFeed] = &mockFeed{price: scaled(1500, 8), decimals: 8, updatedAt: testNow}
	if err := f.engine.UpdateFeed(f.admin, f.weth, newFeed); err != nil {
		t.Fatalf("update feed: %v", err)
	}

	user := makeAddress(0x40)
	f.wethTok.mint(user, scaled(1, 18))
	if err := f.engine.Deposit(user, f.weth, scaled(1, 18)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	value, err := f.engine.TotalCollateralValue(user)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if value.Cmp(scaled(1500, 6)) != 0 {
		t.Fatalf("valuation did not follow the new feed: %s", value)
	}
}

func TestSetLoanParams(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.SetLoanParams(f.admin, 10_001, 60); !errors.Is(err, ErrAmountExceedsLimit) {
		t.Fatalf("rate above 100%%: got %v", err)
	}
	if err := f.engine.SetLoanParams(f.admin, 100, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero duration: got %v", err)
	}
	if err := f.engine.SetLoanParams(f.admin, 100, 7*24*3600); err != nil {
		t.Fatalf("set params: %v", err)
	}
	params := f.engine.Params()
	if params.InterestRateBps != 100 || params.LoanDurationSeconds != 7*24*3600 {
		t.Fatalf("params not applied: %+v", params)
	}
}

func TestLiquidityRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.debtTok.mint(f.admin, scaled(5_000, 6))

	if err := f.engine.DepositLiquidity(f.admin, scaled(5_000, 6)); err != nil {
		t.Fatalf("deposit liquidity: %v", err)
	}
	held, _ := f.debtTok.BalanceOf(f.moduleAddr)
	if held.Cmp(scaled(5_000, 6)) != 0 {
		t.Fatalf("unexpected treasury balance: %s", held)
	}

	if err := f.engine.WithdrawLiquidity(f.admin, scaled(6_000, 6)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("overdraw: got %v", err)
	}
	if err := f.engine.WithdrawLiquidity(f.admin, scaled(5_000, 6)); err != nil {
		t.Fatalf("withdraw liquidity: %v", err)
	}
	wallet, _ := f.debtTok.BalanceOf(f.admin)
	if wallet.Cmp(scaled(5_000, 6)) != 0 {
		t.Fatalf("unexpected admin wallet: %s", wallet)
	}

	if err := f.engine.DepositLiquidity(f.admin, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero deposit: got %v", err)
	}
}
