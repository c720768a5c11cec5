package server

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Lagxy/Lending-DApps/integrations/devnet"
	nativecommon "github.com/Lagxy/Lending-DApps/native/common"
	"github.com/Lagxy/Lending-DApps/native/lending"
	"github.com/Lagxy/Lending-DApps/storage"
)

var (
	moduleAddr = common.HexToAddress("0x0000000000000000000000000000000000000001")
	adminAddr  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	userAddr   = common.HexToAddress("0x0000000000000000000000000000000000000040")
	usdAddr    = common.HexToAddress("0x0000000000000000000000000000000000000010")
	usdFeed    = common.HexToAddress("0x0000000000000000000000000000000000000011")
	wethAddr   = common.HexToAddress("0x0000000000000000000000000000000000000020")
	wethFeed   = common.HexToAddress("0x0000000000000000000000000000000000000021")
)

func scale(value int64, decimals uint) *big.Int {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(value), exp)
}

type apiFixture struct {
	srv    *httptest.Server
	engine *lending.Engine
	bank   *devnet.Bank
	board  *nativecommon.Switchboard
	weth   *devnet.Token
	usd    *devnet.Token
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	bank := devnet.NewBank(moduleAddr)
	usd := devnet.NewToken(6)
	weth := devnet.NewToken(18)
	bank.AddToken(usdAddr, usd)
	bank.AddToken(wethAddr, weth)
	bank.AddFeed(usdFeed, devnet.NewFeed(scale(1, 8), 8))
	bank.AddFeed(wethFeed, devnet.NewFeed(scale(2000, 8), 8))

	swap := devnet.NewSwap(bank, moduleAddr, common.HexToAddress("0xFe"))
	swap.Route(usdAddr, usdFeed)
	swap.Route(wethAddr, wethFeed)

	board := nativecommon.NewSwitchboard()
	auth := devnet.NewStaticAdmins(adminAddr)

	engine := lending.NewEngine(moduleAddr, usdAddr, usdFeed, lending.DefaultParams())
	engine.SetState(storage.NewState(storage.NewMemDB()))
	engine.SetConnector(bank)
	engine.SetSwapVenue(swap)
	engine.SetAuthorizer(auth)
	engine.SetPauses(board)

	require.NoError(t, engine.AddToken(adminAddr, wethAddr, wethFeed))

	f := &apiFixture{
		srv:    httptest.NewServer(New(engine, board, auth, nil).Router()),
		engine: engine,
		bank:   bank,
		board:  board,
		weth:   weth,
		usd:    usd,
	}
	t.Cleanup(f.srv.Close)
	return f
}

func (f *apiFixture) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (f *apiFixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestDepositAndReadPosition(t *testing.T) {
	f := newAPIFixture(t)
	f.weth.Mint(userAddr, scale(2, 18))

	resp, _ := f.post(t, "/v1/collateral/deposit", map[string]string{
		"user":   userAddr.Hex(),
		"token":  wethAddr.Hex(),
		"amount": scale(2, 18).String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.get(t, "/v1/collateral/"+userAddr.Hex()+"/"+wethAddr.Hex())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, scale(2, 18).String(), body["balance"])

	resp, body = f.get(t, "/v1/risk/"+userAddr.Hex())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, scale(4000, 6).String(), body["collateralValue"])
	require.Equal(t, scale(2800, 6).String(), body["maxLoan"])
}

func TestBorrowRepayOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.weth.Mint(userAddr, scale(1, 18))
	f.usd.Mint(adminAddr, scale(10_000, 6))
	f.usd.Mint(userAddr, scale(100, 6))

	resp, _ := f.post(t, "/v1/admin/liquidity/deposit", map[string]string{
		"caller": adminAddr.Hex(),
		"amount": scale(10_000, 6).String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.post(t, "/v1/collateral/deposit", map[string]string{
		"user":   userAddr.Hex(),
		"token":  wethAddr.Hex(),
		"amount": scale(1, 18).String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.post(t, "/v1/loans/borrow", map[string]string{
		"user":   userAddr.Hex(),
		"amount": scale(1000, 6).String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.get(t, "/v1/loans/"+userAddr.Hex())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["active"])
	require.Equal(t, scale(1030, 6).String(), body["debt"])

	resp, _ = f.post(t, "/v1/loans/repay", map[string]string{
		"user":   userAddr.Hex(),
		"amount": scale(1030, 6).String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = f.get(t, "/v1/loans/"+userAddr.Hex())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["active"])
}

func TestErrorStatusMapping(t *testing.T) {
	f := newAPIFixture(t)

	// Unsupported token -> 404.
	resp, body := f.post(t, "/v1/collateral/deposit", map[string]string{
		"user":   userAddr.Hex(),
		"token":  common.HexToAddress("0x99").Hex(),
		"amount": "1",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotEmpty(t, body["error"])

	// Malformed amount -> 400.
	resp, _ = f.post(t, "/v1/collateral/deposit", map[string]string{
		"user":   userAddr.Hex(),
		"token":  wethAddr.Hex(),
		"amount": "not-a-number",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Malformed address -> 400.
	resp, _ = f.post(t, "/v1/collateral/deposit", map[string]string{
		"user":   "bogus",
		"token":  wethAddr.Hex(),
		"amount": "1",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown body field -> 400.
	resp, _ = f.post(t, "/v1/loans/borrow", map[string]string{
		"user":    userAddr.Hex(),
		"amount":  "1",
		"surplus": "field",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Non-admin caller -> 403.
	resp, _ = f.post(t, "/v1/admin/tokens/add", map[string]string{
		"caller": userAddr.Hex(),
		"token":  wethAddr.Hex(),
		"feed":   wethFeed.Hex(),
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// No active loan -> 404.
	resp, _ = f.post(t, "/v1/loans/repay", map[string]string{
		"user":   userAddr.Hex(),
		"amount": "1",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Liquidating a debt-free user -> 409.
	resp, _ = f.post(t, "/v1/liquidations", map[string]string{
		"liquidator": adminAddr.Hex(),
		"user":       userAddr.Hex(),
		"token":      wethAddr.Hex(),
		"minOut":     "1",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPauseEndpointGatesOperations(t *testing.T) {
	f := newAPIFixture(t)
	f.weth.Mint(userAddr, scale(1, 18))

	resp, _ := f.post(t, "/v1/admin/pause", map[string]any{
		"caller": userAddr.Hex(),
		"paused": true,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.post(t, "/v1/admin/pause", map[string]any{
		"caller": adminAddr.Hex(),
		"paused": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.post(t, "/v1/collateral/deposit", map[string]string{
		"user":   userAddr.Hex(),
		"token":  wethAddr.Hex(),
		"amount": "1",
	})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = f.post(t, "/v1/admin/pause", map[string]any{
		"caller": adminAddr.Hex(),
		"paused": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.post(t, "/v1/collateral/deposit", map[string]string{
		"user":   userAddr.Hex(),
		"token":  wethAddr.Hex(),
		"amount": "1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRaisingLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	borrower := common.HexToAddress("0x50")
	funder := common.HexToAddress("0x51")
	f.weth.Mint(funder, scale(2, 18))
	f.usd.Mint(moduleAddr, scale(1_000, 6))

	resp, _ := f.post(t, "/v1/raisings/start", map[string]any{
		"borrower": borrower.Hex(),
		"token":    wethAddr.Hex(),
		"target":   scale(2, 18).String(),
		"rateBps":  500,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.post(t, "/v1/raisings/fund", map[string]string{
		"borrower": borrower.Hex(),
		"funder":   funder.Hex(),
		"amount":   scale(2, 18).String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.post(t, "/v1/raisings/close", map[string]string{
		"caller":   borrower.Hex(),
		"borrower": borrower.Hex(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.get(t, "/v1/raisings/"+borrower.Hex())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["open"])
	require.Equal(t, scale(2, 18).String(), body["raised"])

	// 2 WETH at $2000, 5% reward = 200e6.
	resp, _ = f.post(t, "/v1/raisings/repay-funder", map[string]string{
		"borrower":   borrower.Hex(),
		"funder":     funder.Hex(),
		"collateral": scale(2, 18).String(),
		"interest":   scale(200, 6).String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.post(t, "/v1/raisings/reset", map[string]string{
		"borrower": borrower.Hex(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = f.get(t, "/v1/raisings/"+borrower.Hex())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["exists"])
}
