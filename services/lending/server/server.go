// Package server exposes the lending engine over an HTTP JSON API. Amounts
// travel as decimal strings and addresses as 0x-prefixed hex so no precision
// is lost in transit.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	nativecommon "github.com/Lagxy/Lending-DApps/native/common"
	"github.com/Lagxy/Lending-DApps/native/lending"
	"github.com/Lagxy/Lending-DApps/observability"
)

const requestLimit = 1 << 20 // 1 MiB

// Server wires HTTP handlers to the lending engine.
type Server struct {
	engine  *lending.Engine
	pauses  *nativecommon.Switchboard
	auth    lending.Authorizer
	logger  *slog.Logger
	metrics *observability.LendingMetrics
}

// New constructs the HTTP service. The switchboard and authorizer back the
// admin pause surface; a nil logger falls back to slog.Default.
func New(engine *lending.Engine, pauses *nativecommon.Switchboard, auth lending.Authorizer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  engine,
		pauses:  pauses,
		auth:    auth,
		logger:  logger,
		metrics: observability.Lending(),
	}
}

// Router mounts every ledger operation.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/collateral/deposit", s.deposit)
		r.Post("/collateral/withdraw", s.withdraw)
		r.Post("/loans/borrow", s.borrow)
		r.Post("/loans/repay", s.repay)
		r.Post("/liquidations", s.liquidate)

		r.Post("/raisings/start", s.startRaising)
		r.Post("/raisings/fund", s.fundRaising)
		r.Post("/raisings/close", s.closeRaising)
		r.Post("/raisings/repay-funder", s.repayFunder)
		r.Post("/raisings/reset", s.resetRaising)

		r.Get("/tokens", s.listTokens)
		r.Get("/collateral/{user}/{token}", s.getCollateral)
		r.Get("/loans/{user}", s.getLoan)
		r.Get("/raisings/{borrower}", s.getRaising)
		r.Get("/risk/{user}", s.getRisk)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/tokens/add", s.addToken)
			r.Post("/tokens/remove", s.removeToken)
			r.Post("/tokens/update-feed", s.updateFeed)
			r.Post("/params/loan", s.setLoanParams)
			r.Post("/liquidity/deposit", s.depositLiquidity)
			r.Post("/liquidity/withdraw", s.withdrawLiquidity)
			r.Post("/pause", s.setPaused)
		})
	})
	return r
}

func decode(r *http.Request, into any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	out, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, value)
	}
	return out, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, operation string, fn func() (any, error)) {
	start := time.Now()
	body, err := fn()
	if err != nil {
		status := statusFor(err)
		s.metrics.ObserveRequest(operation, "error", time.Since(start))
		s.metrics.ObserveError(operation, strconv.Itoa(status))
		s.logger.Warn("operation failed",
			"operation", operation,
			"status", status,
			"error", err.Error(),
			"requestId", middleware.GetReqID(r.Context()))
		s.writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	s.metrics.ObserveRequest(operation, "ok", time.Since(start))
	if body == nil {
		body = map[string]string{"status": "ok"}
	}
	s.writeJSON(w, http.StatusOK, body)
}

type transferRequest struct {
	User   string `json:"user"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "deposit", func() (any, error) {
		var req transferRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		user, err := parseAddress("user", req.User)
		if err != nil {
			return nil, err
		}
		token, err := parseAddress("token", req.Token)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.Deposit(user, token, amount)
	})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "withdraw", func() (any, error) {
		var req transferRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		user, err := parseAddress("user", req.User)
		if err != nil {
			return nil, err
		}
		token, err := parseAddress("token", req.Token)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.Withdraw(user, token, amount)
	})
}

type loanRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "borrow", func() (any, error) {
		var req loanRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		user, err := parseAddress("user", req.User)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.TakeLoan(user, amount)
	})
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "repay", func() (any, error) {
		var req loanRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		user, err := parseAddress("user", req.User)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.RepayLoan(user, amount)
	})
}

type liquidateRequest struct {
	Liquidator string `json:"liquidator"`
	User       string `json:"user"`
	Token      string `json:"token"`
	MinOut     string `json:"minOut"`
}

type liquidateResponse struct {
	Seized     string `json:"seized"`
	Recovered  string `json:"recovered"`
	SwapOutput string `json:"swapOutput"`
	Cleared    bool   `json:"cleared"`
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "liquidate", func() (any, error) {
		var req liquidateRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		liquidator, err := parseAddress("liquidator", req.Liquidator)
		if err != nil {
			return nil, err
		}
		user, err := parseAddress("user", req.User)
		if err != nil {
			return nil, err
		}
		token, err := parseAddress("token", req.Token)
		if err != nil {
			return nil, err
		}
		minOut, err := parseAmount("minOut", req.MinOut)
		if err != nil {
			return nil, err
		}
		result, err := s.engine.Liquidate(liquidator, user, token, minOut)
		if err != nil {
			return nil, err
		}
		s.metrics.ObserveLiquidation()
		return liquidateResponse{
			Seized:     result.SeizedCollateral.String(),
			Recovered:  result.RecoveredDebt.String(),
			SwapOutput: result.SwapOutput.String(),
			Cleared:    result.LoanCleared,
		}, nil
	})
}

type startRaisingRequest struct {
	Borrower string `json:"borrower"`
	Token    string `json:"token"`
	Target   string `json:"target"`
	RateBps  uint16 `json:"rateBps"`
}

func (s *Server) startRaising(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "raising_start", func() (any, error) {
		var req startRaisingRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		borrower, err := parseAddress("borrower", req.Borrower)
		if err != nil {
			return nil, err
		}
		token, err := parseAddress("token", req.Token)
		if err != nil {
			return nil, err
		}
		target, err := parseAmount("target", req.Target)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.StartRaising(borrower, token, target, req.RateBps)
	})
}

type fundRequest struct {
	Borrower string `json:"borrower"`
	Funder   string `json:"funder"`
	Amount   string `json:"amount"`
}

func (s *Server) fundRaising(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "raising_fund", func() (any, error) {
		var req fundRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		borrower, err := parseAddress("borrower", req.Borrower)
		if err != nil {
			return nil, err
		}
		funder, err := parseAddress("funder", req.Funder)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.Fund(borrower, funder, amount)
	})
}

type closeRaisingRequest struct {
	Caller   string `json:"caller"`
	Borrower string `json:"borrower"`
}

func (s *Server) closeRaising(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "raising_close", func() (any, error) {
		var req closeRaisingRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		caller, err := parseAddress("caller", req.Caller)
		if err != nil {
			return nil, err
		}
		borrower, err := parseAddress("borrower", req.Borrower)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.CloseRaising(caller, borrower)
	})
}

type repayFunderRequest struct {
	Borrower   string `json:"borrower"`
	Funder     string `json:"funder"`
	Collateral string `json:"collateral"`
	Interest   string `json:"interest"`
}

func (s *Server) repayFunder(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "raising_repay_funder", func() (any, error) {
		var req repayFunderRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		borrower, err := parseAddress("borrower", req.Borrower)
		if err != nil {
			return nil, err
		}
		funder, err := parseAddress("funder", req.Funder)
		if err != nil {
			return nil, err
		}
		collateral := big.NewInt(0)
		if req.Collateral != "" {
			if collateral, err = parseAmount("collateral", req.Collateral); err != nil {
				return nil, err
			}
		}
		interest := big.NewInt(0)
		if req.Interest != "" {
			if interest, err = parseAmount("interest", req.Interest); err != nil {
				return nil, err
			}
		}
		return nil, s.engine.RepayFunder(borrower, funder, collateral, interest)
	})
}

type resetRaisingRequest struct {
	Borrower string `json:"borrower"`
}

func (s *Server) resetRaising(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "raising_reset", func() (any, error) {
		var req resetRaisingRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		borrower, err := parseAddress("borrower", req.Borrower)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.ResetRaising(borrower)
	})
}

func (s *Server) listTokens(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "tokens_list", func() (any, error) {
		tokens, err := s.engine.SupportedTokens()
		if err != nil {
			return nil, err
		}
		hexes := make([]string, 0, len(tokens))
		for _, token := range tokens {
			hexes = append(hexes, token.Hex())
		}
		return map[string][]string{"tokens": hexes}, nil
	})
}

func (s *Server) getCollateral(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "collateral_get", func() (any, error) {
		user, err := parseAddress("user", chi.URLParam(r, "user"))
		if err != nil {
			return nil, err
		}
		token, err := parseAddress("token", chi.URLParam(r, "token"))
		if err != nil {
			return nil, err
		}
		balance, err := s.engine.CollateralOf(user, token)
		if err != nil {
			return nil, err
		}
		return map[string]string{"balance": balance.String()}, nil
	})
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "loan_get", func() (any, error) {
		user, err := parseAddress("user", chi.URLParam(r, "user"))
		if err != nil {
			return nil, err
		}
		loan, err := s.engine.LoanOf(user)
		if err != nil {
			return nil, err
		}
		if loan == nil {
			return map[string]any{"active": false}, nil
		}
		return map[string]any{
			"active":  true,
			"debt":    loan.Debt.String(),
			"repaid":  loan.Repaid.String(),
			"dueDate": loan.DueDate,
		}, nil
	})
}

func (s *Server) getRaising(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "raising_get", func() (any, error) {
		borrower, err := parseAddress("borrower", chi.URLParam(r, "borrower"))
		if err != nil {
			return nil, err
		}
		raising, err := s.engine.RaisingOf(borrower)
		if err != nil {
			return nil, err
		}
		if raising == nil {
			return map[string]any{"exists": false}, nil
		}
		funders := make([]map[string]string, 0, len(raising.Funders))
		for _, funder := range raising.Funders {
			pos := raising.Positions[funder]
			entry := map[string]string{"funder": funder.Hex(), "amount": "0", "reward": "0"}
			if pos != nil {
				if pos.Amount != nil {
					entry["amount"] = pos.Amount.String()
				}
				if pos.Reward != nil {
					entry["reward"] = pos.Reward.String()
				}
			}
			funders = append(funders, entry)
		}
		return map[string]any{
			"exists":  true,
			"open":    raising.Open,
			"token":   raising.CollateralToken.Hex(),
			"rateBps": raising.InterestRateBPS,
			"target":  raising.Target.String(),
			"raised":  raising.Raised.String(),
			"funders": funders,
		}, nil
	})
}

func (s *Server) getRisk(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "risk_get", func() (any, error) {
		user, err := parseAddress("user", chi.URLParam(r, "user"))
		if err != nil {
			return nil, err
		}
		value, err := s.engine.TotalCollateralValue(user)
		if err != nil {
			return nil, err
		}
		maxLoan, err := s.engine.MaxLoan(user)
		if err != nil {
			return nil, err
		}
		hf, err := s.engine.HealthFactorBPS(user)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"collateralValue": value.String(),
			"maxLoan":         maxLoan.String(),
			"healthFactorBps": hf.String(),
		}, nil
	})
}

type tokenAdminRequest struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Feed   string `json:"feed,omitempty"`
}

func (s *Server) addToken(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "admin_token_add", func() (any, error) {
		var req tokenAdminRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		caller, err := parseAddress("caller", req.Caller)
		if err != nil {
			return nil, err
		}
		token, err := parseAddress("token", req.Token)
		if err != nil {
			return nil, err
		}
		feed, err := parseAddress("feed", req.Feed)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.AddToken(caller, token, feed)
	})
}

func (s *Server) removeToken(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "admin_token_remove", func() (any, error) {
		var req tokenAdminRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		caller, err := parseAddress("caller", req.Caller)
		if err != nil {
			return nil, err
		}
		token, err := parseAddress("token", req.Token)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.RemoveToken(caller, token)
	})
}

func (s *Server) updateFeed(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "admin_feed_update", func() (any, error) {
		var req tokenAdminRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		caller, err := parseAddress("caller", req.Caller)
		if err != nil {
			return nil, err
		}
		token, err := parseAddress("token", req.Token)
		if err != nil {
			return nil, err
		}
		feed, err := parseAddress("feed", req.Feed)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.UpdateFeed(caller, token, feed)
	})
}

type loanParamsRequest struct {
	Caller          string `json:"caller"`
	RateBps         uint64 `json:"rateBps"`
	DurationSeconds int64  `json:"durationSeconds"`
}

func (s *Server) setLoanParams(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "admin_params_loan", func() (any, error) {
		var req loanParamsRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		caller, err := parseAddress("caller", req.Caller)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.SetLoanParams(caller, req.RateBps, req.DurationSeconds)
	})
}

type liquidityRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (s *Server) depositLiquidity(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "admin_liquidity_deposit", func() (any, error) {
		var req liquidityRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		caller, err := parseAddress("caller", req.Caller)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.DepositLiquidity(caller, amount)
	})
}

func (s *Server) withdrawLiquidity(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "admin_liquidity_withdraw", func() (any, error) {
		var req liquidityRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		caller, err := parseAddress("caller", req.Caller)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.WithdrawLiquidity(caller, amount)
	})
}

type pauseRequest struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "admin_pause", func() (any, error) {
		var req pauseRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		caller, err := parseAddress("caller", req.Caller)
		if err != nil {
			return nil, err
		}
		if s.auth == nil || !s.auth.IsAdmin(caller) {
			return nil, lending.ErrUnauthorized
		}
		if s.pauses == nil {
			return nil, fmt.Errorf("pause switchboard not configured")
		}
		s.pauses.SetPaused("lending", req.Paused)
		return map[string]bool{"paused": req.Paused}, nil
	})
}
