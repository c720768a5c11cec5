package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Lagxy/Lending-DApps/config"
	"github.com/Lagxy/Lending-DApps/integrations/devnet"
	nativecommon "github.com/Lagxy/Lending-DApps/native/common"
	"github.com/Lagxy/Lending-DApps/native/lending"
	"github.com/Lagxy/Lending-DApps/observability/logging"
	"github.com/Lagxy/Lending-DApps/services/lending/server"
	"github.com/Lagxy/Lending-DApps/storage"
)

// devnetVenue receives swapped-in collateral when the in-process swap stands
// in for an external venue.
var devnetVenue = common.HexToAddress("0x00000000000000000000000000000000000000Fe")

func main() {
	configPath := flag.String("config", "./lendingd.toml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.Setup("lendingd", cfg.Environment)

	if err := run(cfg, logger); err != nil {
		logger.Error("daemon exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	moduleAddr, err := requireAddress("ModuleAddress", cfg.ModuleAddress)
	if err != nil {
		return err
	}
	debtToken, err := requireAddress("DebtToken", cfg.DebtToken)
	if err != nil {
		return err
	}
	debtFeed, err := requireAddress("DebtTokenFeed", cfg.DebtTokenFeed)
	if err != nil {
		return err
	}
	admins := make([]common.Address, 0, len(cfg.Admins))
	for _, raw := range cfg.Admins {
		addr, err := requireAddress("Admins", raw)
		if err != nil {
			return err
		}
		admins = append(admins, addr)
	}

	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	pauses := nativecommon.NewSwitchboard()
	auth := devnet.NewStaticAdmins(admins...)

	engine := lending.NewEngine(moduleAddr, debtToken, debtFeed, cfg.Lending)
	engine.SetState(storage.NewState(db))
	engine.SetAuthorizer(auth)
	engine.SetPauses(pauses)
	engine.SetBorrowQuota(nativecommon.Quota{
		MaxOpsPerEpoch: cfg.BorrowQuotaOps,
		EpochSeconds:   cfg.BorrowQuotaEpochSeconds,
	})
	engine.SetEmitter(eventLogger{logger: logger})

	if cfg.Devnet.Enabled {
		if err := seedDevnet(cfg, engine, moduleAddr, debtToken, debtFeed, admins); err != nil {
			return err
		}
		logger.Info("devnet collaborators seeded", "tokens", len(cfg.Devnet.Tokens))
	} else {
		return errors.New("lendingd: no token connector configured; enable [devnet] or wire an external connector")
	}

	svc := server.New(engine, pauses, auth, logger)

	api := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metrics := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("api listening", "address", cfg.ListenAddress)
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics listening", "address", cfg.MetricsAddress)
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Shutdown(ctx); err != nil {
		logger.Warn("api shutdown", "error", err.Error())
	}
	if err := metrics.Shutdown(ctx); err != nil {
		logger.Warn("metrics shutdown", "error", err.Error())
	}
	return nil
}

func openDatabase(dataDir string) (storage.Database, error) {
	if dataDir == "" || dataDir == "memory" {
		return storage.NewMemDB(), nil
	}
	db, err := storage.NewLevelDB(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", dataDir, err)
	}
	return db, nil
}

// seedDevnet builds in-process tokens, feeds and a synthetic swap venue from
// the [devnet] configuration section and hands them to the engine. Admins are
// minted a working balance of every token so liquidity can be supplied over
// the API right away.
func seedDevnet(cfg *config.Config, engine *lending.Engine, moduleAddr, debtToken, debtFeed common.Address, admins []common.Address) error {
	bank := devnet.NewBank(moduleAddr)
	swap := devnet.NewSwap(bank, moduleAddr, devnetVenue)

	grant := new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

	seed := func(spec config.DevnetToken) error {
		tokenAddr, err := requireAddress("devnet token Address", spec.Address)
		if err != nil {
			return err
		}
		feedAddr, err := requireAddress("devnet token Feed", spec.Feed)
		if err != nil {
			return err
		}
		price, ok := new(big.Int).SetString(spec.Price, 10)
		if !ok || price.Sign() <= 0 {
			return fmt.Errorf("devnet token %s: invalid price %q", spec.Address, spec.Price)
		}
		token := devnet.NewToken(spec.Decimals)
		for _, admin := range admins {
			token.Mint(admin, new(big.Int).Set(grant))
		}
		bank.AddToken(tokenAddr, token)
		bank.AddFeed(feedAddr, devnet.NewFeed(price, spec.PriceDecimals))
		swap.Route(tokenAddr, feedAddr)
		return nil
	}

	debtSeeded := false
	for _, spec := range cfg.Devnet.Tokens {
		if err := seed(spec); err != nil {
			return err
		}
		if common.HexToAddress(spec.Address) == debtToken {
			debtSeeded = true
		}
	}
	if !debtSeeded {
		return fmt.Errorf("devnet: DebtToken %s missing from [devnet] Tokens", debtToken.Hex())
	}
	if _, ok := bank.RawFeed(debtFeed); !ok {
		return fmt.Errorf("devnet: DebtTokenFeed %s missing from [devnet] Tokens", debtFeed.Hex())
	}

	engine.SetConnector(bank)
	engine.SetSwapVenue(swap)
	return nil
}

func requireAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("lendingd: %s: invalid address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

// eventLogger forwards ledger events to the structured log.
type eventLogger struct {
	logger *slog.Logger
}

func (e eventLogger) Emit(ev lending.Event) {
	attrs := make([]any, 0, 2+2*len(ev.Attributes))
	attrs = append(attrs, "eventId", ev.ID)
	for key, value := range ev.Attributes {
		attrs = append(attrs, key, value)
	}
	e.logger.Info(ev.Type, attrs...)
}
