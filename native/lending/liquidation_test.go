package lending

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// borrowAgainstWeth deposits the given collateral and borrows principal so the
// tests start from a live loan (debt = principal plus 3% interest).
func borrowAgainstWeth(t *testing.T, f *fixture, user common.Address, collateralWeth, principalDebt int64) {
	t.Helper()
	f.wethTok.mint(user, scaled(collateralWeth, 18))
	f.debtTok.mint(f.moduleAddr, scaled(100_000, 6))
	if err := f.engine.Deposit(user, f.weth, scaled(collateralWeth, 18)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.TakeLoan(user, scaled(principalDebt, 6)); err != nil {
		t.Fatalf("take loan: %v", err)
	}
}

func TestLiquidateRequiresSlippageFloor(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x40)
	borrowAgainstWeth(t, f, user, 1, 1000)
	f.setWethPrice(1000)

	if _, err := f.engine.Liquidate(makeAddress(0x50), user, f.weth, nil); !errors.Is(err, ErrSlippageFloorRequired) {
		t.Fatalf("nil minOut: expected ErrSlippageFloorRequired, got %v", err)
	}
	if _, err := f.engine.Liquidate(makeAddress(0x50), user, f.weth, big.NewInt(0)); !errors.Is(err, ErrSlippageFloorRequired) {
		t.Fatalf("zero minOut: expected ErrSlippageFloorRequired, got %v", err)
	}
}

func TestLiquidateRejectsHealthyLoan(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x40)
	borrowAgainstWeth(t, f, user, 1, 1000)

	if _, err := f.engine.Liquidate(makeAddress(0x50), user, f.weth, big.NewInt(1)); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("expected ErrNotLiquidatable, got %v", err)
	}
}

func TestLiquidateRejectsDebtFreeUser(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x40)
	if _, err := f.engine.Liquidate(makeAddress(0x50), user, f.weth, big.NewInt(1)); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("expected ErrNotLiquidatable, got %v", err)
	}
}

func TestLiquidateFullCoverage(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x40)
	borrowAgainstWeth(t, f, user, 2, 1000)

	// Collateral value 2 * 625 = 1250e6; hf = 1250e6*7000/1030e6 = 8495.
	f.setWethPrice(625)
	f.swap.out = scaled(1100, 6)

	result, err := f.engine.Liquidate(makeAddress(0x50), user, f.weth, scaled(1030, 6))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// Target: 1030e6 * 1.05 = 1081.5e6 debt units; at $625 that is
	// 1.7304e18 collateral units, fully covered by the 2e18 balance.
	wantSeized, _ := new(big.Int).SetString("1730400000000000000", 10)
	if result.SeizedCollateral.Cmp(wantSeized) != 0 {
		t.Fatalf("unexpected seized amount: %s", result.SeizedCollateral)
	}
	if result.RecoveredDebt.Cmp(scaled(1030, 6)) != 0 {
		t.Fatalf("unexpected recovered debt: %s", result.RecoveredDebt)
	}
	if result.SwapOutput.Cmp(scaled(1100, 6)) != 0 {
		t.Fatalf("unexpected swap output: %s", result.SwapOutput)
	}
	if !result.LoanCleared {
		t.Fatal("expected loan cleared")
	}

	loan, _ := f.engine.LoanOf(user)
	if loan != nil {
		t.Fatalf("expected loan deleted, got %+v", loan)
	}
	remaining, _ := f.engine.CollateralOf(user, f.weth)
	wantRemaining := new(big.Int).Sub(scaled(2, 18), wantSeized)
	if remaining.Cmp(wantRemaining) != 0 {
		t.Fatalf("unexpected remaining collateral: %s", remaining)
	}

	if f.swap.amountIn.Cmp(wantSeized) != 0 {
		t.Fatalf("swap received %s, want seized amount", f.swap.amountIn)
	}
	if len(f.swap.path) != 2 || f.swap.path[0] != f.weth || f.swap.path[1] != f.debtToken {
		t.Fatalf("unexpected swap path: %v", f.swap.path)
	}
	if f.swap.deadline != testNow+DefaultParams().SwapDeadlineSeconds {
		t.Fatalf("unexpected swap deadline: %d", f.swap.deadline)
	}
}

func TestLiquidateCappedSeizureKeepsLoan(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x40)
	borrowAgainstWeth(t, f, user, 1, 1000)

	// At $1000 the target 1.0815e18 exceeds the 1e18 balance: the whole
	// balance is seized and Repaid is credited pro rata.
	f.setWethPrice(1000)

	result, err := f.engine.Liquidate(makeAddress(0x50), user, f.weth, big.NewInt(1))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.SeizedCollateral.Cmp(scaled(1, 18)) != 0 {
		t.Fatalf("unexpected seized amount: %s", result.SeizedCollateral)
	}
	// floor(1030e6 * 1e18 / 1.0815e18) = 952_380_952
	if result.RecoveredDebt.Cmp(big.NewInt(952_380_952)) != 0 {
		t.Fatalf("unexpected recovered debt: %s", result.RecoveredDebt)
	}
	if result.LoanCleared {
		t.Fatal("capped seizure should not clear the loan")
	}

	loan, _ := f.engine.LoanOf(user)
	if loan == nil {
		t.Fatal("expected loan record retained")
	}
	if loan.Repaid.Cmp(big.NewInt(952_380_952)) != 0 {
		t.Fatalf("unexpected repaid: %s", loan.Repaid)
	}
	remaining, _ := f.engine.CollateralOf(user, f.weth)
	if remaining.Sign() != 0 {
		t.Fatalf("expected collateral exhausted, got %s", remaining)
	}
}

func TestLiquidateOverdueBypassesHealthCheck(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x40)
	borrowAgainstWeth(t, f, user, 2, 1000)

	// Healthy at $2000, but push the clock past the due date.
	f.engine.SetClock(func() int64 { return testNow + DefaultParams().LoanDurationSeconds + 1 })
	f.connector.feeds[f.wethFeed].updatedAt = testNow + DefaultParams().LoanDurationSeconds + 1
	f.connector.feeds[f.debtFeed].updatedAt = testNow + DefaultParams().LoanDurationSeconds + 1

	result, err := f.engine.Liquidate(makeAddress(0x50), user, f.weth, big.NewInt(1))
	if err != nil {
		t.Fatalf("liquidate overdue loan: %v", err)
	}
	if !result.LoanCleared {
		t.Fatal("expected overdue loan cleared")
	}
}

// collateralWriteFailState simulates a storage fault on the collateral
// ledger while every other record still commits.
type collateralWriteFailState struct {
	engineState
	failErr error
}

func (s *collateralWriteFailState) PutCollateral(user, token common.Address, amount *big.Int) error {
	return s.failErr
}

func TestLiquidateCollateralWriteFailureKeepsBalance(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x40)
	borrowAgainstWeth(t, f, user, 1, 1000)
	f.setWethPrice(1000)

	failure := errors.New("leveldb: write failed")
	f.engine.SetState(&collateralWriteFailState{engineState: f.state, failErr: failure})

	if _, err := f.engine.Liquidate(makeAddress(0x50), user, f.weth, big.NewInt(1)); !errors.Is(err, failure) {
		t.Fatalf("expected storage failure to propagate, got %v", err)
	}
	balance, _ := f.state.GetCollateral(user, f.weth)
	if balance.Cmp(scaled(1, 18)) != 0 {
		t.Fatalf("collateral debited on a failed write: %s", balance)
	}
}

func TestLiquidateFailedSwapLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	user := makeAddress(0x40)
	borrowAgainstWeth(t, f, user, 1, 1000)
	f.setWethPrice(1000)

	f.swap.err = errors.New("venue rejected fill")
	if _, err := f.engine.Liquidate(makeAddress(0x50), user, f.weth, big.NewInt(1)); err == nil {
		t.Fatal("expected swap failure to propagate")
	}

	balance, _ := f.engine.CollateralOf(user, f.weth)
	if balance.Cmp(scaled(1, 18)) != 0 {
		t.Fatalf("collateral changed after failed swap: %s", balance)
	}
	loan, _ := f.engine.LoanOf(user)
	if loan == nil || loan.Repaid.Sign() != 0 {
		t.Fatalf("loan changed after failed swap: %+v", loan)
	}
}
