package lending

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const (
	EventTypeCollateralDeposited = "lending.collateral.deposited"
	EventTypeCollateralWithdrawn = "lending.collateral.withdrawn"
	EventTypeLoanCreated         = "lending.loan.created"
	EventTypeLoanRepaid          = "lending.loan.repaid"
	EventTypeLoanLiquidated      = "lending.loan.liquidated"
	EventTypeRaisingStarted      = "lending.raising.started"
	EventTypeRaisingFunded       = "lending.raising.funded"
	EventTypeRaisingClosed       = "lending.raising.closed"
	EventTypeFunderRepaid        = "lending.raising.funder_repaid"
	EventTypeRaisingReset        = "lending.raising.reset"
	EventTypeTokenAdded          = "lending.token.added"
	EventTypeTokenRemoved        = "lending.token.removed"
	EventTypeFeedUpdated         = "lending.token.feed_updated"
	EventTypeLoanParamsUpdated   = "lending.params.loan_updated"
	EventTypeLiquidityDeposited  = "lending.liquidity.deposited"
	EventTypeLiquidityWithdrawn  = "lending.liquidity.withdrawn"
)

// Event is the structured audit record emitted by every state-changing
// operation. Attribute values are strings so the record survives any
// transport or log sink unchanged.
type Event struct {
	ID         string
	Type       string
	Attributes map[string]string
}

// Emitter receives audit events. Implementations must not retain the
// attribute map beyond the call if they mutate it.
type Emitter interface {
	Emit(Event)
}

func newEvent(eventType string, attrs map[string]string) Event {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return Event{ID: uuid.NewString(), Type: eventType, Attributes: attrs}
}

func amountAttr(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

func newCollateralDepositedEvent(user, token common.Address, amount, balance *big.Int) Event {
	return newEvent(EventTypeCollateralDeposited, map[string]string{
		"user":    user.Hex(),
		"token":   token.Hex(),
		"amount":  amountAttr(amount),
		"balance": amountAttr(balance),
	})
}

func newCollateralWithdrawnEvent(user, token common.Address, amount, balance *big.Int) Event {
	return newEvent(EventTypeCollateralWithdrawn, map[string]string{
		"user":    user.Hex(),
		"token":   token.Hex(),
		"amount":  amountAttr(amount),
		"balance": amountAttr(balance),
	})
}

func newLoanCreatedEvent(user common.Address, principal, debt *big.Int, dueDate int64) Event {
	return newEvent(EventTypeLoanCreated, map[string]string{
		"user":      user.Hex(),
		"principal": amountAttr(principal),
		"debt":      amountAttr(debt),
		"dueDate":   strconv.FormatInt(dueDate, 10),
	})
}

func newLoanRepaidEvent(user common.Address, amount, outstanding *big.Int, cleared bool) Event {
	return newEvent(EventTypeLoanRepaid, map[string]string{
		"user":        user.Hex(),
		"amount":      amountAttr(amount),
		"outstanding": amountAttr(outstanding),
		"cleared":     strconv.FormatBool(cleared),
	})
}

func newLiquidationEvent(liquidator, user, token common.Address, result *LiquidationResult) Event {
	attrs := map[string]string{
		"liquidator": liquidator.Hex(),
		"user":       user.Hex(),
		"token":      token.Hex(),
	}
	if result != nil {
		attrs["seized"] = amountAttr(result.SeizedCollateral)
		attrs["recovered"] = amountAttr(result.RecoveredDebt)
		attrs["swapOutput"] = amountAttr(result.SwapOutput)
		attrs["cleared"] = strconv.FormatBool(result.LoanCleared)
	}
	return newEvent(EventTypeLoanLiquidated, attrs)
}

func newRaisingStartedEvent(borrower, token common.Address, target *big.Int, rateBps uint16) Event {
	return newEvent(EventTypeRaisingStarted, map[string]string{
		"borrower": borrower.Hex(),
		"token":    token.Hex(),
		"target":   amountAttr(target),
		"rateBps":  strconv.FormatUint(uint64(rateBps), 10),
	})
}

func newRaisingFundedEvent(borrower, funder common.Address, amount, raised *big.Int) Event {
	return newEvent(EventTypeRaisingFunded, map[string]string{
		"borrower": borrower.Hex(),
		"funder":   funder.Hex(),
		"amount":   amountAttr(amount),
		"raised":   amountAttr(raised),
	})
}

func newRaisingClosedEvent(caller, borrower common.Address, raised *big.Int) Event {
	return newEvent(EventTypeRaisingClosed, map[string]string{
		"caller":   caller.Hex(),
		"borrower": borrower.Hex(),
		"raised":   amountAttr(raised),
	})
}

func newFunderRepaidEvent(borrower, funder common.Address, collateralAmount, interestAmount *big.Int) Event {
	return newEvent(EventTypeFunderRepaid, map[string]string{
		"borrower":   borrower.Hex(),
		"funder":     funder.Hex(),
		"collateral": amountAttr(collateralAmount),
		"interest":   amountAttr(interestAmount),
	})
}

func newRaisingResetEvent(borrower common.Address) Event {
	return newEvent(EventTypeRaisingReset, map[string]string{
		"borrower": borrower.Hex(),
	})
}

func newTokenAddedEvent(caller, token, feed common.Address, decimals uint8) Event {
	return newEvent(EventTypeTokenAdded, map[string]string{
		"caller":   caller.Hex(),
		"token":    token.Hex(),
		"feed":     feed.Hex(),
		"decimals": strconv.FormatUint(uint64(decimals), 10),
	})
}

func newTokenRemovedEvent(caller, token common.Address) Event {
	return newEvent(EventTypeTokenRemoved, map[string]string{
		"caller": caller.Hex(),
		"token":  token.Hex(),
	})
}

func newFeedUpdatedEvent(caller, token, feed common.Address) Event {
	return newEvent(EventTypeFeedUpdated, map[string]string{
		"caller": caller.Hex(),
		"token":  token.Hex(),
		"feed":   feed.Hex(),
	})
}

func newLoanParamsEvent(caller common.Address, rateBps uint64, durationSeconds int64) Event {
	return newEvent(EventTypeLoanParamsUpdated, map[string]string{
		"caller":   caller.Hex(),
		"rateBps":  strconv.FormatUint(rateBps, 10),
		"duration": strconv.FormatInt(durationSeconds, 10),
	})
}

func newLiquidityEvent(caller common.Address, amount *big.Int, deposit bool) Event {
	eventType := EventTypeLiquidityWithdrawn
	if deposit {
		eventType = EventTypeLiquidityDeposited
	}
	return newEvent(eventType, map[string]string{
		"caller": caller.Hex(),
		"amount": amountAttr(amount),
	})
}
