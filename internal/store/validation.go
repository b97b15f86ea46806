package store

import (
	"fmt"
	"math"
)

// InvalidTradeError reports a trade that must not reach the scorer.
type InvalidTradeError struct {
	TradeID string
	Field   string
	Reason  string
}

func (e *InvalidTradeError) Error() string {
	return fmt.Sprintf("invalid trade %q: %s %s", e.TradeID, e.Field, e.Reason)
}

// ValidateTrade checks the trade shape the scorer relies on.
func ValidateTrade(t Trade) error {
	invalid := func(field, reason string) error {
		return &InvalidTradeError{TradeID: t.ID, Field: field, Reason: reason}
	}

	switch {
	case t.Wallet == "":
		return invalid("wallet", "is required")
	case t.MarketID == "":
		return invalid("conditionId", "is required")
	case t.Timestamp.IsZero():
		return invalid("timestamp", "is required")
	case math.IsNaN(t.Size) || math.IsInf(t.Size, 0):
		return invalid("size", "must be finite")
	case t.Size < 0:
		return invalid("size", "must be non-negative")
	case math.IsNaN(t.Price) || math.IsInf(t.Price, 0):
		return invalid("price", "must be finite")
	case t.Price < 0 || t.Price > 1:
		return invalid("price", "must be within [0,1]")
	case t.Side != SideYes && t.Side != SideNo:
		return invalid("side", "must be YES or NO")
	}
	return nil
}
