package domain

import "time"

// TradeStatus represents the lifecycle state of a tracked trade.
type TradeStatus string

const (
	StatusActive TradeStatus = "ACTIVE"
	StatusClosed TradeStatus = "CLOSED"
)

// TradeType records how a trade entered the ledger.
type TradeType string

const (
	TypeSignal TradeType = "SIGNAL" // created from a scanner signal batch
	TypeManual TradeType = "MANUAL" // entered by hand as a historical pick
)

// Direction is the side of a trade. It doubles as the sign factor in all
// P&L arithmetic: +1 long, -1 short.
type Direction int

const (
	Long  Direction = 1
	Short Direction = -1
)

// IsValid reports whether d is one of the two supported directions.
func (d Direction) IsValid() bool {
	return d == Long || d == Short
}

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// Trade is one row of the tracked-trade ledger. Entry fields are fixed at
// creation, valuation fields change while the trade is ACTIVE, and exit
// fields are written exactly once when the trade closes.
type Trade struct {
	ID               string      // Unique identifier derived from symbol and entry date
	Symbol           string      // Instrument identifier (e.g., "AAPL")
	Direction        Direction   // +1 long, -1 short
	EntryDate        time.Time   // Civil date tracking started (midnight UTC)
	EntryPrice       float64     // Price the trade is tracked from
	StopLossPrice    float64     // Protective stop level
	TargetPrice      float64     // Profit target level
	RiskRewardRatio  *float64    // Reward per unit of risk (nil when not derivable)
	ATRAtEntry       *float64    // Average true range at entry (nil for manual picks)
	Type             TradeType   // SIGNAL or MANUAL
	SourceSignalDate time.Time   // Date of the originating signal (zero for manual picks)
	Status           TradeStatus // ACTIVE or CLOSED
	CurrentPrice     float64     // Last known market price
	UnrealizedPNL    float64     // Per-share P&L at CurrentPrice
	ExitDate         time.Time   // Civil date the trade was closed (zero while ACTIVE)
	ExitPrice        *float64    // Price at close (nil while ACTIVE)
	RealizedPNL      *float64    // Per-share P&L locked in at close (nil while ACTIVE)
	ExitReason       string      // Why the trade was closed ("" while ACTIVE)
	HoldingDays      *int        // Whole days between entry and exit (nil while ACTIVE)
	Notes            string      // Free-form notes
	CreatedAt        time.Time   // Row creation timestamp (UTC)
	UpdatedAt        time.Time   // Last mutation timestamp (UTC)
}

// IsActive checks whether the trade is still open.
func (t *Trade) IsActive() bool {
	return t.Status == StatusActive
}

// PNL returns the per-share profit or loss of the trade marked at price.
func (t *Trade) PNL(price float64) float64 {
	return (price - t.EntryPrice) * float64(t.Direction)
}
