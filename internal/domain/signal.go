package domain

import (
	"strings"
	"time"
)

// Signal is an externally produced trade candidate. Signals are inputs to
// the tracking store and are never persisted themselves.
type Signal struct {
	Symbol          string    // Instrument the signal fires on
	Direction       Direction // +1 long, -1 short
	EntryPrice      float64   // Suggested entry level
	StopLossPrice   float64   // Suggested protective stop
	TargetPrice     float64   // Suggested profit target
	RiskRewardRatio float64   // Reward per unit of risk as scored upstream (0 = unknown)
	ATR             float64   // Average true range when the signal fired (0 = unknown)
	SignalDate      time.Time // Date the signal was generated (zero = unknown)
	Segment         string    // Scanner segment that produced it ("" = overall)
	Notes           string    // Free-form scanner notes
}

// NormalizeSymbol canonicalizes an instrument identifier for comparison
// and storage.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
