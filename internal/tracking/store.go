package tracking

import (
	"context"
	"fmt"
	"time"

	"signalTracker/internal/domain"
	"signalTracker/internal/ports"
)

const defaultQuoteTimeout = 30 * time.Second

// Store owns the trade ledger lifecycle: creating trades from scanner
// signals or manual picks, refreshing mark-to-market valuation, and closing
// trades with realized P&L accounting. Every mutation reads the full table,
// changes it in memory, and writes the full table back, so the ledger on
// disk always holds complete rows. The store assumes a single writer.
type Store struct {
	table        ports.TradeTable
	quotes       ports.QuoteProvider
	logger       ports.Logger
	clock        ports.Clock
	quoteTimeout time.Duration
}

// Config holds the dependencies and tunables for the tracking store.
type Config struct {
	Table  ports.TradeTable
	Quotes ports.QuoteProvider
	Logger ports.Logger
	// Clock defaults to time.Now in UTC when nil.
	Clock ports.Clock
	// QuoteTimeout bounds each price lookup during revaluation.
	// Defaults to 30s when zero.
	QuoteTimeout time.Duration
}

// New creates a tracking store instance.
func New(cfg Config) (*Store, error) {
	if cfg.Table == nil || cfg.Quotes == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for tracking store")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	quoteTimeout := cfg.QuoteTimeout
	if quoteTimeout <= 0 {
		quoteTimeout = defaultQuoteTimeout
	}
	return &Store{
		table:        cfg.Table,
		quotes:       cfg.Quotes,
		logger:       cfg.Logger,
		clock:        clock,
		quoteTimeout: quoteTimeout,
	}, nil
}

// ManualPick is a hand-entered position to track alongside scanner signals,
// typically a historical pick being brought under management. The
// risk/reward ratio is derived from its levels rather than supplied.
type ManualPick struct {
	Symbol        string
	Direction     domain.Direction
	EntryPrice    float64
	StopLossPrice float64
	TargetPrice   float64
	Notes         string
}

// AddTrackedSignal creates an ACTIVE trade from a scanner signal. The entry
// date is today per the store's clock; the signal's own date is kept as
// provenance. Returns ports.ErrInvalidSignal when the levels are not
// coherent for the direction, and ports.ErrDuplicateTrade when the symbol
// already has an ACTIVE trade.
func (s *Store) AddTrackedSignal(ctx context.Context, sig domain.Signal) (*domain.Trade, error) {
	if err := validateLevels(sig.Direction, sig.EntryPrice, sig.StopLossPrice, sig.TargetPrice); err != nil {
		return nil, fmt.Errorf("track signal for %q: %w", sig.Symbol, err)
	}
	symbol := domain.NormalizeSymbol(sig.Symbol)

	trades, err := s.table.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("track signal for %s: load trade table: %w", symbol, err)
	}
	if open := findActive(trades, symbol); open != nil {
		return nil, fmt.Errorf("track signal: %s is already tracked by %s: %w", symbol, open.ID, ports.ErrDuplicateTrade)
	}

	now := s.clock().UTC()
	trade := &domain.Trade{
		ID:               deriveTradeID(trades, symbol, civilDate(now)),
		Symbol:           symbol,
		Direction:        sig.Direction,
		EntryDate:        civilDate(now),
		EntryPrice:       sig.EntryPrice,
		StopLossPrice:    sig.StopLossPrice,
		TargetPrice:      sig.TargetPrice,
		Type:             domain.TypeSignal,
		SourceSignalDate: sig.SignalDate,
		Status:           domain.StatusActive,
		CurrentPrice:     sig.EntryPrice,
		UnrealizedPNL:    0,
		Notes:            sig.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if sig.RiskRewardRatio > 0 {
		rr := sig.RiskRewardRatio
		trade.RiskRewardRatio = &rr
	}
	if sig.ATR > 0 {
		atr := sig.ATR
		trade.ATRAtEntry = &atr
	}

	trades = append(trades, trade)
	if err := s.table.ReplaceAll(ctx, trades); err != nil {
		return nil, fmt.Errorf("track signal for %s: persist trade table: %w", symbol, err)
	}

	s.logger.Info(ctx, "Now tracking signal", map[string]interface{}{
		"tradeID":    trade.ID,
		"symbol":     symbol,
		"direction":  trade.Direction.String(),
		"entryPrice": trade.EntryPrice,
		"segment":    sig.Segment,
	})
	return trade, nil
}

// AddManualPick creates an ACTIVE trade of type MANUAL. Validation, dedup,
// and persistence match AddTrackedSignal; the risk/reward ratio is computed
// from the pick's levels.
func (s *Store) AddManualPick(ctx context.Context, pick ManualPick) (*domain.Trade, error) {
	if err := validateLevels(pick.Direction, pick.EntryPrice, pick.StopLossPrice, pick.TargetPrice); err != nil {
		return nil, fmt.Errorf("add manual pick for %q: %w", pick.Symbol, err)
	}
	symbol := domain.NormalizeSymbol(pick.Symbol)

	trades, err := s.table.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("add manual pick for %s: load trade table: %w", symbol, err)
	}
	if open := findActive(trades, symbol); open != nil {
		return nil, fmt.Errorf("add manual pick: %s is already tracked by %s: %w", symbol, open.ID, ports.ErrDuplicateTrade)
	}

	now := s.clock().UTC()
	trade := &domain.Trade{
		ID:              deriveTradeID(trades, symbol, civilDate(now)),
		Symbol:          symbol,
		Direction:       pick.Direction,
		EntryDate:       civilDate(now),
		EntryPrice:      pick.EntryPrice,
		StopLossPrice:   pick.StopLossPrice,
		TargetPrice:     pick.TargetPrice,
		RiskRewardRatio: riskReward(pick.Direction, pick.EntryPrice, pick.StopLossPrice, pick.TargetPrice),
		Type:            domain.TypeManual,
		Status:          domain.StatusActive,
		CurrentPrice:    pick.EntryPrice,
		UnrealizedPNL:   0,
		Notes:           pick.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	trades = append(trades, trade)
	if err := s.table.ReplaceAll(ctx, trades); err != nil {
		return nil, fmt.Errorf("add manual pick for %s: persist trade table: %w", symbol, err)
	}

	s.logger.Info(ctx, "Now tracking manual pick", map[string]interface{}{
		"tradeID":    trade.ID,
		"symbol":     symbol,
		"direction":  trade.Direction.String(),
		"entryPrice": trade.EntryPrice,
	})
	return trade, nil
}

// UpdateActiveTrades refreshes current price and unrealized P&L for every
// ACTIVE trade and returns how many rows were actually revalued. A symbol
// whose lookup fails keeps its previous valuation and never aborts the
// batch; the whole table is written back once at the end. With no ACTIVE
// rows it returns 0 without touching the table.
func (s *Store) UpdateActiveTrades(ctx context.Context) (int, error) {
	trades, err := s.table.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("update active trades: load trade table: %w", err)
	}

	var active []*domain.Trade
	for _, t := range trades {
		if t.IsActive() {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		s.logger.Info(ctx, "No active trades to revalue")
		return 0, nil
	}

	updated := 0
	for _, trade := range active {
		price, err := s.lookupPrice(ctx, trade.Symbol)
		if err != nil {
			s.logger.Warn(ctx, "Price unavailable, keeping previous valuation", map[string]interface{}{
				"tradeID": trade.ID,
				"symbol":  trade.Symbol,
				"error":   err.Error(),
			})
			continue
		}
		trade.CurrentPrice = price
		trade.UnrealizedPNL = trade.PNL(price)
		trade.UpdatedAt = s.clock().UTC()
		updated++
	}

	if err := s.table.ReplaceAll(ctx, trades); err != nil {
		return 0, fmt.Errorf("update active trades: persist trade table: %w", err)
	}

	s.logger.Info(ctx, "Revaluation complete", map[string]interface{}{
		"active":  len(active),
		"updated": updated,
	})
	return updated, nil
}

// lookupPrice quotes one symbol under the per-lookup deadline, so a stalled
// provider surfaces as an error for that row instead of hanging the batch.
func (s *Store) lookupPrice(ctx context.Context, symbol string) (float64, error) {
	quoteCtx, cancel := context.WithTimeout(ctx, s.quoteTimeout)
	defer cancel()
	return s.quotes.LatestPrice(quoteCtx, symbol)
}

// CloseTrade transitions a trade to CLOSED, recording exit price, realized
// P&L, and holding period. A zero exitDate means today per the store's
// clock. Returns ports.ErrNotFound for an unknown id and
// ports.ErrAlreadyClosed when the trade is not ACTIVE; a rejected close
// never modifies the table.
func (s *Store) CloseTrade(ctx context.Context, tradeID string, exitPrice float64, exitDate time.Time, reason string) (*domain.Trade, error) {
	trades, err := s.table.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("close trade %s: load trade table: %w", tradeID, err)
	}

	trade := findByID(trades, tradeID)
	if trade == nil {
		return nil, fmt.Errorf("close trade: no trade with id %q: %w", tradeID, ports.ErrNotFound)
	}
	if trade.Status == domain.StatusClosed {
		return nil, fmt.Errorf("close trade: %s was already closed on %s: %w",
			trade.ID, trade.ExitDate.Format("2006-01-02"), ports.ErrAlreadyClosed)
	}

	now := s.clock().UTC()
	if exitDate.IsZero() {
		exitDate = now
	}
	exitDay := civilDate(exitDate)

	realized := trade.PNL(exitPrice)
	holding := wholeDays(trade.EntryDate, exitDay)

	trade.Status = domain.StatusClosed
	trade.ExitDate = exitDay
	trade.ExitPrice = &exitPrice
	trade.RealizedPNL = &realized
	trade.ExitReason = reason
	trade.HoldingDays = &holding
	trade.UpdatedAt = now

	if err := s.table.ReplaceAll(ctx, trades); err != nil {
		return nil, fmt.Errorf("close trade %s: persist trade table: %w", tradeID, err)
	}

	s.logger.Info(ctx, "Trade closed", map[string]interface{}{
		"tradeID":     trade.ID,
		"symbol":      trade.Symbol,
		"exitPrice":   exitPrice,
		"realizedPNL": realized,
		"holdingDays": holding,
		"reason":      reason,
	})
	return trade, nil
}

// ActiveTrades returns every ACTIVE trade in ledger order.
func (s *Store) ActiveTrades(ctx context.Context) ([]*domain.Trade, error) {
	trades, err := s.table.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("active trades: load trade table: %w", err)
	}
	active := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.IsActive() {
			active = append(active, t)
		}
	}
	return active, nil
}

// FindActiveBySymbol returns the open trade for a symbol.
// Returns nil, nil when the symbol has no ACTIVE trade.
func (s *Store) FindActiveBySymbol(ctx context.Context, symbol string) (*domain.Trade, error) {
	trades, err := s.table.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("find active trade: load trade table: %w", err)
	}
	return findActive(trades, domain.NormalizeSymbol(symbol)), nil
}

// TradeByID returns the trade with the given id, active or closed.
// Returns nil, nil when no trade has that id.
func (s *Store) TradeByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	trades, err := s.table.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("trade by id: load trade table: %w", err)
	}
	return findByID(trades, tradeID), nil
}

// AllTrades returns the full ledger, active and closed, in ledger order.
func (s *Store) AllTrades(ctx context.Context) ([]*domain.Trade, error) {
	trades, err := s.table.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("all trades: load trade table: %w", err)
	}
	return trades, nil
}

// validateLevels enforces the price ordering invariant for a candidate
// entry: stop below entry below target for longs, mirrored for shorts.
func validateLevels(dir domain.Direction, entry, stop, target float64) error {
	if !dir.IsValid() {
		return fmt.Errorf("direction must be +1 (long) or -1 (short), got %d: %w", int(dir), ports.ErrInvalidSignal)
	}
	if entry <= 0 {
		return fmt.Errorf("entry price must be positive, got %v: %w", entry, ports.ErrInvalidSignal)
	}
	switch dir {
	case domain.Long:
		if stop >= entry || target <= entry {
			return fmt.Errorf("long trade requires stop < entry < target (stop=%v entry=%v target=%v): %w",
				stop, entry, target, ports.ErrInvalidSignal)
		}
	case domain.Short:
		if stop <= entry || target >= entry {
			return fmt.Errorf("short trade requires target < entry < stop (stop=%v entry=%v target=%v): %w",
				stop, entry, target, ports.ErrInvalidSignal)
		}
	}
	return nil
}

// riskReward computes reward per unit of risk from the pick's levels. A
// near-zero risk leg yields nil instead of a blown-up ratio.
func riskReward(dir domain.Direction, entry, stop, target float64) *float64 {
	var reward, risk float64
	switch dir {
	case domain.Long:
		reward, risk = target-entry, entry-stop
	case domain.Short:
		reward, risk = entry-target, stop-entry
	}
	if risk <= 1e-9 {
		return nil
	}
	rr := reward / risk
	return &rr
}

// deriveTradeID builds SYMBOL-YYYYMMDD from the entry date, suffixing -2,
// -3, ... on collision. Ids never recycle: closed trades keep theirs
// forever, so the scan covers the whole ledger.
func deriveTradeID(trades []*domain.Trade, symbol string, entryDate time.Time) string {
	base := fmt.Sprintf("%s-%s", symbol, entryDate.Format("20060102"))
	taken := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		taken[t.ID] = struct{}{}
	}
	if _, ok := taken[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		id := fmt.Sprintf("%s-%d", base, n)
		if _, ok := taken[id]; !ok {
			return id
		}
	}
}

func findActive(trades []*domain.Trade, symbol string) *domain.Trade {
	for _, t := range trades {
		if t.IsActive() && t.Symbol == symbol {
			return t
		}
	}
	return nil
}

func findByID(trades []*domain.Trade, tradeID string) *domain.Trade {
	for _, t := range trades {
		if t.ID == tradeID {
			return t
		}
	}
	return nil
}

// civilDate truncates a timestamp to midnight UTC. Entry and exit dates are
// civil dates, so holding periods come out in whole days.
func civilDate(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func wholeDays(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
