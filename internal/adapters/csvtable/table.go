// Package csvtable persists the trade ledger as a single CSV file with a
// fixed header, the layout consumed by spreadsheet review and the
// reporting pipeline.
package csvtable

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"signalTracker/internal/domain"
	"signalTracker/internal/ports"
)

// Header is the fixed column set of the trade table, in persisted order.
var Header = []string{
	"trade_id", "symbol", "direction", "entry_date", "entry_price",
	"stop_loss_price", "target_price", "risk_reward_ratio", "atr_at_entry",
	"trade_type", "source_signal_date", "status", "current_price",
	"unrealized_pnl", "exit_date", "exit_price", "realized_pnl",
	"exit_reason", "holding_period", "notes", "created_at", "updated_at",
}

const dateLayout = "2006-01-02"

// Table implements ports.TradeTable on top of a single CSV file.
// Writes go to a temp file in the same directory followed by a rename, so
// a crash mid-write never leaves a truncated table behind.
type Table struct {
	path   string
	logger ports.Logger
}

// Config holds configuration for the CSV trade table.
type Config struct {
	Path   string // CSV file location (default "./tracking/trades.csv")
	Logger ports.Logger
}

// New creates the CSV trade table, initializing the file with a header row
// if it does not exist yet.
func New(cfg Config) (*Table, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for CSV trade table")
	}
	path := cfg.Path
	if path == "" {
		path = "./tracking/trades.csv"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create tracking directory '%s': %w", dir, err)
		}
	}

	t := &Table{path: path, logger: cfg.Logger}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := t.writeRows(nil); err != nil {
			return nil, fmt.Errorf("failed to initialize trade table at '%s': %w", path, err)
		}
		cfg.Logger.Info(context.Background(), "Trade table initialized", map[string]interface{}{"path": path})
	}
	return t, nil
}

// LoadAll reads every trade row from the file. A missing file reads as an
// empty table.
func (t *Table) LoadAll(ctx context.Context) ([]*domain.Trade, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*domain.Trade{}, nil
		}
		return nil, fmt.Errorf("failed to open trade table '%s': %w: %w", t.path, ports.ErrStorageFailed, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trade table '%s': %w: %w", t.path, ports.ErrStorageFailed, err)
	}
	if len(records) == 0 {
		return []*domain.Trade{}, nil
	}
	if strings.Join(records[0], ",") != strings.Join(Header, ",") {
		return nil, fmt.Errorf("trade table '%s' has an unrecognized header: %w", t.path, ports.ErrStorageFailed)
	}

	trades := make([]*domain.Trade, 0, len(records)-1)
	for i, rec := range records[1:] {
		trade, err := decodeTrade(rec)
		if err != nil {
			return nil, fmt.Errorf("trade table '%s' row %d: %w: %w", t.path, i+2, ports.ErrStorageFailed, err)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// ReplaceAll overwrites the table with exactly the given rows.
func (t *Table) ReplaceAll(ctx context.Context, trades []*domain.Trade) error {
	if err := t.writeRows(trades); err != nil {
		return fmt.Errorf("failed to write trade table '%s': %w: %w", t.path, ports.ErrStorageFailed, err)
	}
	t.logger.Debug(ctx, "Trade table written", map[string]interface{}{"path": t.path, "rows": len(trades)})
	return nil
}

func (t *Table) writeRows(trades []*domain.Trade) error {
	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".trades-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		tmp.Close()
		return err
	}
	for _, trade := range trades {
		if err := w.Write(encodeTrade(trade)); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), t.path)
}

func encodeTrade(t *domain.Trade) []string {
	return []string{
		t.ID,
		t.Symbol,
		strconv.Itoa(int(t.Direction)),
		formatDate(t.EntryDate),
		formatFloat(t.EntryPrice),
		formatFloat(t.StopLossPrice),
		formatFloat(t.TargetPrice),
		formatFloatPtr(t.RiskRewardRatio),
		formatFloatPtr(t.ATRAtEntry),
		string(t.Type),
		formatDate(t.SourceSignalDate),
		string(t.Status),
		formatFloat(t.CurrentPrice),
		formatFloat(t.UnrealizedPNL),
		formatDate(t.ExitDate),
		formatFloatPtr(t.ExitPrice),
		formatFloatPtr(t.RealizedPNL),
		t.ExitReason,
		formatIntPtr(t.HoldingDays),
		t.Notes,
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	}
}

func decodeTrade(rec []string) (*domain.Trade, error) {
	if len(rec) != len(Header) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(Header), len(rec))
	}

	trade := &domain.Trade{
		ID:         rec[0],
		Symbol:     rec[1],
		Type:       domain.TradeType(rec[9]),
		Status:     domain.TradeStatus(rec[11]),
		ExitReason: rec[17],
		Notes:      rec[19],
	}

	var err error
	if trade.Direction, err = parseDirection(rec[2]); err != nil {
		return nil, err
	}
	if trade.EntryDate, err = parseDate(rec[3], "entry_date"); err != nil {
		return nil, err
	}
	if trade.EntryPrice, err = parseFloat(rec[4], "entry_price"); err != nil {
		return nil, err
	}
	if trade.StopLossPrice, err = parseFloat(rec[5], "stop_loss_price"); err != nil {
		return nil, err
	}
	if trade.TargetPrice, err = parseFloat(rec[6], "target_price"); err != nil {
		return nil, err
	}
	if trade.RiskRewardRatio, err = parseFloatPtr(rec[7], "risk_reward_ratio"); err != nil {
		return nil, err
	}
	if trade.ATRAtEntry, err = parseFloatPtr(rec[8], "atr_at_entry"); err != nil {
		return nil, err
	}
	if trade.SourceSignalDate, err = parseDate(rec[10], "source_signal_date"); err != nil {
		return nil, err
	}
	if trade.CurrentPrice, err = parseFloat(rec[12], "current_price"); err != nil {
		return nil, err
	}
	if trade.UnrealizedPNL, err = parseFloat(rec[13], "unrealized_pnl"); err != nil {
		return nil, err
	}
	if trade.ExitDate, err = parseDate(rec[14], "exit_date"); err != nil {
		return nil, err
	}
	if trade.ExitPrice, err = parseFloatPtr(rec[15], "exit_price"); err != nil {
		return nil, err
	}
	if trade.RealizedPNL, err = parseFloatPtr(rec[16], "realized_pnl"); err != nil {
		return nil, err
	}
	if trade.HoldingDays, err = parseIntPtr(rec[18], "holding_period"); err != nil {
		return nil, err
	}
	if trade.CreatedAt, err = parseTime(rec[20], "created_at"); err != nil {
		return nil, err
	}
	if trade.UpdatedAt, err = parseTime(rec[21], "updated_at"); err != nil {
		return nil, err
	}
	return trade, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// formatDate renders a civil date; the zero time renders as empty.
func formatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// formatTime keeps nanosecond precision, so rows stamped with time.Now
// survive a write/read cycle unchanged.
func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func parseDirection(s string) (domain.Direction, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("column direction: %q is not an integer", s)
	}
	return domain.Direction(n), nil
}

func parseFloat(s, col string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %q is not a number", col, s)
	}
	return v, nil
}

func parseFloatPtr(s, col string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := parseFloat(s, col)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseIntPtr(s, col string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("column %s: %q is not an integer", col, s)
	}
	return &v, nil
}

func parseDate(s, col string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("column %s: %q is not a date", col, s)
	}
	return d, nil
}

func parseTime(s, col string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	// The layout also accepts whole-second values from older tables.
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("column %s: %q is not a timestamp", col, s)
	}
	return ts.UTC(), nil
}
