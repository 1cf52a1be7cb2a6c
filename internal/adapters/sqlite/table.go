package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"signalTracker/internal/domain"
	"signalTracker/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Table implements the ports.TradeTable interface using SQLite.
type Table struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration specific to the SQLite trade table.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// New creates a new SQLite-backed trade table and initializes the schema.
func New(cfg Config) (*Table, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite trade table")
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required for SQLite trade table")
	}

	// Ensure the directory exists
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory '%s': %w", dir, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database '%s': %w", cfg.DBPath, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database '%s': %w", cfg.DBPath, err)
	}

	// SQLite performs best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	t := &Table{db: db, logger: cfg.Logger}
	if err := t.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	cfg.Logger.Info(context.Background(), "SQLite trade table initialized", map[string]interface{}{"path": cfg.DBPath})
	return t, nil
}

// Close closes the underlying database connection.
func (t *Table) Close() error {
	return t.db.Close()
}

func (t *Table) initializeSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		trade_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		direction INTEGER NOT NULL,
		entry_date TIMESTAMP NOT NULL,
		entry_price REAL NOT NULL,
		stop_loss_price REAL NOT NULL,
		target_price REAL NOT NULL,
		risk_reward_ratio REAL,
		atr_at_entry REAL,
		trade_type TEXT NOT NULL,
		source_signal_date TIMESTAMP,
		status TEXT NOT NULL,
		current_price REAL NOT NULL,
		unrealized_pnl REAL NOT NULL,
		exit_date TIMESTAMP,
		exit_price REAL,
		realized_pnl REAL,
		exit_reason TEXT NOT NULL DEFAULT '',
		holding_period INTEGER,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades (symbol, status);

	-- At most one ACTIVE trade per symbol, enforced at the storage level too.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_active_symbol
	ON trades (symbol) WHERE status = 'ACTIVE';
	`
	_, err := t.db.Exec(schema)
	return err
}

// tradeColumns is the column list shared by the load query and the insert.
const tradeColumns = `trade_id, symbol, direction, entry_date, entry_price, stop_loss_price,
	target_price, risk_reward_ratio, atr_at_entry, trade_type, source_signal_date, status,
	current_price, unrealized_pnl, exit_date, exit_price, realized_pnl, exit_reason,
	holding_period, notes, created_at, updated_at`

// LoadAll retrieves every trade row ordered by creation time.
func (t *Table) LoadAll(ctx context.Context) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades ORDER BY created_at ASC, trade_id ASC`

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w: %w", ports.ErrStorageFailed, err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w: %w", ports.ErrStorageFailed, err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w: %w", ports.ErrStorageFailed, err)
	}
	if trades == nil {
		trades = []*domain.Trade{}
	}
	return trades, nil
}

// ReplaceAll overwrites the trades table with exactly the given rows inside
// a single transaction.
func (t *Table) ReplaceAll(ctx context.Context, trades []*domain.Trade) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrStorageFailed, err)
	}
	defer tx.Rollback() // no-op after a successful commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM trades`); err != nil {
		return fmt.Errorf("failed to clear trades table: %w: %w", ports.ErrStorageFailed, err)
	}

	insert := `INSERT INTO trades (` + tradeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w: %w", ports.ErrStorageFailed, err)
	}
	defer stmt.Close()

	for _, trade := range trades {
		_, err := stmt.ExecContext(ctx,
			trade.ID,
			trade.Symbol,
			int(trade.Direction),
			trade.EntryDate,
			trade.EntryPrice,
			trade.StopLossPrice,
			trade.TargetPrice,
			nullFloat(trade.RiskRewardRatio),
			nullFloat(trade.ATRAtEntry),
			string(trade.Type),
			nullTime(trade.SourceSignalDate),
			string(trade.Status),
			trade.CurrentPrice,
			trade.UnrealizedPNL,
			nullTime(trade.ExitDate),
			nullFloat(trade.ExitPrice),
			nullFloat(trade.RealizedPNL),
			trade.ExitReason,
			nullInt(trade.HoldingDays),
			trade.Notes,
			trade.CreatedAt,
			trade.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert trade '%s': %w: %w", trade.ID, ports.ErrStorageFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trade table write: %w: %w", ports.ErrStorageFailed, err)
	}
	t.logger.Debug(ctx, "Trade table written", map[string]interface{}{"rows": len(trades)})
	return nil
}

// scanner defines an interface for scanning rows (works for *sql.Row and *sql.Rows)
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.Trade, error) {
	trade := &domain.Trade{}
	var (
		direction        int
		tradeType        string
		status           string
		riskReward       sql.NullFloat64
		atrAtEntry       sql.NullFloat64
		sourceSignalDate sql.NullTime
		exitDate         sql.NullTime
		exitPrice        sql.NullFloat64
		realizedPNL      sql.NullFloat64
		holdingPeriod    sql.NullInt64
	)

	err := s.Scan(
		&trade.ID,
		&trade.Symbol,
		&direction,
		&trade.EntryDate,
		&trade.EntryPrice,
		&trade.StopLossPrice,
		&trade.TargetPrice,
		&riskReward,
		&atrAtEntry,
		&tradeType,
		&sourceSignalDate,
		&status,
		&trade.CurrentPrice,
		&trade.UnrealizedPNL,
		&exitDate,
		&exitPrice,
		&realizedPNL,
		&trade.ExitReason,
		&holdingPeriod,
		&trade.Notes,
		&trade.CreatedAt,
		&trade.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	trade.Direction = domain.Direction(direction)
	trade.Type = domain.TradeType(tradeType)
	trade.Status = domain.TradeStatus(status)
	trade.EntryDate = trade.EntryDate.UTC()
	trade.CreatedAt = trade.CreatedAt.UTC()
	trade.UpdatedAt = trade.UpdatedAt.UTC()
	if riskReward.Valid {
		trade.RiskRewardRatio = &riskReward.Float64
	}
	if atrAtEntry.Valid {
		trade.ATRAtEntry = &atrAtEntry.Float64
	}
	if sourceSignalDate.Valid {
		trade.SourceSignalDate = sourceSignalDate.Time.UTC()
	}
	if exitDate.Valid {
		trade.ExitDate = exitDate.Time.UTC()
	}
	if exitPrice.Valid {
		trade.ExitPrice = &exitPrice.Float64
	}
	if realizedPNL.Valid {
		trade.RealizedPNL = &realizedPNL.Float64
	}
	if holdingPeriod.Valid {
		days := int(holdingPeriod.Int64)
		trade.HoldingDays = &days
	}
	return trade, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(v time.Time) sql.NullTime {
	if v.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v, Valid: true}
}
