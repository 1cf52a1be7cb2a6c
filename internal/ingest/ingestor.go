// Package ingest turns scanner signal batches into tracked trades. A batch
// is one JSON document per scan run: an overall top signal plus optional
// per-segment signals, any of which may have found nothing.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"signalTracker/internal/domain"
	"signalTracker/internal/ports"
)

// Skip reasons recorded in the run report.
const (
	SkipAlreadyTracked   = "already tracked"
	SkipDuplicateInBatch = "duplicate in batch"
)

// TrackingStore is the slice of the tracking store the ingestor drives.
type TrackingStore interface {
	FindActiveBySymbol(ctx context.Context, symbol string) (*domain.Trade, error)
	AddTrackedSignal(ctx context.Context, sig domain.Signal) (*domain.Trade, error)
	UpdateActiveTrades(ctx context.Context) (int, error)
}

// Ingestor reads one signal batch and creates trades for every candidate
// not already tracked.
type Ingestor struct {
	store  TrackingStore
	logger ports.Logger
}

// New creates an ingestor instance.
func New(store TrackingStore, logger ports.Logger) (*Ingestor, error) {
	if store == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for ingestor")
	}
	return &Ingestor{store: store, logger: logger}, nil
}

// Report summarizes one ingestion run. Every candidate that carried a
// signal lands in exactly one of Created, Skipped, or Failed.
type Report struct {
	BatchPath string
	DryRun    bool
	Created   []CreatedEntry
	Skipped   []SkippedEntry
	Failed    []FailedEntry
	// Revalued counts trades refreshed by the post-create valuation pass.
	// Always zero on dry runs.
	Revalued int
}

// CreatedEntry records one newly tracked candidate. TradeID is empty on dry
// runs, where no id is ever derived.
type CreatedEntry struct {
	TradeID string
	Symbol  string
	Segment string // "" for the overall signal
}

// SkippedEntry records a candidate that was deliberately not tracked.
type SkippedEntry struct {
	Symbol  string
	Segment string
	Reason  string
}

// FailedEntry records a candidate the store rejected.
type FailedEntry struct {
	Symbol  string
	Segment string
	Err     error
}

// batchDocument is the on-disk shape of one scanner run.
type batchDocument struct {
	OverallTopSignal *signalBlock            `json:"overall_top_signal"`
	SegmentedSignals map[string]*signalBlock `json:"segmented_signals"`
}

type signalBlock struct {
	SignalFound     bool    `json:"signal_found"`
	Symbol          string  `json:"symbol"`
	EntryPrice      float64 `json:"entry_price"`
	StopLossPrice   float64 `json:"stop_loss_price"`
	TargetPrice     float64 `json:"target_price"`
	Direction       int     `json:"direction"`
	ATR             float64 `json:"atr"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
	Date            string  `json:"date"`
	Notes           string  `json:"notes"`
}

type candidate struct {
	segment string
	signal  domain.Signal
}

// Track ingests the signal batch at path. With trackAll false only the
// overall top signal is considered; true adds every segment signal, overall
// first and segments in name order, with the first candidate winning a
// symbol that appears more than once. The whole batch is validated before
// anything is written, so a malformed document creates no trades. Dry runs
// build the same report without touching the store.
func (i *Ingestor) Track(ctx context.Context, path string, trackAll, dryRun bool) (*Report, error) {
	doc, err := readBatch(path)
	if err != nil {
		return nil, err
	}
	candidates, err := collectCandidates(doc, trackAll)
	if err != nil {
		return nil, fmt.Errorf("signal batch %s: %w", path, err)
	}

	report := &Report{BatchPath: path, DryRun: dryRun}
	i.logger.Info(ctx, "Ingesting signal batch", map[string]interface{}{
		"path":       path,
		"candidates": len(candidates),
		"trackAll":   trackAll,
		"dryRun":     dryRun,
	})

	claimed := make(map[string]struct{}, len(candidates))
	for _, cand := range candidates {
		symbol := cand.signal.Symbol
		if _, taken := claimed[symbol]; taken {
			report.Skipped = append(report.Skipped, SkippedEntry{Symbol: symbol, Segment: cand.segment, Reason: SkipDuplicateInBatch})
			continue
		}
		claimed[symbol] = struct{}{}

		open, err := i.store.FindActiveBySymbol(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("check open trade for %s: %w", symbol, err)
		}
		if open != nil {
			i.logger.Debug(ctx, "Symbol already tracked, skipping", map[string]interface{}{"symbol": symbol, "tradeID": open.ID})
			report.Skipped = append(report.Skipped, SkippedEntry{Symbol: symbol, Segment: cand.segment, Reason: SkipAlreadyTracked})
			continue
		}

		if dryRun {
			report.Created = append(report.Created, CreatedEntry{Symbol: symbol, Segment: cand.segment})
			continue
		}

		trade, err := i.store.AddTrackedSignal(ctx, cand.signal)
		if err != nil {
			if errors.Is(err, ports.ErrDuplicateTrade) {
				// The store is the authority on the one-active-trade
				// invariant; a duplicate it rejects is a skip, not a failure.
				report.Skipped = append(report.Skipped, SkippedEntry{Symbol: symbol, Segment: cand.segment, Reason: SkipAlreadyTracked})
				continue
			}
			i.logger.Error(ctx, err, "Failed to track candidate", map[string]interface{}{"symbol": symbol, "segment": cand.segment})
			report.Failed = append(report.Failed, FailedEntry{Symbol: symbol, Segment: cand.segment, Err: err})
			continue
		}
		report.Created = append(report.Created, CreatedEntry{TradeID: trade.ID, Symbol: symbol, Segment: cand.segment})
	}

	if !dryRun && len(report.Created) > 0 {
		// Give fresh trades an immediate mark. The trades are already
		// tracked, so trouble here is logged rather than returned.
		updated, err := i.store.UpdateActiveTrades(ctx)
		if err != nil {
			i.logger.Warn(ctx, "Post-create revaluation failed", map[string]interface{}{"error": err.Error()})
		} else {
			report.Revalued = updated
		}
	}

	i.logger.Info(ctx, "Signal batch ingested", map[string]interface{}{
		"created": len(report.Created),
		"skipped": len(report.Skipped),
		"failed":  len(report.Failed),
	})
	return report, nil
}

// LatestBatch resolves the newest daily_signal_*.json in dir. File names
// embed the scan date, so lexical order is chronological.
func LatestBatch(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "daily_signal_*.json"))
	if err != nil {
		return "", fmt.Errorf("scan signal directory '%s': %w", dir, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no signal batches in '%s': %w", dir, ports.ErrNotFound)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

func readBatch(path string) (*batchDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signal batch '%s': %w: %w", path, ports.ErrInvalidInput, err)
	}
	var doc batchDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode signal batch '%s': %w: %w", path, ports.ErrInvalidInput, err)
	}
	return &doc, nil
}

// collectCandidates pulls every in-scope signal out of the document and
// validates it up front, so a malformed batch aborts before any store
// mutation.
func collectCandidates(doc *batchDocument, trackAll bool) ([]candidate, error) {
	var out []candidate

	sig, err := toSignal(doc.OverallTopSignal, "")
	if err != nil {
		return nil, err
	}
	if sig != nil {
		out = append(out, candidate{signal: *sig})
	}

	if trackAll {
		names := make([]string, 0, len(doc.SegmentedSignals))
		for name := range doc.SegmentedSignals {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sig, err := toSignal(doc.SegmentedSignals[name], name)
			if err != nil {
				return nil, err
			}
			if sig != nil {
				out = append(out, candidate{segment: name, signal: *sig})
			}
		}
	}
	return out, nil
}

// toSignal converts one block into a domain signal. Blocks without a signal
// (nil, or signal_found false) come back nil: a scan that found nothing is
// not an error.
func toSignal(block *signalBlock, segment string) (*domain.Signal, error) {
	if block == nil || !block.SignalFound {
		return nil, nil
	}
	where := "overall signal"
	if segment != "" {
		where = fmt.Sprintf("segment %q signal", segment)
	}

	if strings.TrimSpace(block.Symbol) == "" {
		return nil, fmt.Errorf("%s: missing symbol: %w", where, ports.ErrInvalidInput)
	}
	if block.EntryPrice <= 0 || block.StopLossPrice <= 0 || block.TargetPrice <= 0 {
		return nil, fmt.Errorf("%s for %s: entry, stop, and target prices are all required: %w", where, block.Symbol, ports.ErrInvalidInput)
	}
	dir := domain.Direction(block.Direction)
	if !dir.IsValid() {
		return nil, fmt.Errorf("%s for %s: direction must be +1 or -1, got %d: %w", where, block.Symbol, block.Direction, ports.ErrInvalidInput)
	}

	var signalDate time.Time
	if block.Date != "" {
		parsed, err := time.Parse("2006-01-02", block.Date)
		if err != nil {
			return nil, fmt.Errorf("%s for %s: date %q is not YYYY-MM-DD: %w", where, block.Symbol, block.Date, ports.ErrInvalidInput)
		}
		signalDate = parsed
	}

	return &domain.Signal{
		Symbol:          domain.NormalizeSymbol(block.Symbol),
		Direction:       dir,
		EntryPrice:      block.EntryPrice,
		StopLossPrice:   block.StopLossPrice,
		TargetPrice:     block.TargetPrice,
		RiskRewardRatio: block.RiskRewardRatio,
		ATR:             block.ATR,
		SignalDate:      signalDate,
		Segment:         segment,
		Notes:           block.Notes,
	}, nil
}
