// Package analytics derives performance summaries from the closed rows of
// the trade ledger.
package analytics

import (
	"math"
	"sort"
	"time"

	"signalTracker/internal/domain"
)

// Metrics holds performance figures for one group of closed trades.
type Metrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int     // break-even closes count as losses
	WinRate       float64 // fraction of closed trades with positive P&L
	TotalPNL      float64
	GrossProfit   float64 // sum of winning P&L
	GrossLoss     float64 // sum of losing P&L, zero or negative
	AverageWin    float64
	AverageLoss   float64
	ProfitFactor  float64 // gross profit over absolute gross loss; zero when nothing was lost
}

// MonthlyReport summarizes every trade closed in one calendar month, split
// by how the trade entered the ledger.
type MonthlyReport struct {
	Year  int
	Month time.Month

	Combined       Metrics
	TrackedSignals Metrics
	ManualPicks    Metrics

	// Trades lists the contributing closed trades in exit date order.
	Trades []*domain.Trade
}

// Monthly builds the performance report for the given month. Only CLOSED
// trades with an exit date in that month contribute; ACTIVE trades are
// ignored regardless of when they were entered.
func Monthly(trades []*domain.Trade, year int, month time.Month) *MonthlyReport {
	report := &MonthlyReport{Year: year, Month: month}

	var closed []*domain.Trade
	for _, t := range trades {
		if t.Status != domain.StatusClosed || t.RealizedPNL == nil {
			continue
		}
		if t.ExitDate.Year() != year || t.ExitDate.Month() != month {
			continue
		}
		closed = append(closed, t)
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ExitDate.Before(closed[j].ExitDate)
	})

	report.Trades = closed
	report.Combined = calculate(closed)
	report.TrackedSignals = calculate(filterByType(closed, domain.TypeSignal))
	report.ManualPicks = calculate(filterByType(closed, domain.TypeManual))
	return report
}

func filterByType(trades []*domain.Trade, tradeType domain.TradeType) []*domain.Trade {
	var out []*domain.Trade
	for _, t := range trades {
		if t.Type == tradeType {
			out = append(out, t)
		}
	}
	return out
}

func calculate(trades []*domain.Trade) Metrics {
	var m Metrics
	for _, t := range trades {
		pnl := *t.RealizedPNL
		m.TotalTrades++
		m.TotalPNL += pnl
		if pnl > 0 {
			m.WinningTrades++
			m.GrossProfit += pnl
		} else {
			m.LosingTrades++
			m.GrossLoss += pnl
		}
	}
	if m.TotalTrades == 0 {
		return m
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AverageWin = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = m.GrossLoss / float64(m.LosingTrades)
	}
	if m.GrossLoss != 0 {
		m.ProfitFactor = m.GrossProfit / math.Abs(m.GrossLoss)
	}
	return m
}
