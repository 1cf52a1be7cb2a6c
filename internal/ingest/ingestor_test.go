package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalTracker/internal/domain"
	"signalTracker/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockStore struct {
	active      map[string]*domain.Trade
	addErr      map[string]error // keyed by symbol
	added       []domain.Signal
	findErr     error
	updateErr   error
	updateCalls int
}

func newMockStore() *mockStore {
	return &mockStore{
		active: make(map[string]*domain.Trade),
		addErr: make(map[string]error),
	}
}

func (m *mockStore) FindActiveBySymbol(ctx context.Context, symbol string) (*domain.Trade, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.active[domain.NormalizeSymbol(symbol)], nil
}

func (m *mockStore) AddTrackedSignal(ctx context.Context, sig domain.Signal) (*domain.Trade, error) {
	if err := m.addErr[sig.Symbol]; err != nil {
		return nil, err
	}
	if m.active[sig.Symbol] != nil {
		return nil, fmt.Errorf("%s already tracked: %w", sig.Symbol, ports.ErrDuplicateTrade)
	}
	m.added = append(m.added, sig)
	trade := &domain.Trade{ID: sig.Symbol + "-20250520", Symbol: sig.Symbol, Status: domain.StatusActive}
	m.active[sig.Symbol] = trade
	return trade, nil
}

func (m *mockStore) UpdateActiveTrades(ctx context.Context) (int, error) {
	m.updateCalls++
	if m.updateErr != nil {
		return 0, m.updateErr
	}
	return len(m.added), nil
}

func setupIngestor(t *testing.T) (*Ingestor, *mockStore) {
	t.Helper()
	store := newMockStore()
	ing, err := New(store, &mockLogger{})
	require.NoError(t, err)
	return ing, store
}

func writeBatch(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daily_signal_2025-05-20.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const fullBatch = `{
	"overall_top_signal": {
		"signal_found": true,
		"symbol": "AAPL",
		"entry_price": 150.0,
		"stop_loss_price": 145.0,
		"target_price": 160.0,
		"direction": 1,
		"atr": 3.2,
		"risk_reward_ratio": 2.0,
		"date": "2025-05-19",
		"notes": "breakout"
	},
	"segmented_signals": {
		"tech": {
			"signal_found": true,
			"symbol": "aapl",
			"entry_price": 151.0,
			"stop_loss_price": 146.0,
			"target_price": 161.0,
			"direction": 1,
			"date": "2025-05-19"
		},
		"energy": {
			"signal_found": true,
			"symbol": "XOM",
			"entry_price": 110.0,
			"stop_loss_price": 105.0,
			"target_price": 122.0,
			"direction": 1,
			"date": "2025-05-19"
		},
		"small_cap": {
			"signal_found": false
		}
	}
}`

func TestTrack_OverallOnly(t *testing.T) {
	ing, store := setupIngestor(t)
	path := writeBatch(t, fullBatch)

	report, err := ing.Track(context.Background(), path, false, false)
	require.NoError(t, err)

	require.Len(t, report.Created, 1)
	assert.Equal(t, "AAPL", report.Created[0].Symbol)
	assert.Equal(t, "AAPL-20250520", report.Created[0].TradeID)
	assert.Equal(t, "", report.Created[0].Segment)
	assert.Empty(t, report.Skipped)
	assert.Empty(t, report.Failed)

	// Segment signals stay untouched without -all.
	require.Len(t, store.added, 1)
	sig := store.added[0]
	assert.Equal(t, "AAPL", sig.Symbol)
	assert.Equal(t, domain.Long, sig.Direction)
	assert.Equal(t, 150.0, sig.EntryPrice)
	assert.Equal(t, "2025-05-19", sig.SignalDate.Format("2006-01-02"))
	assert.Equal(t, "breakout", sig.Notes)

	// A live run ends with one revaluation pass.
	assert.Equal(t, 1, store.updateCalls)
	assert.Equal(t, 1, report.Revalued)
}

func TestTrack_AllSegments_FirstWins(t *testing.T) {
	ing, store := setupIngestor(t)
	path := writeBatch(t, fullBatch)

	report, err := ing.Track(context.Background(), path, true, false)
	require.NoError(t, err)

	// Overall claims AAPL before any segment; "tech" loses its copy.
	require.Len(t, report.Created, 2)
	assert.Equal(t, "AAPL", report.Created[0].Symbol)
	assert.Equal(t, "", report.Created[0].Segment)
	assert.Equal(t, "XOM", report.Created[1].Symbol)
	assert.Equal(t, "energy", report.Created[1].Segment)

	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "AAPL", report.Skipped[0].Symbol)
	assert.Equal(t, "tech", report.Skipped[0].Segment)
	assert.Equal(t, SkipDuplicateInBatch, report.Skipped[0].Reason)

	// The winning candidate's levels are the ones tracked.
	assert.Equal(t, 150.0, store.added[0].EntryPrice)
}

func TestTrack_SkipsAlreadyTracked(t *testing.T) {
	ing, store := setupIngestor(t)
	store.active["AAPL"] = &domain.Trade{ID: "AAPL-20250515", Symbol: "AAPL", Status: domain.StatusActive}
	path := writeBatch(t, fullBatch)

	report, err := ing.Track(context.Background(), path, false, false)
	require.NoError(t, err)

	assert.Empty(t, report.Created)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, SkipAlreadyTracked, report.Skipped[0].Reason)
	assert.Empty(t, store.added)
	// Nothing was created, so nothing needs an immediate mark.
	assert.Equal(t, 0, store.updateCalls)
}

func TestTrack_StoreRejectsDuplicate(t *testing.T) {
	ing, store := setupIngestor(t)
	store.addErr["AAPL"] = fmt.Errorf("AAPL already tracked: %w", ports.ErrDuplicateTrade)
	path := writeBatch(t, fullBatch)

	report, err := ing.Track(context.Background(), path, false, false)
	require.NoError(t, err)

	// The pre-check saw nothing, but the store's own rejection still
	// counts as a skip rather than a failure.
	assert.Empty(t, report.Created)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, SkipAlreadyTracked, report.Skipped[0].Reason)
	assert.Empty(t, report.Failed)
}

func TestTrack_FailedCandidateDoesNotAbortRun(t *testing.T) {
	ing, store := setupIngestor(t)
	store.addErr["AAPL"] = fmt.Errorf("levels rejected: %w", ports.ErrInvalidSignal)
	path := writeBatch(t, fullBatch)

	report, err := ing.Track(context.Background(), path, true, false)
	require.NoError(t, err)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, "AAPL", report.Failed[0].Symbol)
	assert.ErrorIs(t, report.Failed[0].Err, ports.ErrInvalidSignal)

	// XOM still lands despite AAPL's failure.
	require.Len(t, report.Created, 1)
	assert.Equal(t, "XOM", report.Created[0].Symbol)
	assert.Equal(t, 1, store.updateCalls)
}

func TestTrack_DryRun(t *testing.T) {
	ing, store := setupIngestor(t)
	path := writeBatch(t, fullBatch)

	report, err := ing.Track(context.Background(), path, true, true)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	require.Len(t, report.Created, 2)
	assert.Equal(t, "", report.Created[0].TradeID)
	require.Len(t, report.Skipped, 1)

	// A dry run must not mutate anything.
	assert.Empty(t, store.added)
	assert.Equal(t, 0, store.updateCalls)
	assert.Equal(t, 0, report.Revalued)
}

func TestTrack_NoSignalFound(t *testing.T) {
	ing, store := setupIngestor(t)
	path := writeBatch(t, `{
		"overall_top_signal": {"signal_found": false},
		"segmented_signals": {"tech": {"signal_found": false}}
	}`)

	report, err := ing.Track(context.Background(), path, true, false)
	require.NoError(t, err)
	assert.Empty(t, report.Created)
	assert.Empty(t, report.Skipped)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 0, store.updateCalls)
}

func TestTrack_MissingOverallBlock(t *testing.T) {
	ing, _ := setupIngestor(t)
	path := writeBatch(t, `{"segmented_signals": {}}`)

	report, err := ing.Track(context.Background(), path, false, false)
	require.NoError(t, err)
	assert.Empty(t, report.Created)
}

func TestTrack_MalformedBatch(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "not json",
			content: `{"overall_top_signal": `,
		},
		{
			name: "missing symbol",
			content: `{"overall_top_signal": {
				"signal_found": true, "symbol": "  ",
				"entry_price": 150.0, "stop_loss_price": 145.0, "target_price": 160.0,
				"direction": 1, "date": "2025-05-19"}}`,
		},
		{
			name: "missing price",
			content: `{"overall_top_signal": {
				"signal_found": true, "symbol": "AAPL",
				"entry_price": 150.0, "target_price": 160.0,
				"direction": 1, "date": "2025-05-19"}}`,
		},
		{
			name: "missing direction",
			content: `{"overall_top_signal": {
				"signal_found": true, "symbol": "AAPL",
				"entry_price": 150.0, "stop_loss_price": 145.0, "target_price": 160.0,
				"date": "2025-05-19"}}`,
		},
		{
			name: "unparseable date",
			content: `{"overall_top_signal": {
				"signal_found": true, "symbol": "AAPL",
				"entry_price": 150.0, "stop_loss_price": 145.0, "target_price": 160.0,
				"direction": 1, "date": "05/19/2025"}}`,
		},
		{
			name: "bad segment aborts whole batch",
			content: `{
				"overall_top_signal": {
					"signal_found": true, "symbol": "AAPL",
					"entry_price": 150.0, "stop_loss_price": 145.0, "target_price": 160.0,
					"direction": 1, "date": "2025-05-19"},
				"segmented_signals": {"tech": {
					"signal_found": true, "symbol": "MSFT",
					"entry_price": 300.0, "stop_loss_price": 290.0, "target_price": 330.0,
					"direction": 7, "date": "2025-05-19"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing, store := setupIngestor(t)
			path := writeBatch(t, tt.content)

			report, err := ing.Track(context.Background(), path, true, false)
			assert.Nil(t, report)
			assert.ErrorIs(t, err, ports.ErrInvalidInput)
			// Validation runs before any mutation.
			assert.Empty(t, store.added)
			assert.Equal(t, 0, store.updateCalls)
		})
	}
}

func TestTrack_MissingFile(t *testing.T) {
	ing, _ := setupIngestor(t)

	report, err := ing.Track(context.Background(), filepath.Join(t.TempDir(), "nope.json"), false, false)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}

func TestTrack_RevaluationFailureIsNotFatal(t *testing.T) {
	ing, store := setupIngestor(t)
	store.updateErr = fmt.Errorf("table busy: %w", ports.ErrStorageFailed)
	path := writeBatch(t, fullBatch)

	report, err := ing.Track(context.Background(), path, false, false)
	require.NoError(t, err)
	require.Len(t, report.Created, 1)
	assert.Equal(t, 0, report.Revalued)
}

func TestLatestBatch(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"daily_signal_2025-05-18.json",
		"daily_signal_2025-05-20.json",
		"daily_signal_2025-05-19.json",
		"backtest_notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644))
	}

	path, err := LatestBatch(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "daily_signal_2025-05-20.json"), path)
}

func TestLatestBatch_EmptyDir(t *testing.T) {
	path, err := LatestBatch(t.TempDir())
	assert.Empty(t, path)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
