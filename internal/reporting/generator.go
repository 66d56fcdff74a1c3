package reporting

import (
	"context"
	"fmt"
	"time"

	"crypto-tracker/internal/domain"
	"crypto-tracker/internal/lookup"
	"crypto-tracker/internal/storage"
)

// Reader is the subset of storage.Store used for reports.
type Reader interface {
	ListLatest(ctx context.Context) ([]*domain.Snapshot, error)
	GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.HistoryPoint, error)
}

// DefaultWindow is the lookback used for the window change column.
const DefaultWindow = 24 * time.Hour

// Generator produces leaderboard reports from stored data.
type Generator struct {
	store        Reader
	historyLimit int
	window       time.Duration
	now          func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(store Reader) *Generator {
	return &Generator{
		store:        store,
		historyLimit: storage.DefaultHistoryLimit,
		window:       DefaultWindow,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithHistoryLimit sets how many history points are loaded per asset.
func (g *Generator) WithHistoryLimit(limit int) *Generator {
	g.historyLimit = storage.HistoryLimit(limit)
	return g
}

// WithWindow sets the lookback for the window change column.
func (g *Generator) WithWindow(window time.Duration) *Generator {
	if window > 0 {
		g.window = window
	}
	return g
}

// Generate builds a leaderboard from the latest snapshots.
func (g *Generator) Generate(ctx context.Context) (*Leaderboard, error) {
	snaps, err := g.store.ListLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("list latest: %w", err)
	}

	entries := make([]Entry, 0, len(snaps))
	for _, s := range snaps {
		history, err := g.store.GetHistory(ctx, s.Symbol, g.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("get history %s: %w", s.Symbol, err)
		}
		e := Entry{Snapshot: s, History: history}
		if change, err := lookup.ChangeOver(history, g.window); err == nil {
			e.WindowChange, e.HasWindow = change, true
		}
		entries = append(entries, e)
	}

	return &Leaderboard{
		GeneratedAt:  g.now(),
		HistoryLimit: g.historyLimit,
		Window:       g.window,
		Entries:      entries,
	}, nil
}
