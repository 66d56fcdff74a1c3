package reporting

import (
	"time"

	"crypto-tracker/internal/domain"
)

// Leaderboard is a rendered view of the latest snapshot table.
type Leaderboard struct {
	GeneratedAt  time.Time
	HistoryLimit int
	Window       time.Duration
	Entries      []Entry // ordered by market cap DESC
}

// Entry is one asset in the leaderboard with its recent history.
type Entry struct {
	Snapshot *domain.Snapshot
	History  []*domain.HistoryPoint // newest first

	// WindowChange is the price change in percent over the leaderboard
	// window, measured against the oldest loaded point when history is
	// shorter. Valid only when HasWindow is set.
	WindowChange float64
	HasWindow    bool
}

// Totals sums market cap and volume over all entries.
func (l *Leaderboard) Totals() (marketCap, volume float64) {
	for _, e := range l.Entries {
		marketCap += e.Snapshot.MarketCap
		volume += e.Snapshot.Volume24h
	}
	return marketCap, volume
}
