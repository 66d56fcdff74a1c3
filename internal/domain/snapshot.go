package domain

import "time"

// Snapshot is the single current-state row per symbol.
// Corresponds to cryptos table.
type Snapshot struct {
	Symbol          string    // unique key
	Name            string    // display name
	Price           float64   // USD price
	MarketCap       float64   // USD market capitalisation
	Volume24h       float64   // USD 24h volume
	Change24h       float64   // signed percent
	ChangeDirection Direction // up/down/flat
	ImageURL        string    // logo source
	Rank            *int      // leaderboard position (nullable)
	LastUpdated     time.Time // extraction time of the cycle that wrote the row
}

// NewSnapshot builds the snapshot row written for a record at the given time.
func NewSnapshot(r *AssetRecord, at time.Time) *Snapshot {
	s := &Snapshot{
		Symbol:          r.Symbol,
		Name:            r.Name,
		Price:           r.Price,
		MarketCap:       r.MarketCap,
		Volume24h:       r.Volume24h,
		Change24h:       r.Change24h,
		ChangeDirection: r.ChangeDirection,
		ImageURL:        r.ImageURL,
		LastUpdated:     at,
	}
	if r.Rank != nil {
		rank := *r.Rank
		s.Rank = &rank
	}
	if !s.ChangeDirection.IsValid() {
		s.ChangeDirection = DirectionOf(s.Change24h)
	}
	return s
}

// HistoryPoint is one immutable timestamped sample.
// Corresponds to price_history table; never updated or deduplicated.
type HistoryPoint struct {
	Symbol    string    // soft reference to Snapshot.Symbol
	Price     float64   // USD price
	MarketCap float64   // USD market capitalisation
	Volume24h float64   // USD 24h volume
	Timestamp time.Time // extraction time
}

// NewHistoryPoint builds the history sample appended for a record at the given time.
func NewHistoryPoint(r *AssetRecord, at time.Time) *HistoryPoint {
	return &HistoryPoint{
		Symbol:    r.Symbol,
		Price:     r.Price,
		MarketCap: r.MarketCap,
		Volume24h: r.Volume24h,
		Timestamp: at,
	}
}

// CycleReport summarizes one successful extraction cycle for downstream consumers.
type CycleReport struct {
	ID      string         // deterministic cycle identifier
	At      time.Time      // cycle timestamp shared by every write
	Saved   []*AssetRecord // records persisted this cycle, in extraction order
	Members []string       // symbols kept by membership pruning
	Pruned  int64          // snapshot rows removed by membership pruning
}
