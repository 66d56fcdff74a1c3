package domain

import "time"

// SnapshotView is the JSON form of a Snapshot served by the API, cached in
// Redis and pushed over the live feed.
type SnapshotView struct {
	Symbol          string    `json:"symbol"`
	Name            string    `json:"name"`
	Price           float64   `json:"price"`
	MarketCap       float64   `json:"market_cap"`
	Volume24h       float64   `json:"volume_24h"`
	Change24h       float64   `json:"change_24h"`
	ChangeDirection Direction `json:"change_direction"`
	ImageURL        string    `json:"image_url"`
	Rank            *int      `json:"rank,omitempty"`
	LastUpdated     time.Time `json:"last_updated"`
}

// View returns the JSON form of s.
func (s *Snapshot) View() SnapshotView {
	return SnapshotView{
		Symbol:          s.Symbol,
		Name:            s.Name,
		Price:           s.Price,
		MarketCap:       s.MarketCap,
		Volume24h:       s.Volume24h,
		Change24h:       s.Change24h,
		ChangeDirection: s.ChangeDirection,
		ImageURL:        s.ImageURL,
		Rank:            s.Rank,
		LastUpdated:     s.LastUpdated,
	}
}

// Snapshot converts the view back into a Snapshot.
func (v SnapshotView) Snapshot() *Snapshot {
	return &Snapshot{
		Symbol:          v.Symbol,
		Name:            v.Name,
		Price:           v.Price,
		MarketCap:       v.MarketCap,
		Volume24h:       v.Volume24h,
		Change24h:       v.Change24h,
		ChangeDirection: v.ChangeDirection,
		ImageURL:        v.ImageURL,
		Rank:            v.Rank,
		LastUpdated:     v.LastUpdated,
	}
}

// HistoryView is the JSON form of a HistoryPoint.
type HistoryView struct {
	Price     float64   `json:"price"`
	MarketCap float64   `json:"market_cap"`
	Volume24h float64   `json:"volume_24h"`
	Timestamp time.Time `json:"timestamp"`
}

// View returns the JSON form of p.
func (p *HistoryPoint) View() HistoryView {
	return HistoryView{
		Price:     p.Price,
		MarketCap: p.MarketCap,
		Volume24h: p.Volume24h,
		Timestamp: p.Timestamp,
	}
}

// SnapshotViews converts snapshots to their JSON form, preserving order.
func SnapshotViews(snaps []*Snapshot) []SnapshotView {
	views := make([]SnapshotView, len(snaps))
	for i, s := range snaps {
		views[i] = s.View()
	}
	return views
}
