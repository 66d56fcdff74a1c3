package clickhouse

import (
	"context"
	"fmt"
	"time"

	"crypto-tracker/internal/domain"
)

// ArchivedPoint is one archived history sample.
type ArchivedPoint struct {
	CycleID   string
	Symbol    string
	Name      string
	Price     float64
	MarketCap float64
	Volume24h float64
	Change24h float64
	Rank      *int
	Timestamp time.Time
}

// HistoryArchive keeps every saved record in price_history_archive.
// Rows are never pruned by age.
type HistoryArchive struct {
	conn *Conn
}

// NewHistoryArchive creates a new HistoryArchive.
func NewHistoryArchive(conn *Conn) *HistoryArchive {
	return &HistoryArchive{conn: conn}
}

// Name identifies the archive in logs and metrics.
func (a *HistoryArchive) Name() string { return "clickhouse_archive" }

// Publish appends the cycle's saved records as one batch.
func (a *HistoryArchive) Publish(ctx context.Context, report *domain.CycleReport) error {
	if report == nil || len(report.Saved) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO price_history_archive (
			cycle_id, symbol, name, price, market_cap, volume_24h, change_24h, rank, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	ts := uint64(report.At.UnixMilli())
	for _, r := range report.Saved {
		var rank *uint16
		if r.Rank != nil && *r.Rank >= 0 {
			v := uint16(*r.Rank)
			rank = &v
		}
		err = batch.Append(report.ID, r.Symbol, r.Name, r.Price, r.MarketCap, r.Volume24h, r.Change24h, rank, ts)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySymbol returns archived points for symbol within [start, end], oldest first.
func (a *HistoryArchive) GetBySymbol(ctx context.Context, symbol string, start, end time.Time) ([]*ArchivedPoint, error) {
	rows, err := a.conn.Query(ctx, `
		SELECT cycle_id, symbol, name, price, market_cap, volume_24h, change_24h, rank, timestamp_ms
		FROM price_history_archive
		WHERE symbol = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`, symbol, uint64(start.UnixMilli()), uint64(end.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var result []*ArchivedPoint
	for rows.Next() {
		var (
			p    ArchivedPoint
			rank *uint16
			ts   uint64
		)
		if err := rows.Scan(&p.CycleID, &p.Symbol, &p.Name, &p.Price, &p.MarketCap, &p.Volume24h, &p.Change24h, &rank, &ts); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		if rank != nil {
			r := int(*rank)
			p.Rank = &r
		}
		p.Timestamp = time.UnixMilli(int64(ts)).UTC()
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive rows: %w", err)
	}
	return result, nil
}
