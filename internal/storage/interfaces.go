package storage

import (
	"context"
	"time"

	"crypto-tracker/internal/domain"
)

// DefaultHistoryLimit is the number of history points returned when no limit is given.
const DefaultHistoryLimit = 24

// RecordWriter writes one record inside a store transaction.
type RecordWriter interface {
	// UpsertLatest inserts or replaces the snapshot row for r.Symbol with LastUpdated = at.
	UpsertLatest(ctx context.Context, r *domain.AssetRecord, at time.Time) error

	// AppendHistory adds one history point for r stamped with at. Never deduplicates.
	AppendHistory(ctx context.Context, r *domain.AssetRecord, at time.Time) error
}

// Store provides access to the latest snapshot table and the price history.
type Store interface {
	// WithinTx runs fn in a single transaction. Writes made through the
	// RecordWriter are committed only if fn returns nil.
	WithinTx(ctx context.Context, fn func(w RecordWriter) error) error

	// PruneToMembership deletes snapshot rows whose symbol is not in symbols.
	// History is untouched. An empty set deletes nothing and returns 0.
	PruneToMembership(ctx context.Context, symbols []string) (int64, error)

	// PruneHistoryBefore deletes history points with timestamp < cutoff.
	// Snapshots are untouched.
	PruneHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// ListLatest returns all snapshot rows ordered by market cap DESC.
	ListLatest(ctx context.Context) ([]*domain.Snapshot, error)

	// GetLatest returns the snapshot for symbol. Returns ErrNotFound if not exists.
	GetLatest(ctx context.Context, symbol string) (*domain.Snapshot, error)

	// GetHistory returns up to limit points for symbol, newest first.
	// limit <= 0 means DefaultHistoryLimit.
	GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.HistoryPoint, error)

	// Close releases the underlying resources.
	Close() error
}

// HistoryLimit normalizes a requested history limit.
func HistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
