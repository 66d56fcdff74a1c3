package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"crypto-tracker/internal/domain"
	"crypto-tracker/internal/storage"
)

// PriceStore implements storage.Store using PostgreSQL.
type PriceStore struct {
	pool *Pool
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(pool *Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.Store = (*PriceStore)(nil)

// txWriter writes through an open transaction.
type txWriter struct {
	tx pgx.Tx
}

// UpsertLatest inserts or replaces the snapshot row for r.Symbol.
func (w *txWriter) UpsertLatest(ctx context.Context, r *domain.AssetRecord, at time.Time) error {
	if r == nil || r.Symbol == "" {
		return storage.ErrInvalidInput
	}
	snap := domain.NewSnapshot(r, at)

	query := `
		INSERT INTO cryptos (
			symbol, name, price, market_cap, volume_24h, change_24h,
			change_direction, image_url, rank, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			market_cap = EXCLUDED.market_cap,
			volume_24h = EXCLUDED.volume_24h,
			change_24h = EXCLUDED.change_24h,
			change_direction = EXCLUDED.change_direction,
			image_url = EXCLUDED.image_url,
			rank = EXCLUDED.rank,
			last_updated = EXCLUDED.last_updated
	`

	_, err := w.tx.Exec(ctx, query,
		snap.Symbol,
		snap.Name,
		snap.Price,
		snap.MarketCap,
		snap.Volume24h,
		snap.Change24h,
		string(snap.ChangeDirection),
		snap.ImageURL,
		snap.Rank,
		snap.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert crypto %s: %w", snap.Symbol, err)
	}
	return nil
}

// AppendHistory adds one history point.
func (w *txWriter) AppendHistory(ctx context.Context, r *domain.AssetRecord, at time.Time) error {
	if r == nil || r.Symbol == "" {
		return storage.ErrInvalidInput
	}
	p := domain.NewHistoryPoint(r, at)

	query := `
		INSERT INTO price_history (symbol, price, market_cap, volume_24h, timestamp)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := w.tx.Exec(ctx, query, p.Symbol, p.Price, p.MarketCap, p.Volume24h, p.Timestamp); err != nil {
		return fmt.Errorf("insert price history %s: %w", p.Symbol, err)
	}
	return nil
}

// WithinTx runs fn inside a transaction; it commits when fn returns nil.
func (s *PriceStore) WithinTx(ctx context.Context, fn func(w storage.RecordWriter) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&txWriter{tx: tx})
	})
}

// PruneToMembership deletes snapshot rows whose symbol is not in symbols.
func (s *PriceStore) PruneToMembership(ctx context.Context, symbols []string) (int64, error) {
	if len(symbols) == 0 {
		return 0, nil
	}

	query := `DELETE FROM cryptos WHERE NOT (symbol = ANY($1))`

	tag, err := s.pool.Exec(ctx, query, symbols)
	if err != nil {
		return 0, fmt.Errorf("prune cryptos: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PruneHistoryBefore deletes history points older than cutoff.
func (s *PriceStore) PruneHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM price_history WHERE timestamp < $1`

	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune price history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListLatest returns all snapshot rows ordered by market cap DESC.
func (s *PriceStore) ListLatest(ctx context.Context) ([]*domain.Snapshot, error) {
	query := `
		SELECT symbol, name, price, market_cap, volume_24h, change_24h,
			change_direction, image_url, rank, last_updated
		FROM cryptos
		ORDER BY market_cap DESC, symbol ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cryptos: %w", err)
	}
	defer rows.Close()

	var result []*domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crypto: %w", err)
		}
		result = append(result, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cryptos: %w", err)
	}
	return result, nil
}

// GetLatest returns the snapshot for symbol. Returns ErrNotFound if not exists.
func (s *PriceStore) GetLatest(ctx context.Context, symbol string) (*domain.Snapshot, error) {
	query := `
		SELECT symbol, name, price, market_cap, volume_24h, change_24h,
			change_direction, image_url, rank, last_updated
		FROM cryptos
		WHERE symbol = $1
	`

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, symbol))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get crypto %s: %w", symbol, err)
	}
	return snap, nil
}

// GetHistory returns up to limit points for symbol, newest first.
func (s *PriceStore) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.HistoryPoint, error) {
	query := `
		SELECT symbol, price, market_cap, volume_24h, timestamp
		FROM price_history
		WHERE symbol = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, symbol, storage.HistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("get price history %s: %w", symbol, err)
	}
	defer rows.Close()

	var result []*domain.HistoryPoint
	for rows.Next() {
		var p domain.HistoryPoint
		if err := rows.Scan(&p.Symbol, &p.Price, &p.MarketCap, &p.Volume24h, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history: %w", err)
	}
	return result, nil
}

// Close closes the pool.
func (s *PriceStore) Close() error {
	s.pool.Close()
	return nil
}

func scanSnapshot(row pgx.Row) (*domain.Snapshot, error) {
	var (
		snap      domain.Snapshot
		direction string
	)
	err := row.Scan(
		&snap.Symbol,
		&snap.Name,
		&snap.Price,
		&snap.MarketCap,
		&snap.Volume24h,
		&snap.Change24h,
		&direction,
		&snap.ImageURL,
		&snap.Rank,
		&snap.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	snap.ChangeDirection = domain.Direction(direction)
	return &snap, nil
}
