// Package sqlite implements storage.Store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"crypto-tracker/internal/domain"
	"crypto-tracker/internal/storage"
)

// DefaultPath is the database file used when none is configured.
const DefaultPath = "crypto_data.db"

var pragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA busy_timeout=5000;",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cryptos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		price REAL NOT NULL DEFAULT 0,
		market_cap REAL NOT NULL DEFAULT 0,
		volume_24h REAL NOT NULL DEFAULT 0,
		change_24h REAL NOT NULL DEFAULT 0,
		change_direction TEXT NOT NULL DEFAULT 'flat',
		image_url TEXT NOT NULL DEFAULT '',
		rank INTEGER,
		last_updated INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		price REAL NOT NULL DEFAULT 0,
		market_cap REAL NOT NULL DEFAULT 0,
		volume_24h REAL NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_price_history_symbol_timestamp ON price_history (symbol, timestamp);`,
}

// PriceStore implements storage.Store using SQLite.
// Timestamps are stored as Unix milliseconds.
type PriceStore struct {
	db *sql.DB
}

// Compile-time interface check.
var _ storage.Store = (*PriceStore)(nil)

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*PriceStore, error) {
	if path == "" {
		path = DefaultPath
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	for _, stmt := range append(pragmas, schema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite (%s): %w", firstLine(stmt), err)
		}
	}
	return &PriceStore{db: db}, nil
}

type txWriter struct {
	tx *sql.Tx
}

func (w *txWriter) UpsertLatest(ctx context.Context, r *domain.AssetRecord, at time.Time) error {
	if r == nil || r.Symbol == "" {
		return storage.ErrInvalidInput
	}
	snap := domain.NewSnapshot(r, at)

	var rank sql.NullInt64
	if snap.Rank != nil {
		rank = sql.NullInt64{Int64: int64(*snap.Rank), Valid: true}
	}

	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO cryptos (
			symbol, name, price, market_cap, volume_24h, change_24h,
			change_direction, image_url, rank, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			market_cap = excluded.market_cap,
			volume_24h = excluded.volume_24h,
			change_24h = excluded.change_24h,
			change_direction = excluded.change_direction,
			image_url = excluded.image_url,
			rank = excluded.rank,
			last_updated = excluded.last_updated`,
		snap.Symbol, snap.Name, snap.Price, snap.MarketCap, snap.Volume24h, snap.Change24h,
		string(snap.ChangeDirection), snap.ImageURL, rank, snap.LastUpdated.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert crypto %s: %w", snap.Symbol, err)
	}
	return nil
}

func (w *txWriter) AppendHistory(ctx context.Context, r *domain.AssetRecord, at time.Time) error {
	if r == nil || r.Symbol == "" {
		return storage.ErrInvalidInput
	}
	p := domain.NewHistoryPoint(r, at)

	_, err := w.tx.ExecContext(ctx,
		"INSERT INTO price_history (symbol, price, market_cap, volume_24h, timestamp) VALUES (?, ?, ?, ?, ?)",
		p.Symbol, p.Price, p.MarketCap, p.Volume24h, p.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert price history %s: %w", p.Symbol, err)
	}
	return nil
}

// WithinTx runs fn inside a transaction; it commits when fn returns nil.
func (s *PriceStore) WithinTx(ctx context.Context, fn func(w storage.RecordWriter) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&txWriter{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// PruneToMembership deletes snapshot rows whose symbol is not in symbols.
func (s *PriceStore) PruneToMembership(ctx context.Context, symbols []string) (int64, error) {
	if len(symbols) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	args := make([]any, len(symbols))
	for i, sym := range symbols {
		args[i] = sym
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM cryptos WHERE symbol NOT IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("prune cryptos: %w", err)
	}
	return res.RowsAffected()
}

// PruneHistoryBefore deletes history points older than cutoff.
func (s *PriceStore) PruneHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM price_history WHERE timestamp < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune price history: %w", err)
	}
	return res.RowsAffected()
}

const snapshotColumns = `symbol, name, price, market_cap, volume_24h, change_24h,
	change_direction, image_url, rank, last_updated`

// ListLatest returns all snapshot rows ordered by market cap DESC.
func (s *PriceStore) ListLatest(ctx context.Context) ([]*domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+snapshotColumns+" FROM cryptos ORDER BY market_cap DESC, symbol ASC")
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
	return result, rows.Err()
}

// GetLatest returns the snapshot for symbol. Returns ErrNotFound if not exists.
func (s *PriceStore) GetLatest(ctx context.Context, symbol string) (*domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+snapshotColumns+" FROM cryptos WHERE symbol = ?", symbol)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get crypto %s: %w", symbol, err)
	}
	return snap, nil
}

// GetHistory returns up to limit points for symbol, newest first.
func (s *PriceStore) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.HistoryPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, price, market_cap, volume_24h, timestamp
		FROM price_history
		WHERE symbol = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		symbol, storage.HistoryLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("get price history %s: %w", symbol, err)
	}
	defer rows.Close()

	var result []*domain.HistoryPoint
	for rows.Next() {
		var (
			p  domain.HistoryPoint
			ms int64
		)
		if err := rows.Scan(&p.Symbol, &p.Price, &p.MarketCap, &p.Volume24h, &ms); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		p.Timestamp = time.UnixMilli(ms).UTC()
		result = append(result, &p)
	}
	return result, rows.Err()
}

// Close closes the database.
func (s *PriceStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*domain.Snapshot, error) {
	var (
		snap      domain.Snapshot
		direction string
		rank      sql.NullInt64
		updated   int64
	)
	err := row.Scan(
		&snap.Symbol, &snap.Name, &snap.Price, &snap.MarketCap, &snap.Volume24h, &snap.Change24h,
		&direction, &snap.ImageURL, &rank, &updated,
	)
	if err != nil {
		return nil, err
	}
	snap.ChangeDirection = domain.Direction(direction)
	if rank.Valid {
		r := int(rank.Int64)
		snap.Rank = &r
	}
	snap.LastUpdated = time.UnixMilli(updated).UTC()
	return &snap, nil
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(stmt), "\n")
	return line
}
