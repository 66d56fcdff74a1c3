package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"crypto-tracker/internal/domain"
	"crypto-tracker/internal/storage"
)

// PriceStore is an in-memory implementation of storage.Store.
type PriceStore struct {
	mu      sync.RWMutex
	latest  map[string]*domain.Snapshot // keyed by symbol
	history []*domain.HistoryPoint      // append order
}

// NewPriceStore creates a new in-memory price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		latest: make(map[string]*domain.Snapshot),
	}
}

// txWriter stages writes until the transaction function returns.
type txWriter struct {
	latest  []*domain.Snapshot
	history []*domain.HistoryPoint
}

func (w *txWriter) UpsertLatest(_ context.Context, r *domain.AssetRecord, at time.Time) error {
	if r == nil || r.Symbol == "" {
		return storage.ErrInvalidInput
	}
	w.latest = append(w.latest, domain.NewSnapshot(r, at))
	return nil
}

func (w *txWriter) AppendHistory(_ context.Context, r *domain.AssetRecord, at time.Time) error {
	if r == nil || r.Symbol == "" {
		return storage.ErrInvalidInput
	}
	w.history = append(w.history, domain.NewHistoryPoint(r, at))
	return nil
}

// WithinTx runs fn and applies its staged writes only if it returns nil.
func (s *PriceStore) WithinTx(ctx context.Context, fn func(w storage.RecordWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &txWriter{}
	if err := fn(w); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, snap := range w.latest {
		s.latest[snap.Symbol] = snap
	}
	s.history = append(s.history, w.history...)
	return nil
}

// PruneToMembership deletes snapshots whose symbol is not in symbols.
func (s *PriceStore) PruneToMembership(_ context.Context, symbols []string) (int64, error) {
	if len(symbols) == 0 {
		return 0, nil
	}
	keep := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		keep[sym] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for sym := range s.latest {
		if _, ok := keep[sym]; !ok {
			delete(s.latest, sym)
			deleted++
		}
	}
	return deleted, nil
}

// PruneHistoryBefore deletes history points older than cutoff.
func (s *PriceStore) PruneHistoryBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.history[:0]
	var deleted int64
	for _, p := range s.history {
		if p.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(s.history); i++ {
		s.history[i] = nil
	}
	s.history = kept
	return deleted, nil
}

// ListLatest returns copies of all snapshots ordered by market cap DESC.
func (s *PriceStore) ListLatest(_ context.Context) ([]*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Snapshot, 0, len(s.latest))
	for _, snap := range s.latest {
		result = append(result, copySnapshot(snap))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].MarketCap != result[j].MarketCap {
			return result[i].MarketCap > result[j].MarketCap
		}
		return result[i].Symbol < result[j].Symbol
	})
	return result, nil
}

// GetLatest returns the snapshot for symbol. Returns ErrNotFound if not exists.
func (s *PriceStore) GetLatest(_ context.Context, symbol string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.latest[symbol]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(snap), nil
}

// GetHistory returns up to limit points for symbol, newest first.
func (s *PriceStore) GetHistory(_ context.Context, symbol string, limit int) ([]*domain.HistoryPoint, error) {
	limit = storage.HistoryLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.HistoryPoint
	for i := len(s.history) - 1; i >= 0; i-- {
		if p := s.history[i]; p.Symbol == symbol {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// HistoryCount returns the number of stored points for symbol.
func (s *PriceStore) HistoryCount(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.history {
		if p.Symbol == symbol {
			n++
		}
	}
	return n
}

// Close is a no-op.
func (s *PriceStore) Close() error {
	return nil
}

func copySnapshot(snap *domain.Snapshot) *domain.Snapshot {
	snapCopy := *snap
	if snap.Rank != nil {
		rank := *snap.Rank
		snapCopy.Rank = &rank
	}
	return &snapCopy
}

var _ storage.Store = (*PriceStore)(nil)
