package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-tracker/internal/domain"
	"crypto-tracker/internal/idhash"
	"crypto-tracker/internal/source"
	"crypto-tracker/internal/storage"
	"crypto-tracker/internal/storage/memory"
)

var cycleTime = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

var top10 = []string{"BTC", "ETH", "USDT", "BNB", "SOL", "USDC", "XRP", "DOGE", "TON", "ADA"}

func leaderboardPage(t *testing.T) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("..", "extraction", "testdata", "leaderboard.html"))
	require.NoError(t, err)
	return raw
}

// countingStore wraps a memory store, counts calls and fails chosen symbols.
type countingStore struct {
	*memory.PriceStore

	mu       sync.Mutex
	txCalls  int
	prunes   int
	failSyms map[string]bool
}

func newCountingStore(fail ...string) *countingStore {
	s := &countingStore{PriceStore: memory.NewPriceStore(), failSyms: map[string]bool{}}
	for _, sym := range fail {
		s.failSyms[sym] = true
	}
	return s
}

func (s *countingStore) WithinTx(ctx context.Context, fn func(w storage.RecordWriter) error) error {
	s.mu.Lock()
	s.txCalls++
	s.mu.Unlock()
	return s.PriceStore.WithinTx(ctx, func(w storage.RecordWriter) error {
		return fn(&failingWriter{RecordWriter: w, fail: s.failSyms})
	})
}

func (s *countingStore) PruneToMembership(ctx context.Context, symbols []string) (int64, error) {
	s.mu.Lock()
	s.prunes++
	s.mu.Unlock()
	return s.PriceStore.PruneToMembership(ctx, symbols)
}

// failingWriter fails AppendHistory for chosen symbols, after the upsert
// has been staged, so a rollback must discard the snapshot too.
type failingWriter struct {
	storage.RecordWriter
	fail map[string]bool
}

func (w *failingWriter) AppendHistory(ctx context.Context, r *domain.AssetRecord, at time.Time) error {
	if w.fail[r.Symbol] {
		return errors.New("disk full")
	}
	return w.RecordWriter.AppendHistory(ctx, r, at)
}

type recordingSink struct {
	name    string
	err     error
	reports []*domain.CycleReport
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, report *domain.CycleReport) error {
	s.reports = append(s.reports, report)
	return s.err
}

func newOrchestrator(src source.Source, store storage.Store, sinks ...Sink) *Orchestrator {
	return New(Options{
		Source: src,
		Store:  store,
		Sinks:  sinks,
		Clock:  func() time.Time { return cycleTime },
	})
}

func seedSnapshot(t *testing.T, store storage.Store, symbol string) {
	t.Helper()
	ctx := context.Background()
	rec := &domain.AssetRecord{Symbol: symbol, Name: symbol, Price: 1, ChangeDirection: domain.DirectionFlat}
	require.NoError(t, store.WithinTx(ctx, func(w storage.RecordWriter) error {
		if err := w.UpsertLatest(ctx, rec, cycleTime.Add(-time.Hour)); err != nil {
			return err
		}
		return w.AppendHistory(ctx, rec, cycleTime.Add(-time.Hour))
	}))
}

func TestRunCycle_FetchFailureTouchesNothing(t *testing.T) {
	store := newCountingStore()
	seedSnapshot(t, store.PriceStore, "OLD")
	o := newOrchestrator(&source.StaticSource{Err: errors.New("timeout")}, store)

	result := o.RunCycle(context.Background())

	assert.False(t, result.Success)
	assert.Zero(t, result.SavedCount)
	assert.Equal(t, FailureFetch, result.Failure)
	assert.Zero(t, store.txCalls)
	assert.Zero(t, store.prunes)

	snaps, err := store.ListLatest(context.Background())
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestRunCycle_SavesTopTen(t *testing.T) {
	store := newCountingStore()
	o := newOrchestrator(&source.StaticSource{Body: leaderboardPage(t)}, store)

	result := o.RunCycle(context.Background())

	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Equal(t, 10, result.SavedCount)
	assert.Equal(t, top10, result.Symbols)
	assert.Equal(t, FailureNone, result.Failure)

	snaps, err := store.ListLatest(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 10)
	for _, snap := range snaps {
		assert.True(t, snap.LastUpdated.Equal(cycleTime), "%s has LastUpdated %v", snap.Symbol, snap.LastUpdated)
		assert.LessOrEqual(t, len(snap.Symbol), domain.MaxSymbolLength)
		assert.Equal(t, 1, store.HistoryCount(snap.Symbol))
	}
	assert.Equal(t, "BTC", snaps[0].Symbol)
}

func TestRunCycle_HistoryGrowsPerCycle(t *testing.T) {
	store := memory.NewPriceStore()
	o := newOrchestrator(&source.StaticSource{Body: leaderboardPage(t)}, store)

	for i := 0; i < 3; i++ {
		require.True(t, o.RunCycle(context.Background()).Success)
	}

	for _, sym := range top10 {
		assert.Equal(t, 3, store.HistoryCount(sym), sym)
	}
	snaps, err := store.ListLatest(context.Background())
	require.NoError(t, err)
	assert.Len(t, snaps, 10)
}

func TestRunCycle_PrunesToMembership(t *testing.T) {
	store := memory.NewPriceStore()
	seedSnapshot(t, store, "OLD")
	o := newOrchestrator(&source.StaticSource{Body: leaderboardPage(t)}, store)

	result := o.RunCycle(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, int64(1), result.Pruned)

	_, err := store.GetLatest(context.Background(), "OLD")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1, store.HistoryCount("OLD"), "history of pruned symbol must survive")
}

func TestRunCycle_IsolatesPersistenceFailure(t *testing.T) {
	store := newCountingStore("ETH")
	seedSnapshot(t, store.PriceStore, "ETH")
	o := newOrchestrator(&source.StaticSource{Body: leaderboardPage(t)}, store)

	result := o.RunCycle(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 9, result.SavedCount)
	assert.NotContains(t, result.Symbols, "ETH")
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "ETH")

	eth, err := store.GetLatest(context.Background(), "ETH")
	require.NoError(t, err, "ETH is still a member and keeps its previous snapshot")
	assert.True(t, eth.LastUpdated.Equal(cycleTime.Add(-time.Hour)))
	assert.Equal(t, 1, store.HistoryCount("ETH"))
}

func TestRunCycle_AllSavesFail(t *testing.T) {
	store := newCountingStore(top10...)
	seedSnapshot(t, store.PriceStore, "OLD")
	o := newOrchestrator(&source.StaticSource{Body: leaderboardPage(t)}, store)

	result := o.RunCycle(context.Background())

	assert.False(t, result.Success)
	assert.Zero(t, result.SavedCount)
	assert.Equal(t, FailurePersistence, result.Failure)
	assert.Len(t, result.Errors, 10)
	assert.Zero(t, store.prunes)

	_, err := store.GetLatest(context.Background(), "OLD")
	assert.NoError(t, err)
}

func TestRunCycle_UnrecognizedPage(t *testing.T) {
	store := newCountingStore()
	o := newOrchestrator(&source.StaticSource{Body: []byte("<html><body>Just a moment...</body></html>")}, store)

	result := o.RunCycle(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, FailureStructure, result.Failure)
	assert.Zero(t, store.txCalls)
}

func TestRunCycle_NotifiesSinks(t *testing.T) {
	store := memory.NewPriceStore()
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.New("redis down")}
	o := newOrchestrator(&source.StaticSource{Body: leaderboardPage(t)}, store, bad, good)

	result := o.RunCycle(context.Background())

	require.True(t, result.Success)
	require.Len(t, good.reports, 1)
	require.Len(t, bad.reports, 1)

	report := good.reports[0]
	assert.True(t, report.At.Equal(cycleTime))
	assert.Len(t, report.Saved, 10)
	assert.Equal(t, top10, report.Members)
	assert.Equal(t, idhash.ComputeCycleID(cycleTime, top10), report.ID)
	assert.Equal(t, report.ID, result.CycleID)
}

func TestRunCycle_SinksNotCalledOnFailure(t *testing.T) {
	sink := &recordingSink{name: "sink"}
	o := newOrchestrator(&source.StaticSource{Err: errors.New("dns")}, memory.NewPriceStore(), sink)

	o.RunCycle(context.Background())
	assert.Empty(t, sink.reports)
}

func TestRunCycle_TopNOption(t *testing.T) {
	store := memory.NewPriceStore()
	o := New(Options{
		Source: &source.StaticSource{Body: leaderboardPage(t)},
		Store:  store,
		TopN:   3,
		Clock:  func() time.Time { return cycleTime },
	})

	result := o.RunCycle(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, []string{"BTC", "ETH", "USDT"}, result.Symbols)
	snaps, _ := store.ListLatest(context.Background())
	assert.Len(t, snaps, 3)
}

func TestRunCycle_TopNNeverExceedsCap(t *testing.T) {
	store := memory.NewPriceStore()
	o := New(Options{
		Source: &source.StaticSource{Body: unrankedPage(30)},
		Store:  store,
		TopN:   20,
		Clock:  func() time.Time { return cycleTime },
	})

	result := o.RunCycle(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, MaxTopN, result.SavedCount)
	snaps, _ := store.ListLatest(context.Background())
	assert.Len(t, snaps, MaxTopN)
}

func TestRunCycle_TopNAboveCapKeepsRankCutoff(t *testing.T) {
	store := memory.NewPriceStore()
	o := New(Options{
		Source: &source.StaticSource{Body: leaderboardPage(t)},
		Store:  store,
		TopN:   20,
		Clock:  func() time.Time { return cycleTime },
	})

	result := o.RunCycle(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, top10, result.Symbols)
}

// blockingSource blocks Fetch until release is closed.
type blockingSource struct {
	started chan struct{}
	release chan struct{}
	body    []byte
}

func (s *blockingSource) Fetch(ctx context.Context) ([]byte, error) {
	close(s.started)
	select {
	case <-s.release:
		return s.body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRunCycle_ConcurrentCallIsBusy(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{}), body: leaderboardPage(t)}
	o := newOrchestrator(src, memory.NewPriceStore())

	done := make(chan *CycleResult)
	go func() { done <- o.RunCycle(context.Background()) }()
	<-src.started

	busy := o.RunCycle(context.Background())
	assert.False(t, busy.Success)
	assert.Equal(t, FailureBusy, busy.Failure)

	close(src.release)
	first := <-done
	assert.True(t, first.Success)
}

func TestProcess_FetchErrorSignal(t *testing.T) {
	store := newCountingStore()
	o := newOrchestrator(nil, store)

	result := o.Process(context.Background(), leaderboardPage(t), errors.New("upstream 503"))

	assert.False(t, result.Success)
	assert.Equal(t, FailureFetch, result.Failure)
	assert.Zero(t, store.txCalls)
}

func TestPruneHistoryOlderThan(t *testing.T) {
	store := memory.NewPriceStore()
	ctx := context.Background()
	o := newOrchestrator(nil, store)

	for _, age := range []time.Duration{10 * 24 * time.Hour, 8 * 24 * time.Hour, time.Hour} {
		rec := &domain.AssetRecord{Symbol: "BTC", Name: "Bitcoin", Price: 1, ChangeDirection: domain.DirectionFlat}
		require.NoError(t, store.WithinTx(ctx, func(w storage.RecordWriter) error {
			return w.AppendHistory(ctx, rec, cycleTime.Add(-age))
		}))
	}

	_, err := o.PruneHistoryOlderThan(ctx, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	deleted, err := o.PruneHistoryOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, 1, store.HistoryCount("BTC"))
}
