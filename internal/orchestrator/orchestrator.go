// Package orchestrator runs extraction cycles: fetch, extract, persist each
// record in its own transaction, prune the snapshot table to the cycle's
// membership and notify sinks.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"crypto-tracker/internal/domain"
	"crypto-tracker/internal/extraction"
	"crypto-tracker/internal/idhash"
	"crypto-tracker/internal/observability"
	"crypto-tracker/internal/source"
	"crypto-tracker/internal/storage"
)

// Failure classifies why a cycle did not succeed.
type Failure string

const (
	FailureNone        Failure = "none"
	FailureFetch       Failure = "fetch"
	FailureStructure   Failure = "structure"
	FailurePersistence Failure = "persistence"
	FailureBusy        Failure = "busy"
)

// Sink receives a report after every successful cycle.
// Publish errors are logged and never fail the cycle.
type Sink interface {
	Name() string
	Publish(ctx context.Context, report *domain.CycleReport) error
}

// CycleResult is the outcome of one cycle.
type CycleResult struct {
	CycleID    string // set once records are extracted
	Success    bool
	SavedCount int
	Symbols    []string // symbols persisted this cycle
	Pruned     int64    // snapshot rows removed by membership pruning
	Failure    Failure
	Errors     []string
	At         time.Time
	Duration   time.Duration
}

// Orchestrator runs extraction cycles against a store.
type Orchestrator struct {
	source       source.Source
	store        storage.Store
	extractor    *extraction.Extractor
	sinks        []Sink
	logger       *zap.Logger
	clock        func() time.Time
	topN         int
	rowScanLimit int

	mu sync.Mutex // held for the whole cycle
}

// Options for creating Orchestrator.
type Options struct {
	Source    source.Source
	Store     storage.Store
	Extractor *extraction.Extractor // default extraction.New()
	Sinks     []Sink
	Logger    *zap.Logger      // nil means no logging
	Clock     func() time.Time // default time.Now().UTC()

	TopN         int // default DefaultTopN, never above MaxTopN
	RowScanLimit int // 0 means every candidate row
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		source:       opts.Source,
		store:        opts.Store,
		extractor:    opts.Extractor,
		sinks:        opts.Sinks,
		logger:       opts.Logger,
		clock:        opts.Clock,
		topN:         opts.TopN,
		rowScanLimit: opts.RowScanLimit,
	}
	if o.extractor == nil {
		o.extractor = extraction.New()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = func() time.Time { return time.Now().UTC() }
	}
	o.topN = clampTopN(o.topN)
	return o
}

// RunCycle fetches the page and processes it. A cycle already in progress
// makes this call return immediately with FailureBusy.
func (o *Orchestrator) RunCycle(ctx context.Context) *CycleResult {
	if !o.mu.TryLock() {
		return o.busy()
	}
	defer o.mu.Unlock()

	raw, err := o.source.Fetch(ctx)
	return o.process(ctx, raw, err)
}

// Process runs a cycle over content that was already fetched. A non-nil
// fetchErr is the fetch-failed signal: nothing is read or written.
func (o *Orchestrator) Process(ctx context.Context, raw []byte, fetchErr error) *CycleResult {
	if !o.mu.TryLock() {
		return o.busy()
	}
	defer o.mu.Unlock()

	return o.process(ctx, raw, fetchErr)
}

func (o *Orchestrator) busy() *CycleResult {
	o.logger.Warn("extraction cycle already running")
	return &CycleResult{Failure: FailureBusy, At: o.clock()}
}

func (o *Orchestrator) process(ctx context.Context, raw []byte, fetchErr error) *CycleResult {
	started := time.Now()
	at := o.clock()
	result := &CycleResult{Failure: FailureNone, At: at}
	defer func() {
		result.Duration = time.Since(started)
		observability.RecordCycle(result.Success, string(result.Failure), result.SavedCount, result.Duration, at)
	}()

	if fetchErr != nil {
		o.logger.Warn("fetch failed, skipping cycle", zap.Error(fetchErr))
		return o.fail(result, FailureFetch, fetchErr)
	}

	ext, err := Collect(o.extractor, raw, o.topN, o.rowScanLimit)
	if ext != nil {
		o.logExtraction(ext)
	}
	if err != nil {
		o.logger.Warn("page structure not recognized", zap.Error(err))
		return o.fail(result, FailureStructure, err)
	}
	if len(ext.Records) == 0 {
		o.logger.Warn("no records extracted", zap.Int("rows_seen", ext.RowsSeen))
		return o.fail(result, FailureStructure, errors.New("no records extracted"))
	}

	members := ext.Symbols()
	result.CycleID = idhash.ComputeCycleID(at, members)
	log := o.logger.With(zap.String("cycle_id", idhash.Short(result.CycleID)))

	saved := make([]*domain.AssetRecord, 0, len(ext.Records))
	for _, rec := range ext.Records {
		err := o.save(ctx, rec, at)
		observability.RecordSave(err)
		if err != nil {
			log.Error("save record failed", zap.String("symbol", rec.Symbol), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("save %s: %v", rec.Symbol, err))
			continue
		}
		saved = append(saved, rec)
		result.Symbols = append(result.Symbols, rec.Symbol)
	}
	result.SavedCount = len(saved)

	if result.SavedCount == 0 {
		result.Failure = FailurePersistence
		log.Error("no records saved", zap.Int("extracted", len(ext.Records)))
		return result
	}
	result.Success = true

	pruned, err := o.store.PruneToMembership(ctx, members)
	if err != nil {
		log.Error("prune to membership failed", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("prune: %v", err))
	} else {
		result.Pruned = pruned
		observability.RecordSnapshotsPruned(pruned)
	}

	report := &domain.CycleReport{ID: result.CycleID, At: at, Saved: saved, Members: members, Pruned: result.Pruned}
	for _, sink := range o.sinks {
		if err := sink.Publish(ctx, report); err != nil {
			observability.RecordSinkError(sink.Name())
			log.Warn("sink publish failed", zap.String("sink", sink.Name()), zap.Error(err))
		}
	}

	log.Info("extraction cycle complete",
		zap.Int("saved", result.SavedCount),
		zap.Int("extracted", len(ext.Records)),
		zap.Int64("pruned", result.Pruned),
		zap.Time("at", at),
	)
	return result
}

// save writes the snapshot and history point for rec atomically.
func (o *Orchestrator) save(ctx context.Context, rec *domain.AssetRecord, at time.Time) error {
	return o.store.WithinTx(ctx, func(w storage.RecordWriter) error {
		if err := w.UpsertLatest(ctx, rec, at); err != nil {
			return err
		}
		return w.AppendHistory(ctx, rec, at)
	})
}

func (o *Orchestrator) fail(result *CycleResult, failure Failure, err error) *CycleResult {
	result.Failure = failure
	result.Errors = append(result.Errors, err.Error())
	return result
}

func (o *Orchestrator) logExtraction(ext *Extraction) {
	observability.RecordRowsSeen(ext.RowsSeen)
	if ext.Degraded {
		o.logger.Warn("no listing table found, using fallback rows", zap.String("row_source", ext.RowSource))
	}
	for _, f := range ext.Failures {
		observability.RecordRowSkipped(f.Reason)
		switch f.Reason {
		case ReasonRankOutOfRange, ReasonDuplicate:
			o.logger.Debug("row skipped", zap.Int("row", f.Index), zap.String("reason", f.Reason))
		default:
			o.logger.Warn("row skipped", zap.Int("row", f.Index), zap.String("reason", f.Reason), zap.Error(f.Err))
		}
	}
}

// PruneHistoryOlderThan deletes history points older than days before now.
// Snapshots are untouched.
func (o *Orchestrator) PruneHistoryOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: retention days must be positive, got %d", storage.ErrInvalidInput, days)
	}
	cutoff := o.clock().Add(-time.Duration(days) * 24 * time.Hour)

	deleted, err := o.store.PruneHistoryBefore(ctx, cutoff)
	if err != nil {
		o.logger.Error("prune history failed", zap.Error(err))
		return 0, err
	}
	observability.RecordHistoryPruned(deleted)
	o.logger.Info("history pruned", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}
