// Package feed provides tick sources for the lifecycle loop: stored replays,
// live websocket frames, and a recorder that persists what another source yields.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/market"
	"trading-agent-lab/internal/storage"
)

// Feed errors
var (
	ErrEndOfFeed   = errors.New("end of feed")
	ErrInvalidTick = errors.New("invalid tick")
)

// TickSource yields market snapshots one tick at a time.
type TickSource interface {
	NextTick(ctx context.Context) (*domain.MarketState, error)
}

// Compile-time interface check.
var _ TickSource = (*market.Process)(nil)

// validateTick rejects snapshots execution cannot price.
func validateTick(m *domain.MarketState) error {
	if m == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidTick)
	}
	if !(m.Close > 0) {
		return fmt.Errorf("%w: tick %d close %v", ErrInvalidTick, m.Tick, m.Close)
	}
	if m.Liquidity < 0 || m.Liquidity > 1 {
		return fmt.Errorf("%w: tick %d liquidity %v", ErrInvalidTick, m.Tick, m.Liquidity)
	}
	return nil
}

// ReplaySource replays a stored run from a MarketTickStore.
// Ticks are loaded on the first call.
type ReplaySource struct {
	store storage.MarketTickStore
	runID string

	mu     sync.Mutex
	ticks  []*domain.MarketState
	loaded bool
	pos    int
}

// NewReplaySource creates a ReplaySource for runID.
func NewReplaySource(store storage.MarketTickStore, runID string) *ReplaySource {
	return &ReplaySource{store: store, runID: runID}
}

// Compile-time interface check.
var _ TickSource = (*ReplaySource)(nil)

// NextTick returns the next stored tick, or ErrEndOfFeed.
func (r *ReplaySource) NextTick(ctx context.Context) (*domain.MarketState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		ticks, err := r.store.GetByRunID(ctx, r.runID)
		if err != nil {
			return nil, fmt.Errorf("load replay %s: %w", r.runID, err)
		}
		if len(ticks) == 0 {
			return nil, fmt.Errorf("load replay %s: %w", r.runID, storage.ErrNotFound)
		}
		r.ticks = ticks
		r.loaded = true
	}

	if r.pos >= len(r.ticks) {
		return nil, ErrEndOfFeed
	}
	m := *r.ticks[r.pos]
	r.pos++
	return &m, nil
}

// Len returns the number of loaded ticks, 0 before the first call.
func (r *ReplaySource) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

// DefaultRecordBatchSize is the number of ticks buffered before a flush.
const DefaultRecordBatchSize = 100

// RecordingOptions contains configuration for creating a RecordingSource.
type RecordingOptions struct {
	Source    TickSource
	Store     storage.MarketTickStore
	RunID     string
	BatchSize int
	Logger    zerolog.Logger
}

// RecordingSource passes ticks through from another source and persists them
// in batches. Call Flush when the run ends.
type RecordingSource struct {
	src       TickSource
	store     storage.MarketTickStore
	runID     string
	batchSize int
	logger    zerolog.Logger

	mu       sync.Mutex
	buf      []*domain.MarketState
	recorded int
}

// NewRecordingSource creates a RecordingSource.
func NewRecordingSource(opts RecordingOptions) *RecordingSource {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultRecordBatchSize
	}
	return &RecordingSource{
		src:       opts.Source,
		store:     opts.Store,
		runID:     opts.RunID,
		batchSize: opts.BatchSize,
		logger:    opts.Logger.With().Str("component", "TickRecorder").Str("run_id", opts.RunID).Logger(),
	}
}

// Compile-time interface check.
var _ TickSource = (*RecordingSource)(nil)

// NextTick reads from the wrapped source and buffers a copy of the tick.
// The buffer is flushed when full and when the wrapped source ends.
func (r *RecordingSource) NextTick(ctx context.Context) (*domain.MarketState, error) {
	m, err := r.src.NextTick(ctx)
	if errors.Is(err, ErrEndOfFeed) {
		if ferr := r.Flush(ctx); ferr != nil {
			return nil, ferr
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	c := *m
	r.buf = append(r.buf, &c)
	full := len(r.buf) >= r.batchSize
	r.mu.Unlock()

	if full {
		if err := r.Flush(ctx); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Flush writes buffered ticks to the store.
func (r *RecordingSource) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) == 0 {
		return nil
	}
	if err := r.store.InsertBulk(ctx, r.runID, r.buf); err != nil {
		return fmt.Errorf("record ticks: %w", err)
	}
	r.recorded += len(r.buf)
	r.logger.Debug().Int("flushed", len(r.buf)).Int("recorded", r.recorded).Msg("ticks recorded")
	r.buf = r.buf[:0]
	return nil
}

// Recorded returns the number of ticks persisted so far.
func (r *RecordingSource) Recorded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recorded
}
