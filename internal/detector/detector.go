// Package detector implements the incremental, crash-safe change detector:
// it turns the periodically polled items collection into a "process each new
// item exactly once" stream for the matcher.
//
// The persisted watermark is the sole authority for "already scanned". Each
// cycle reads it, fetches items with a strict greater-than filter on its
// timestamp, hands every batch item to the matcher, and merge-writes the
// watermark once at cycle end. The write happens only after the whole batch
// has been handed over; per-item failures are caught and logged so they
// cannot block the advance. This trades "never stuck" against "a
// permanently failing item is skipped for good once the watermark passes
// it", which is the accepted behavior.
//
// Ticks are serialized by a single-slot run-or-skip guard: if a cycle is
// still in flight when the next tick fires, that tick is skipped rather than
// letting two cycles race on the same watermark.
package detector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/div-v/train-track-lost-found/internal/domain"
	"github.com/div-v/train-track-lost-found/internal/repo"
)

var (
	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_cycles_total",
			Help: "Detector cycles run, by outcome (ok, empty, skipped, error).",
		},
		[]string{"outcome"},
	)

	itemsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "detector_items_scanned_total",
			Help: "Items handed to the matcher across all cycles.",
		},
	)

	itemsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "detector_items_skipped_total",
			Help: "Items skipped for missing required fields or per-item errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(cycles, itemsScanned, itemsSkipped)
}

// Default cycle parameters, overridable through config.
const (
	DefaultInterval  = 2 * time.Minute
	DefaultBatchSize = 50
)

// ItemProcessor consumes one newly seen item. The concrete implementation
// is services.Matcher.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, it *domain.Item) error
}

// Detector polls for new items on a fixed interval and feeds them to the
// processor, advancing the watermark batch by batch.
type Detector struct {
	DB        *gorm.DB
	Processor ItemProcessor
	Interval  time.Duration
	BatchSize int

	busy atomic.Bool
}

// New builds a detector with default interval and batch size where the
// arguments are zero.
func New(db *gorm.DB, p ItemProcessor, interval time.Duration, batchSize int) *Detector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Detector{DB: db, Processor: p, Interval: interval, BatchSize: batchSize}
}

// Run ticks until the context is cancelled. Each tick triggers at most one
// cycle; ticks arriving while a cycle is in flight are skipped.
func (d *Detector) Run(ctx context.Context) {
	lg := log.With().Str("component", "detector").Logger()
	lg.Info().Dur("interval", d.Interval).Int("batch_size", d.BatchSize).Msg("detector started")

	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info().Msg("detector stopped")
			return
		case <-ticker.C:
			if !d.busy.CompareAndSwap(false, true) {
				lg.Warn().Msg("previous cycle still running, skipping tick")
				cycles.WithLabelValues("skipped").Inc()
				continue
			}
			if err := d.RunOnce(ctx); err != nil {
				lg.Error().Err(err).Msg("detector cycle failed")
				cycles.WithLabelValues("error").Inc()
			}
			d.busy.Store(false)
		}
	}
}

// RunOnce executes a single detection cycle. It is safe to call directly
// (tests, manual drains); Run serializes its own calls via the busy guard.
//
// A batch exactly at the size cap is not drained further here; the next
// tick continues from the advanced watermark.
func (d *Detector) RunOnce(ctx context.Context) error {
	lg := log.With().Str("component", "detector").Logger()

	wm, err := repo.GetWatermark(ctx, d.DB)
	if err != nil {
		return err
	}
	var after *time.Time
	if wm != nil {
		after = &wm.LastProcessedAt
	}

	items, err := repo.ListNewItems(ctx, d.DB, after, d.BatchSize)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		cycles.WithLabelValues("empty").Inc()
		return nil
	}
	lg.Info().Int("count", len(items)).Msg("found new items")

	var newestTS time.Time
	var newestID string

	for i := range items {
		it := &items[i]

		d.processOne(ctx, it)

		// Ties keep the first-seen id; determinism only, the watermark
		// filter is strictly greater-than either way.
		if it.Timestamp.After(newestTS) {
			newestTS = it.Timestamp
			newestID = it.ID
		}
	}

	if err := repo.UpdateWatermark(ctx, d.DB, newestTS, newestID); err != nil {
		return err
	}
	lg.Info().Time("last_processed_at", newestTS).Str("last_processed_id", newestID).Msg("advanced watermark")
	cycles.WithLabelValues("ok").Inc()
	return nil
}

// processOne hands one item to the processor, absorbing every failure mode
// so a poison item can never block the batch or the watermark advance.
func (d *Detector) processOne(ctx context.Context, it *domain.Item) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("item", it.ID).Msg("processor panicked on item")
			itemsSkipped.Inc()
		}
	}()

	itemsScanned.Inc()
	if err := d.Processor.ProcessItem(ctx, it); err != nil {
		log.Warn().Err(err).Str("item", it.ID).Msg("item not processed")
		itemsSkipped.Inc()
	}
}
