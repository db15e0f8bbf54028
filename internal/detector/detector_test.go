package detector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/div-v/train-track-lost-found/internal/domain"
	"github.com/div-v/train-track-lost-found/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// recordingProcessor collects the ids handed to it, optionally failing or
// panicking on chosen items.
type recordingProcessor struct {
	seen    []string
	failOn  map[string]bool
	panicOn map[string]bool
}

func (p *recordingProcessor) ProcessItem(_ context.Context, it *domain.Item) error {
	p.seen = append(p.seen, it.ID)
	if p.panicOn[it.ID] {
		panic("poison item")
	}
	if p.failOn[it.ID] {
		return errors.New("processing failed")
	}
	return nil
}

var baseTS = time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)

func seedItem(t *testing.T, db *gorm.DB, id string, ts time.Time) {
	t.Helper()
	it := &domain.Item{
		ID:             id,
		Type:           domain.TypeLost,
		Category:       "Bags",
		Title:          "Rucksack " + id,
		StationOrTrain: "Basel SBB",
		Date:           baseTS.Truncate(24 * time.Hour),
		Timestamp:      ts,
	}
	if err := repo.CreateItem(context.Background(), db, it); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func watermark(t *testing.T, db *gorm.DB) *domain.Watermark {
	t.Helper()
	wm, err := repo.GetWatermark(context.Background(), db)
	if err != nil {
		t.Fatalf("GetWatermark: %v", err)
	}
	return wm
}

func TestRunOnceAdvancesWatermarkToNewestItem(t *testing.T) {
	db := newTestDB(t)
	seedItem(t, db, "a", baseTS)
	seedItem(t, db, "b", baseTS.Add(2*time.Minute))
	seedItem(t, db, "c", baseTS.Add(1*time.Minute))

	proc := &recordingProcessor{}
	d := New(db, proc, 0, 0)
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(proc.seen) != 3 {
		t.Fatalf("processed %d items, want 3", len(proc.seen))
	}
	wm := watermark(t, db)
	if wm == nil {
		t.Fatal("watermark not written")
	}
	if !wm.LastProcessedAt.Equal(baseTS.Add(2 * time.Minute)) {
		t.Fatalf("watermark at %v, want newest batch timestamp", wm.LastProcessedAt)
	}
	if wm.LastProcessedID != "b" {
		t.Fatalf("watermark id = %q, want b", wm.LastProcessedID)
	}

	// Nothing new: the second cycle processes nothing and leaves the
	// watermark untouched.
	proc.seen = nil
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce (second): %v", err)
	}
	if len(proc.seen) != 0 {
		t.Fatalf("second cycle re-processed %v", proc.seen)
	}
	if got := watermark(t, db); !got.LastProcessedAt.Equal(wm.LastProcessedAt) {
		t.Fatalf("watermark moved on an empty cycle: %v", got.LastProcessedAt)
	}
}

func TestRunOnceEmptyDatabaseWritesNoWatermark(t *testing.T) {
	db := newTestDB(t)
	d := New(db, &recordingProcessor{}, 0, 0)

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if wm := watermark(t, db); wm != nil {
		t.Fatalf("empty cycle wrote a watermark: %+v", wm)
	}
}

func TestRunOncePicksUpOnlyItemsAfterWatermark(t *testing.T) {
	db := newTestDB(t)
	seedItem(t, db, "old", baseTS)
	if err := repo.UpdateWatermark(context.Background(), db, baseTS, "old"); err != nil {
		t.Fatalf("seed watermark: %v", err)
	}
	seedItem(t, db, "new", baseTS.Add(time.Minute))

	proc := &recordingProcessor{}
	d := New(db, proc, 0, 0)
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(proc.seen) != 1 || proc.seen[0] != "new" {
		t.Fatalf("processed %v, want only the post-watermark item", proc.seen)
	}
}

func TestRunOnceProcessorFailureDoesNotBlockAdvance(t *testing.T) {
	db := newTestDB(t)
	seedItem(t, db, "ok1", baseTS)
	seedItem(t, db, "bad", baseTS.Add(time.Minute))
	seedItem(t, db, "ok2", baseTS.Add(2*time.Minute))

	proc := &recordingProcessor{failOn: map[string]bool{"bad": true}}
	d := New(db, proc, 0, 0)
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(proc.seen) != 3 {
		t.Fatalf("processed %d items, want all 3", len(proc.seen))
	}
	wm := watermark(t, db)
	if wm == nil || !wm.LastProcessedAt.Equal(baseTS.Add(2*time.Minute)) {
		t.Fatalf("watermark = %+v, want advance past the failing item", wm)
	}

	// The failing item is behind the watermark now: it is never retried.
	proc.seen = nil
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce (second): %v", err)
	}
	if len(proc.seen) != 0 {
		t.Fatalf("second cycle re-processed %v", proc.seen)
	}
}

func TestRunOncePanicDoesNotBlockAdvance(t *testing.T) {
	db := newTestDB(t)
	seedItem(t, db, "first", baseTS)
	seedItem(t, db, "poison", baseTS.Add(time.Minute))
	seedItem(t, db, "last", baseTS.Add(2*time.Minute))

	proc := &recordingProcessor{panicOn: map[string]bool{"poison": true}}
	d := New(db, proc, 0, 0)
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(proc.seen) != 3 {
		t.Fatalf("processed %d items, want all 3", len(proc.seen))
	}
	wm := watermark(t, db)
	if wm == nil || wm.LastProcessedID != "last" {
		t.Fatalf("watermark = %+v, want advance past the panicking item", wm)
	}
}

func TestRunOnceCappedBatchContinuesNextCycle(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 5; i++ {
		seedItem(t, db, fmt.Sprintf("i%d", i), baseTS.Add(time.Duration(i)*time.Minute))
	}

	proc := &recordingProcessor{}
	d := New(db, proc, 0, 2)

	// First cycle: the two oldest; watermark stops at the batch end.
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce #1: %v", err)
	}
	if len(proc.seen) != 2 || proc.seen[0] != "i0" || proc.seen[1] != "i1" {
		t.Fatalf("cycle 1 processed %v", proc.seen)
	}
	if wm := watermark(t, db); wm.LastProcessedID != "i1" {
		t.Fatalf("cycle 1 watermark id = %q", wm.LastProcessedID)
	}

	// Two more cycles drain the rest without gaps or repeats.
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce #2: %v", err)
	}
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce #3: %v", err)
	}
	want := []string{"i0", "i1", "i2", "i3", "i4"}
	if len(proc.seen) != len(want) {
		t.Fatalf("processed %v, want %v", proc.seen, want)
	}
	for i, id := range want {
		if proc.seen[i] != id {
			t.Fatalf("processed %v, want %v", proc.seen, want)
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	db := newTestDB(t)
	d := New(db, &recordingProcessor{}, 10*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNewDefaults(t *testing.T) {
	d := New(nil, nil, 0, 0)
	if d.Interval != DefaultInterval {
		t.Fatalf("Interval = %v", d.Interval)
	}
	if d.BatchSize != DefaultBatchSize {
		t.Fatalf("BatchSize = %d", d.BatchSize)
	}
	d = New(nil, nil, time.Second, 7)
	if d.Interval != time.Second || d.BatchSize != 7 {
		t.Fatalf("overrides not applied: %+v", d)
	}
}
