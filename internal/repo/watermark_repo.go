// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file manages the change detector's watermark: the
// singleton cursor row recording the newest item timestamp already scanned.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/div-v/train-track-lost-found/internal/domain"
)

// GetWatermark returns the current watermark, or (nil, nil) when none has
// been written yet (first run: the detector scans without a lower bound).
func GetWatermark(ctx context.Context, db *gorm.DB) (*domain.Watermark, error) {
	var wm domain.Watermark
	err := db.WithContext(ctx).Where("id = ?", domain.WatermarkID).First(&wm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wm, nil
}

// UpdateWatermark merge-writes the watermark row: only the named columns are
// upserted, so columns written by other tools survive. Called once per
// detector cycle, after the whole batch has been handed to the matcher.
func UpdateWatermark(ctx context.Context, db *gorm.DB, ts time.Time, itemID string) error {
	wm := domain.Watermark{
		ID:              domain.WatermarkID,
		LastProcessedAt: ts,
		LastProcessedID: itemID,
		UpdatedAt:       time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_processed_at", "last_processed_id", "updated_at"}),
		}).
		Create(&wm).Error
}
