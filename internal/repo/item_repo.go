// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Item model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an item is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/div-v/train-track-lost-found/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateItem inserts a new item, assigning a UUID when the caller did not,
// and recomputing the normalized lookup keys. The posting path lives in the
// mobile backend; this function exists for seeding and tests.
func CreateItem(ctx context.Context, db *gorm.DB, it *domain.Item) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.Timestamp.IsZero() {
		it.Timestamp = time.Now().UTC()
	}
	it.Normalize()
	return db.WithContext(ctx).Create(it).Error
}

// GetItem fetches a single item by id, or ErrNotFound if missing.
func GetItem(ctx context.Context, db *gorm.DB, id string) (*domain.Item, error) {
	var it domain.Item
	if err := db.WithContext(ctx).Where("id = ?", id).First(&it).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

// ListNewItems returns up to limit items with timestamp strictly greater
// than after, oldest first. A nil after means no lower bound (first run,
// watermark absent).
//
// Ascending order matters when the batch hits the size cap: the watermark
// then advances only to the end of the fetched batch, so the next cycle
// picks up exactly where this one stopped instead of skipping the overflow.
func ListNewItems(ctx context.Context, db *gorm.DB, after *time.Time, limit int) ([]domain.Item, error) {
	q := db.WithContext(ctx).Order("timestamp asc").Limit(limit)
	if after != nil {
		q = q.Where("timestamp > ?", *after)
	}
	var out []domain.Item
	err := q.Find(&out).Error
	return out, err
}

// FindOppositeCandidates returns items of the complementary type sharing the
// item's normalized category/title/station keys and exact date. This is an
// exact-match index lookup; fuzziness belongs to the similarity gate.
//
// The result may contain the item itself when its type is inconsistent with
// its keys; callers must skip self ids.
func FindOppositeCandidates(ctx context.Context, db *gorm.DB, it *domain.Item) ([]domain.Item, error) {
	opp := domain.OppositeType(it.Type)
	if opp == "" {
		return nil, nil
	}
	var out []domain.Item
	err := db.WithContext(ctx).
		Where("type = ?", opp).
		Where("category_norm = ?", domain.NormalizeKey(it.Category)).
		Where("title_norm = ?", domain.NormalizeKey(it.Title)).
		Where("station_or_train_norm = ?", domain.NormalizeKey(it.StationOrTrain)).
		Where("date = ?", it.Date).
		Find(&out).Error
	return out, err
}
