// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Match
// model: dedup-checked persistence of confirmed lost/found pairs.
//
// Pairs are unordered and stored canonically (smaller id first) under a
// unique index. RecordMatch folds the existence check and the insert into
// one transaction, so two concurrent detector cycles discovering the same
// pair cannot both write it: one commits, the other gets ErrDuplicate.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/div-v/train-track-lost-found/internal/domain"
)

// ErrDuplicate indicates that a record for the same logical key already
// exists (an expected outcome for replayed work, not a failure).
var ErrDuplicate = errors.New("duplicate")

// MatchExists reports whether a match for the unordered pair {a, b} has
// already been recorded. Argument order is irrelevant.
func MatchExists(ctx context.Context, db *gorm.DB, a, b string) (bool, error) {
	i1, i2 := domain.CanonicalPair(a, b)
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Match{}).
		Where("item1_id = ? AND item2_id = ?", i1, i2).
		Count(&n).Error
	return n > 0, err
}

// RecordMatch persists the unordered pair {a, b} exactly once. It returns
// the stored match, or ErrDuplicate when the pair was already recorded
// (either seen by the in-transaction check or rejected by the unique index).
func RecordMatch(ctx context.Context, db *gorm.DB, a, b string) (*domain.Match, error) {
	i1, i2 := domain.CanonicalPair(a, b)
	m := &domain.Match{
		ID:        uuid.NewString(),
		Item1ID:   i1,
		Item2ID:   i2,
		MatchedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Match{}).
			Where("item1_id = ? AND item2_id = ?", i1, i2).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}
		return tx.Create(m).Error
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) || isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return m, nil
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
