// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the transactional claim over the
// deliveries collection: the idempotency gate that guarantees at most one
// chat push per message per recipient, even when the live feed replays
// events or two worker instances race on the same message.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/div-v/train-track-lost-found/internal/domain"
)

// ClaimOutcome is the result of a delivery-marker claim.
type ClaimOutcome int

const (
	// ClaimAccepted means the marker was written; the caller should
	// dispatch the push (after the transaction has committed).
	ClaimAccepted ClaimOutcome = iota
	// ClaimAlreadySent means a marker for this (message, recipient) pair
	// already exists; no side effect happened.
	ClaimAlreadySent
	// ClaimStale means the message is strictly older than the
	// conversation's lastMessageAt; no marker was written. Guards against
	// a burst of historic messages momentarily looking new to the feed.
	ClaimStale
)

// String returns a short label for logging and metrics.
func (o ClaimOutcome) String() string {
	switch o {
	case ClaimAccepted:
		return "accepted"
	case ClaimAlreadySent:
		return "already_sent"
	case ClaimStale:
		return "stale"
	default:
		return "unknown"
	}
}

// ClaimDelivery runs the idempotent claim for msg addressed to recipientUID
// in a single transaction: read the marker; if present, report already-sent
// with no side effect; if the message predates the conversation's
// lastMessageAt, report stale with no side effect; otherwise write the
// marker and report accepted.
//
// The transaction body performs no side effects outside its read/write set,
// so it is safe for the store to re-execute on conflict. A unique-key
// violation from a racing instance is folded into ClaimAlreadySent: exactly
// one instance ever wins the marker write.
func ClaimDelivery(ctx context.Context, db *gorm.DB, msg *domain.ChatMessage, conv *domain.Conversation, recipientUID string) (ClaimOutcome, error) {
	id := domain.DeliveryID(msg.ID, recipientUID)
	outcome := ClaimAccepted
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Delivery
		err := tx.Where("id = ?", id).First(&existing).Error
		if err == nil {
			outcome = ClaimAlreadySent
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if !conv.LastMessageAt.IsZero() && !msg.CreatedAt.IsZero() && msg.CreatedAt.Before(conv.LastMessageAt) {
			outcome = ClaimStale
			return nil
		}
		return tx.Create(&domain.Delivery{
			ID:             id,
			ConversationID: conv.ID,
			RecipientUID:   recipientUID,
			MessageID:      msg.ID,
			CreatedAt:      time.Now().UTC(),
		}).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ClaimAlreadySent, nil
		}
		return outcome, err
	}
	return outcome, nil
}
