// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read access to conversations and chat
// messages. Both are owned by the chat application; this worker only reads
// them (the Create helpers exist for seeding and tests).
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/div-v/train-track-lost-found/internal/domain"
)

// GetConversation fetches a conversation by id, or ErrNotFound if missing.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateConversation inserts a conversation row.
func CreateConversation(ctx context.Context, db *gorm.DB, c *domain.Conversation) error {
	return db.WithContext(ctx).Create(c).Error
}

// CreateChatMessage inserts a message row.
func CreateChatMessage(ctx context.Context, db *gorm.DB, m *domain.ChatMessage) error {
	return db.WithContext(ctx).Create(m).Error
}

// ListRecentMessages returns the newest messages across all conversations,
// newest first. This mirrors the backlog the feed's snapshot frame carries
// after a reconnect.
func ListRecentMessages(ctx context.Context, db *gorm.DB, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
