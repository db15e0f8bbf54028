// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file resolves push tokens for a uid from the legacy
// single-token column and the per-device token registry.
package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/div-v/train-track-lost-found/internal/domain"
)

// ListUserTokens returns every push token registered for uid: the legacy
// users.fcm_token value (if any) plus all device_tokens rows, de-duplicated.
// A uid with no tokens yields an empty slice, not an error.
func ListUserTokens(ctx context.Context, db *gorm.DB, uid string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	var u domain.User
	err := db.WithContext(ctx).Where("uid = ?", uid).First(&u).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil && strings.TrimSpace(u.FCMToken) != "" {
		seen[u.FCMToken] = struct{}{}
		out = append(out, u.FCMToken)
	}

	var devices []domain.DeviceToken
	if err := db.WithContext(ctx).Where("uid = ?", uid).Find(&devices).Error; err != nil {
		return nil, err
	}
	for _, d := range devices {
		if _, dup := seen[d.Token]; dup || strings.TrimSpace(d.Token) == "" {
			continue
		}
		seen[d.Token] = struct{}{}
		out = append(out, d.Token)
	}
	return out, nil
}

// UpsertUser writes the legacy single-token row for uid.
func UpsertUser(ctx context.Context, db *gorm.DB, uid, fcmToken string) error {
	return db.WithContext(ctx).Save(&domain.User{UID: uid, FCMToken: fcmToken}).Error
}

// AddDeviceToken registers a per-device token for uid. Re-registering the
// same token is a no-op.
func AddDeviceToken(ctx context.Context, db *gorm.DB, uid, token string) error {
	err := db.WithContext(ctx).Create(&domain.DeviceToken{
		ID:    uuid.NewString(),
		UID:   uid,
		Token: token,
	}).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}
