// Package services – MatchNotifier
//
// This file implements the best-effort owner notification that follows a
// confirmed match. Failures here are logged and isolated per owner: a
// missing uid or token, or a gateway error for one owner, never blocks the
// push to the other owner and never fails the match itself.
package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/div-v/train-track-lost-found/internal/domain"
	"github.com/div-v/train-track-lost-found/internal/push"
	"github.com/div-v/train-track-lost-found/internal/repo"
)

const matchPushTitle = "Match found!"

// MatchNotifier resolves owner push tokens and dispatches one "Match found!"
// push per owner of a confirmed pair.
type MatchNotifier struct {
	DB   *gorm.DB
	Push push.Dispatcher
}

// NotifyMatch pushes to both owners of the pair (a, b). The body tells each
// owner what kind of counterpart turned up, so the lost-side owner hears
// about a found item and vice versa.
func (n *MatchNotifier) NotifyMatch(ctx context.Context, a, b *domain.Item) {
	n.notifyOwner(ctx, a)
	n.notifyOwner(ctx, b)
}

func (n *MatchNotifier) notifyOwner(ctx context.Context, it *domain.Item) {
	lg := log.With().Str("component", "match_notifier").Str("item", it.ID).Logger()

	uid := strings.TrimSpace(it.PostedBy)
	if uid == "" {
		lg.Warn().Msg("item has no postedBy, skipping owner push")
		return
	}

	tokens, err := repo.ListUserTokens(ctx, n.DB, uid)
	if err != nil {
		lg.Error().Err(err).Str("uid", uid).Msg("token lookup failed")
		return
	}
	if len(tokens) == 0 {
		lg.Info().Str("uid", uid).Msg("no push token registered for owner")
		return
	}

	var body string
	if strings.EqualFold(it.Type, domain.TypeLost) {
		body = "A found item matches your lost post: " + it.Title
	} else {
		body = "A lost item matches your found post: " + it.Title
	}

	msgID, err := n.Push.Send(ctx, tokens[0], matchPushTitle, body, map[string]string{"type": "match"})
	if err != nil {
		lg.Error().Err(err).Str("uid", uid).Msg("match push failed")
		return
	}
	lg.Info().Str("uid", uid).Str("push_id", msgID).Msg("match push sent")
}
