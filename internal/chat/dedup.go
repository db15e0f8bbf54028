// Package chat implements the realtime delivery deduplicator: it watches
// the live message feed and pushes a chat notification to the other
// participant, guaranteeing at most one push per message per recipient even
// under feed replays, duplicate events, or process restarts.
//
// The guarantee rests on the transactional delivery-marker claim
// (repo.ClaimDelivery): dispatch happens only after the claim transaction
// has committed, and a committed marker is never rolled back. A push that
// fails after the commit is a permanent miss for that message/recipient,
// an accepted tradeoff.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/div-v/train-track-lost-found/internal/domain"
	"github.com/div-v/train-track-lost-found/internal/feed"
	"github.com/div-v/train-track-lost-found/internal/push"
	"github.com/div-v/train-track-lost-found/internal/repo"
)

const chatPushTitle = "New message"

var (
	claims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_delivery_claims_total",
			Help: "Delivery-marker claims, by outcome (accepted, already_sent, stale, error).",
		},
		[]string{"outcome"},
	)

	pushesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_pushes_sent_total",
			Help: "Chat pushes dispatched after an accepted claim.",
		},
	)
)

func init() {
	prometheus.MustRegister(claims, pushesSent)
}

// Deduplicator builds feed sessions that notify chat recipients at most
// once per message.
type Deduplicator struct {
	DB   *gorm.DB
	Push push.Dispatcher
}

// NewSession returns a fresh session in the Bootstrapping state. Wire it to
// feed.NewSubscriber so every reconnect re-suppresses the backlog snapshot.
func (d *Deduplicator) NewSession() feed.Session {
	return &session{dedup: d}
}

// session carries the per-subscription state machine: Bootstrapping until
// the first snapshot frame has been discarded, Live afterwards.
type session struct {
	dedup *Deduplicator
	live  bool
}

// HandleEvent implements feed.Session. Frames arrive sequentially, so the
// claim for one message is fully settled before the next event is looked at.
func (s *session) HandleEvent(ctx context.Context, ev *feed.Event) {
	lg := log.With().Str("component", "chat_dedup").Logger()

	switch ev.Kind {
	case feed.KindSnapshot:
		if !s.live {
			// The backlog must not trigger notifications.
			lg.Info().Int("backlog", len(ev.Messages)).Msg("discarded bootstrap snapshot, now live")
			s.live = true
		}
	case feed.KindChange:
		if !s.live || ev.Type != feed.ChangeAdded || ev.Message == nil {
			return
		}
		s.dedup.handleAdded(ctx, ev.Message)
	}
}

func (d *Deduplicator) handleAdded(ctx context.Context, m *feed.Message) {
	lg := log.With().Str("component", "chat_dedup").Str("message", m.ID).Logger()

	conv, err := repo.GetConversation(ctx, d.DB, m.ConversationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			lg.Warn().Str("conversation", m.ConversationID).Msg("conversation missing, skipping message")
		} else {
			lg.Error().Err(err).Msg("conversation lookup failed")
			claims.WithLabelValues("error").Inc()
		}
		return
	}

	p := conv.Participants()
	if strings.TrimSpace(p[0]) == "" || strings.TrimSpace(p[1]) == "" {
		lg.Warn().Str("conversation", conv.ID).Msg("conversation does not have exactly two participants")
		return
	}

	recipient := conv.Recipient(m.SenderUID)
	if strings.TrimSpace(recipient) == "" || recipient == m.SenderUID {
		return
	}

	msg := &domain.ChatMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderUID:      m.SenderUID,
		Text:           m.Text,
		ImageURL:       m.ImageURL,
		CreatedAt:      m.CreatedAt,
	}

	outcome, err := repo.ClaimDelivery(ctx, d.DB, msg, conv, recipient)
	if err != nil {
		lg.Error().Err(err).Msg("delivery claim failed")
		claims.WithLabelValues("error").Inc()
		return
	}
	claims.WithLabelValues(outcome.String()).Inc()
	if outcome != repo.ClaimAccepted {
		lg.Debug().Str("outcome", outcome.String()).Str("recipient", recipient).Msg("no push for message")
		return
	}

	d.dispatch(ctx, msg, conv, recipient)
}

// dispatch runs after the claim transaction has committed. Failures here
// are final: the marker stays, so the push is never retried.
func (d *Deduplicator) dispatch(ctx context.Context, m *domain.ChatMessage, conv *domain.Conversation, recipient string) {
	lg := log.With().Str("component", "chat_dedup").Str("message", m.ID).Str("recipient", recipient).Logger()

	tokens, err := repo.ListUserTokens(ctx, d.DB, recipient)
	if err != nil {
		lg.Error().Err(err).Msg("token lookup failed, push lost")
		return
	}
	if len(tokens) == 0 {
		lg.Info().Msg("recipient has no push tokens")
		return
	}

	res, err := d.Push.SendMulticast(ctx, tokens, chatPushTitle, pushBody(m), map[string]string{
		"type":   "chat",
		"cid":    conv.ID,
		"itemId": conv.ItemID,
	})
	if err != nil {
		lg.Error().Err(err).Msg("chat push failed, push lost")
		return
	}
	pushesSent.Inc()
	lg.Info().Int("success", res.SuccessCount).Int("failure", res.FailureCount).Msg("chat push sent")
}

// pushBody picks the notification body: the message text, or "Photo" for
// image-only messages, or a generic fallback.
func pushBody(m *domain.ChatMessage) string {
	if strings.TrimSpace(m.Text) != "" {
		return m.Text
	}
	if strings.TrimSpace(m.ImageURL) != "" {
		return "Photo"
	}
	return "New message"
}
