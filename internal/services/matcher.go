// Package services – Matcher
//
// This file implements the Matcher, the application-level component that
// takes one newly seen item and pairs it against the opposite-type corpus.
// Candidate enumeration is an exact-match index lookup on the normalized
// keys and date; candidate confirmation goes through the two-stage
// similarity gate. Confirmed pairs are recorded once (transactional
// check-and-insert under a unique index) and both owners are notified
// best-effort.
//
// Error discipline: anything that goes wrong with one candidate is caught,
// logged, and processing continues with the next candidate. Nothing here is
// fatal to the detector's cycle.
//
// Observability: ProcessItem is OpenTelemetry-instrumented; spans carry the
// item id and type.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/div-v/train-track-lost-found/internal/domain"
	"github.com/div-v/train-track-lost-found/internal/repo"
	"github.com/div-v/train-track-lost-found/internal/similarity"
)

var (
	// matchCandidates counts candidate pairs evaluated, by outcome.
	matchCandidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matcher_candidates_total",
			Help: "Candidate pairs evaluated by the matcher, by outcome.",
		},
		[]string{"outcome"},
	)

	// matchesStored counts confirmed pairs persisted.
	matchesStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matcher_matches_stored_total",
			Help: "Total confirmed matches persisted.",
		},
	)
)

func init() {
	prometheus.MustRegister(matchCandidates, matchesStored)
}

// Notifier dispatches owner notifications for a confirmed pair. It is
// best-effort: implementations log their own failures.
type Notifier interface {
	NotifyMatch(ctx context.Context, a, b *domain.Item)
}

// Matcher pairs one new item against the opposite-type corpus.
type Matcher struct {
	DB       *gorm.DB
	Gate     *similarity.Gate
	Notifier Notifier
}

// ProcessItem runs the full matching flow for one newly seen item.
//
// Data-integrity problems (missing required fields, unknown type) return
// ErrMissingFields / ErrUnknownType so the caller can count the skip; the
// item is never retried. Per-candidate failures are swallowed after logging.
func (m *Matcher) ProcessItem(ctx context.Context, it *domain.Item) error {
	tr := otel.Tracer("services/Matcher")
	ctx, span := tr.Start(ctx, "ProcessItem",
		trace.WithAttributes(
			attribute.String("item.id", it.ID),
			attribute.String("item.type", it.Type),
		),
	)
	defer span.End()

	lg := log.With().Str("component", "matcher").Str("item", it.ID).Logger()

	if missing := it.MissingFields(); len(missing) > 0 {
		lg.Warn().Strs("missing", missing).Msg("skipping item with missing required fields")
		return ErrMissingFields
	}
	if domain.OppositeType(it.Type) == "" {
		lg.Warn().Str("type", it.Type).Msg("skipping item with unknown type")
		return ErrUnknownType
	}

	candidates, err := repo.FindOppositeCandidates(ctx, m.DB, it)
	if err != nil {
		return fmt.Errorf("candidate lookup for %s: %w", it.ID, err)
	}
	if len(candidates) == 0 {
		return nil
	}
	lg.Debug().Int("candidates", len(candidates)).Msg("evaluating candidates")

	for i := range candidates {
		cand := &candidates[i]
		if cand.ID == it.ID {
			continue
		}
		if err := m.processCandidate(ctx, lg, it, cand); err != nil {
			// Isolated per candidate: log and keep going.
			lg.Error().Err(err).Str("candidate", cand.ID).Msg("candidate processing failed")
			matchCandidates.WithLabelValues("error").Inc()
		}
	}
	return nil
}

func (m *Matcher) processCandidate(ctx context.Context, lg zerolog.Logger, it, cand *domain.Item) error {
	exists, err := repo.MatchExists(ctx, m.DB, it.ID, cand.ID)
	if err != nil {
		return fmt.Errorf("existence check: %w", err)
	}
	if exists {
		lg.Debug().Str("candidate", cand.ID).Msg("pair already recorded")
		matchCandidates.WithLabelValues("already_matched").Inc()
		return nil
	}

	verdict := m.Gate.Evaluate(ctx, it, cand)
	if !verdict.Match {
		lg.Debug().
			Str("candidate", cand.ID).
			Str("reason", verdict.Reason).
			Float64("text_score", verdict.TextScore).
			Float64("image_score", verdict.ImageScore).
			Msg("pair rejected by gate")
		matchCandidates.WithLabelValues("rejected").Inc()
		return nil
	}

	if _, err := repo.RecordMatch(ctx, m.DB, it.ID, cand.ID); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// A concurrent cycle won the write; it also owns the pushes.
			lg.Debug().Str("candidate", cand.ID).Msg("pair recorded by concurrent cycle")
			matchCandidates.WithLabelValues("already_matched").Inc()
			return nil
		}
		return fmt.Errorf("record match: %w", err)
	}

	matchesStored.Inc()
	matchCandidates.WithLabelValues("matched").Inc()
	lg.Info().
		Str("candidate", cand.ID).
		Float64("text_score", verdict.TextScore).
		Float64("image_score", verdict.ImageScore).
		Msg("stored new match")

	if m.Notifier != nil {
		m.Notifier.NotifyMatch(ctx, it, cand)
	}
	return nil
}
