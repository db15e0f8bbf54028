package similarity

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/div-v/train-track-lost-found/internal/domain"
)

// Default thresholds for the two gate stages.
const (
	DefaultTextThreshold  = 0.7
	DefaultImageThreshold = 0.85
)

// Verdict is the outcome of running the gate on one candidate pair.
type Verdict struct {
	Match      bool
	TextScore  float64
	ImageScore float64
	// Reason is a short label for logs when Match is false.
	Reason string
}

// Gate is the two-stage, short-circuit similarity check. Stage order is
// fixed cheap-first: the text scorer runs before the image scorer, and a
// missing precondition or failed threshold at either stage stops the pair
// without invoking further stages.
type Gate struct {
	Text  TextScorer
	Image ImageScorer

	TextThreshold  float64
	ImageThreshold float64
}

// NewGate builds a gate with the default thresholds.
func NewGate(text TextScorer, image ImageScorer) *Gate {
	return &Gate{
		Text:           text,
		Image:          image,
		TextThreshold:  DefaultTextThreshold,
		ImageThreshold: DefaultImageThreshold,
	}
}

// Evaluate runs both stages for the pair (a, b). A scorer call failing is
// treated as no-match for this pair, never as a fatal error: the pair stays
// eligible for re-evaluation on a later cycle (no negative cache).
func (g *Gate) Evaluate(ctx context.Context, a, b *domain.Item) Verdict {
	lg := log.With().Str("component", "gate").Str("item1", a.ID).Str("item2", b.ID).Logger()

	if isBlank(a.Description) || isBlank(b.Description) {
		return Verdict{Reason: "missing description"}
	}
	textScore, err := g.Text.TextSimilarity(ctx, a.Description, b.Description)
	if err != nil {
		lg.Warn().Err(err).Msg("text scorer failed, treating pair as no-match")
		return Verdict{Reason: "text scorer error"}
	}
	if math.IsNaN(textScore) || textScore < g.TextThreshold {
		return Verdict{TextScore: textScore, Reason: "text below threshold"}
	}

	if isBlank(a.PhotoURL) || isBlank(b.PhotoURL) {
		return Verdict{TextScore: textScore, Reason: "missing photo"}
	}
	imageScore, err := g.Image.ImageSimilarity(ctx, a.PhotoURL, b.PhotoURL)
	if err != nil {
		lg.Warn().Err(err).Msg("image scorer failed, treating pair as no-match")
		return Verdict{TextScore: textScore, Reason: "image scorer error"}
	}
	if imageScore < g.ImageThreshold {
		return Verdict{TextScore: textScore, ImageScore: imageScore, Reason: "image below threshold"}
	}

	return Verdict{Match: true, TextScore: textScore, ImageScore: imageScore}
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

