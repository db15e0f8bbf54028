package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeKey lowers and trims a free-form field into its exact-match
// lookup projection. It is deterministic and total: any input string,
// including the empty string, yields a value.
//
// A fresh Caser per call: cases.Caser carries internal state and must not
// be shared across goroutines.
func NormalizeKey(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

// Normalize recomputes the item's *_norm projections from its free-form
// fields. Callers that insert items must invoke it before persisting.
func (i *Item) Normalize() {
	i.CategoryNorm = NormalizeKey(i.Category)
	i.TitleNorm = NormalizeKey(i.Title)
	i.StationOrTrainNorm = NormalizeKey(i.StationOrTrain)
}

// OppositeType maps "lost" to "found" and vice versa. The comparison is
// case-insensitive; unknown values map to "" so callers can reject them.
func OppositeType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case TypeLost:
		return TypeFound
	case TypeFound:
		return TypeLost
	default:
		return ""
	}
}

// CanonicalPair orders two item ids so unordered pairs have a single stored
// representation.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
