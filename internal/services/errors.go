// Package services defines the business logic of the matching pipeline.
// This file centralizes common service-level error values so that they can
// be consistently returned by service methods and checked by callers.
package services

import "errors"

var (
	// ErrMissingFields is returned when an item lacks one of the fields
	// required for matching (type, category, title, stationOrTrain, date).
	// Such items are skipped and logged, never retried.
	ErrMissingFields = errors.New("item is missing required fields")

	// ErrUnknownType is returned when an item's type is neither "lost"
	// nor "found", so no opposite-type corpus exists for it.
	ErrUnknownType = errors.New("item type is neither lost nor found")
)
