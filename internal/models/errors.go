package models

import (
	"errors"
	"fmt"
	"strings"
)

// Typed failure kinds for the scoring and retrieval cores. Callers dispatch
// with errors.Is / errors.As; none of these may be replaced by a fabricated
// numeric result.
var (
	// ErrNoReadings means no usable reading exists for the requested machine
	// at or before the as-of time.
	ErrNoReadings = errors.New("no usable readings for machine")

	// ErrNoModelAvailable means every requested horizon lacks a loaded
	// model artifact, so no prediction can be computed at all.
	ErrNoModelAvailable = errors.New("no model artifact available for any requested horizon")

	// ErrNoMatch means retrieval found no chunk above the similarity floor.
	ErrNoMatch = errors.New("no manual content matched the question")
)

// FeatureMismatchError reports feature keys an artifact expects that the
// incoming vector does not carry. Always a configuration bug (artifact fitted
// against a different feature schema), never recoverable by retry.
type FeatureMismatchError struct {
	Horizon string
	Missing []string
}

func (e *FeatureMismatchError) Error() string {
	return fmt.Sprintf("feature vector missing keys required by %s artifact: %s",
		e.Horizon, strings.Join(e.Missing, ", "))
}
