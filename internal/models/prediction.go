package models

import (
	"fmt"
	"time"
)

// Factor is one ranked contributor to a prediction. Importance is the
// factor's share of the total contribution mass, so a truncated top-k list
// sums to less than 1.
type Factor struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Prediction is the scored outcome for one machine and one horizon.
// AnomalyScore is nil unless an anomaly score was requested and a detector
// artifact was loaded; absence is distinguishable from a normal score of 0.
type Prediction struct {
	MachineID          string    `json:"machine_id"`
	Horizon            string    `json:"horizon"`
	AsOf               time.Time `json:"as_of"`
	FailureProbability float64   `json:"failure_probability"`
	AnomalyScore       *float64  `json:"anomaly_score,omitempty"`
	Confidence         float64   `json:"confidence"`
	TopFactors         []Factor  `json:"top_factors,omitempty"`
	Degraded           bool      `json:"degraded"`
	ModelVersion       string    `json:"model_version,omitempty"`
}

// ScoreRequest asks for predictions for one machine. Empty Horizons means
// the configured default set.
type ScoreRequest struct {
	MachineID      string    `json:"machine_id"`
	AsOf           time.Time `json:"as_of,omitempty"`
	Horizons       []string  `json:"horizons,omitempty"`
	IncludeAnomaly bool      `json:"include_anomaly,omitempty"`
	IncludeFactors bool      `json:"include_factors,omitempty"`
}

// Validate checks required fields and defaults AsOf to the current time.
func (r *ScoreRequest) Validate() error {
	if r.MachineID == "" {
		return fmt.Errorf("machine_id is required")
	}
	if r.AsOf.IsZero() {
		r.AsOf = time.Now().UTC()
	}
	return nil
}
