package models

import (
	"fmt"
	"time"
)

// Citation names a source document backing an answer. Relevance is in [0,1].
type Citation struct {
	SourceTitle string  `json:"source_title"`
	Relevance   float64 `json:"relevance"`
}

// Answer is the response to a manual question: extractive text with the
// sources it came from.
type Answer struct {
	Text       string        `json:"text"`
	Citations  []Citation    `json:"citations"`
	Confidence float64       `json:"confidence"`
	QueryTime  time.Duration `json:"query_time"`
}

// AskRequest is a natural-language question against the indexed manuals.
type AskRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// Validate checks the question and bounds TopK.
func (r *AskRequest) Validate() error {
	if r.Question == "" {
		return fmt.Errorf("question is required")
	}
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.TopK > 50 {
		r.TopK = 50
	}
	return nil
}
