// Package cli provides output formatting for the yobou command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/yobou/internal/models"
	"github.com/hyperjump/yobou/internal/scoring"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteScoreResult writes a scoring result to w in the given format.
func WriteScoreResult(w io.Writer, result *scoring.Result, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	writeScoreResultText(w, result)
	return nil
}

func writeScoreResultText(w io.Writer, result *scoring.Result) {
	fmt.Fprintf(w, "\nMachine %s as of %s\n\n", result.MachineID, result.AsOf.Format("2006-01-02 15:04:05 MST"))
	for _, pred := range result.Predictions {
		writeOnePrediction(w, &pred)
	}
}

func writeOnePrediction(w io.Writer, pred *models.Prediction) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	if pred.Degraded {
		fmt.Fprintf(w, "Horizon %s: DEGRADED (no model loaded for this horizon)\n\n", pred.Horizon)
		return
	}
	anomaly := "n/a"
	if pred.AnomalyScore != nil {
		anomaly = fmt.Sprintf("%.2f", *pred.AnomalyScore)
	}
	fmt.Fprintf(w, "Horizon %s | Failure: %.1f%% | Confidence: %.2f | Anomaly: %s\n",
		pred.Horizon, pred.FailureProbability*100, pred.Confidence, anomaly)
	if pred.ModelVersion != "" {
		fmt.Fprintf(w, "Model: %s\n", pred.ModelVersion)
	}
	if len(pred.TopFactors) > 0 {
		fmt.Fprintf(w, "Top factors:\n")
		for _, f := range pred.TopFactors {
			fmt.Fprintf(w, "  %-40s %5.1f%%\n", f.Feature, f.Importance*100)
		}
	}
	fmt.Fprintln(w)
}

// WriteAnswer writes a retrieval answer to w in the given format.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}
	writeAnswerText(w, answer)
	return nil
}

func writeAnswerText(w io.Writer, answer *models.Answer) {
	fmt.Fprintf(w, "\n%s\n\n", strings.TrimSpace(answer.Text))
	if len(answer.Citations) > 0 {
		fmt.Fprintln(w, "Sources:")
		for _, c := range answer.Citations {
			fmt.Fprintf(w, "  [%.2f] %s\n", c.Relevance, c.SourceTitle)
		}
	}
	fmt.Fprintf(w, "\nConfidence: %.2f (answered in %dms)\n",
		answer.Confidence, answer.QueryTime.Milliseconds())
}
