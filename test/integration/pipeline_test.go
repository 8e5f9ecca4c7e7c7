// Package integration provides end-to-end tests (requires real storage and indices).
package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/yobou/internal/artifact"
	"github.com/hyperjump/yobou/internal/config"
	"github.com/hyperjump/yobou/internal/embedding"
	"github.com/hyperjump/yobou/internal/extract"
	"github.com/hyperjump/yobou/internal/indexer"
	"github.com/hyperjump/yobou/internal/ingest"
	"github.com/hyperjump/yobou/internal/keyword"
	"github.com/hyperjump/yobou/internal/models"
	"github.com/hyperjump/yobou/internal/retrieval"
	"github.com/hyperjump/yobou/internal/scoring"
	"github.com/hyperjump/yobou/internal/storage"
	"github.com/hyperjump/yobou/internal/vector"
	"go.uber.org/zap"
)

// writeArtifacts writes a fitted classifier and anomaly detector the way the
// training pipeline exports them.
func writeArtifacts(t *testing.T, dir string) {
	t.Helper()
	classifier := map[string]interface{}{
		"kind":          "failure_classifier",
		"version":       "it-1",
		"feature_names": []string{"temperature_roll3_mean", "temperature_lag1"},
		"bias":          0.0,
		"trees": []map[string]interface{}{
			{"nodes": []map[string]interface{}{
				{"feature": 0, "threshold": 70, "left": 1, "right": 2, "value": 0},
				{"left": -1, "value": -2},
				{"left": -1, "value": 2},
			}},
		},
	}
	detector := map[string]interface{}{
		"kind":          "anomaly_detector",
		"version":       "it-1",
		"feature_names": []string{"temperature_roll3_mean", "temperature_lag1"},
		"sample_size":   16,
		"score_min":     0.3,
		"score_max":     0.8,
		"feature_stats": map[string]interface{}{
			"temperature_roll3_mean": map[string]float64{"median": 65, "iqr": 10},
			"temperature_lag1":       map[string]float64{"median": 65, "iqr": 10},
		},
		"trees": []map[string]interface{}{
			{"nodes": []map[string]interface{}{
				{"feature": 0, "threshold": 65, "left": 1, "right": 2, "size": 16},
				{"left": -1, "size": 8},
				{"left": -1, "size": 8},
			}},
		},
	}
	for name, payload := range map[string]interface{}{
		"failure_24h.json": classifier,
		"anomaly.json":     detector,
	} {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestIntegration_ScoringPipeline(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Features.Windows = []int{3}
	cfg.Features.Lags = []int{1}
	cfg.Features.Channels = []string{"temperature"}
	cfg.Scoring.Horizons = []string{"24h", "72h"}

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	writeArtifacts(t, dir)
	bundle, err := artifact.Load(dir, cfg.Scoring.Horizons, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	// Readings arrive through the CSV ingest path, the way an operator loads
	// an export from the historian.
	csv := strings.Join([]string{
		"machine_id,sensor,timestamp,value",
		"press-3,temperature,2025-06-01T12:00:00Z,78",
		"press-3,temperature,2025-06-01T12:01:00Z,81",
		"press-3,temperature,2025-06-01T12:02:00Z,84",
		"press-3,temperature,2025-06-01T12:03:00Z,88",
	}, "\n")
	readings, err := ingest.ReadCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := store.InsertReadings(ctx, readings); err != nil {
		t.Fatal(err)
	}

	orch := scoring.NewOrchestrator(store, bundle, &cfg.Features, &cfg.Scoring)
	result, err := orch.Score(ctx, &models.ScoreRequest{
		MachineID:      "press-3",
		AsOf:           time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC),
		IncludeAnomaly: true,
		IncludeFactors: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Predictions) != 2 {
		t.Fatalf("predictions: got %d, want one per horizon", len(result.Predictions))
	}

	p24 := result.Predictions[0]
	if p24.Horizon != "24h" || p24.Degraded {
		t.Fatalf("24h slot: %+v", p24)
	}
	if p24.FailureProbability <= 0.5 {
		t.Errorf("overheating press should score high, got %f", p24.FailureProbability)
	}
	if len(p24.TopFactors) == 0 || !strings.HasPrefix(p24.TopFactors[0].Feature, "temperature") {
		t.Errorf("top factor should be a temperature feature: %+v", p24.TopFactors)
	}
	if p24.AnomalyScore == nil {
		t.Fatal("anomaly score should be set when the detector artifact is loaded")
	}
	if *p24.AnomalyScore < 0 || *p24.AnomalyScore > 1 {
		t.Errorf("anomaly score out of range: %f", *p24.AnomalyScore)
	}

	// 72h has no artifact on disk; the slot degrades instead of failing.
	p72 := result.Predictions[1]
	if !p72.Degraded || p72.FailureProbability != 0.5 || p72.Confidence != 0 {
		t.Errorf("72h slot should be neutral degraded: %+v", p72)
	}
}

func TestIntegration_RetrievalPipeline(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Retrieval.ChunkSize = 40
	cfg.Retrieval.ChunkOverlap = 8
	cfg.Embedding.Dimensions = 256

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	embedder := embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
	defer embedder.Close()

	vecIndex, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		t.Fatal(err)
	}
	defer vecIndex.Close()

	kwIndex, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	defer kwIndex.Close()

	idx := indexer.NewIndexer(store, embedder, vecIndex, kwIndex, &cfg.Retrieval, extract.NewExtractor())
	engine := retrieval.NewEngine(store, embedder, vecIndex, kwIndex, &cfg.Retrieval)
	ctx := context.Background()

	// Manuals come in as files, the way the watcher hands them over.
	manualPath := filepath.Join(dir, "pump-manual.txt")
	manual := "Replace the bearing every 6 months. Use NLGI 2 grease for the bearing housing. " +
		"Check the seal for leaks during each inspection."
	if err := os.WriteFile(manualPath, []byte(manual), 0644); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(ctx, manualPath, nil); err != nil {
		t.Fatal(err)
	}

	answer, err := engine.Ask(ctx, &models.AskRequest{
		Question: "How often should the bearing be replaced?",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answer.Text, "Replace the bearing every 6 months") {
		t.Errorf("answer text: %q", answer.Text)
	}
	if len(answer.Citations) == 0 || !strings.Contains(answer.Citations[0].SourceTitle, "pump") {
		t.Errorf("citations: %+v", answer.Citations)
	}

	// The vector index persists across a restart.
	savePath := filepath.Join(dir, "vectors")
	if err := vecIndex.Save(savePath); err != nil {
		t.Fatal(err)
	}
	reloaded, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close()
	if err := reloaded.Load(savePath); err != nil {
		t.Fatal(err)
	}
	if reloaded.Size() != vecIndex.Size() {
		t.Errorf("reloaded index size %d, want %d", reloaded.Size(), vecIndex.Size())
	}

	engine2 := retrieval.NewEngine(store, embedder, reloaded, kwIndex, &cfg.Retrieval)
	answer2, err := engine2.Ask(ctx, &models.AskRequest{Question: "How often should the bearing be replaced?"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answer2.Text, "Replace the bearing every 6 months") {
		t.Errorf("answer after reload: %q", answer2.Text)
	}
}
