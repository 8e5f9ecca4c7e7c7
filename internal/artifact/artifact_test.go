package artifact

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/yobou/internal/models"
)

// testClassifier splits once on temperature_roll3_mean at 70: cooler machines
// get a negative margin, hotter ones a positive margin.
func testClassifier() *Classifier {
	return &Classifier{
		Kind:         "failure_classifier",
		ModelVersion: "test-1",
		FeatureNames: []string{"temperature_roll3_mean", "vibration_roll3_mean"},
		Bias:         0,
		Trees: []Tree{{Nodes: []TreeNode{
			{Feature: 0, Threshold: 70, Left: 1, Right: 2, Value: 0},
			{Left: -1, Value: -2},
			{Left: -1, Value: 2},
		}}},
		horizon: "24h",
	}
}

func vec(temp, vib float64) *models.FeatureVector {
	return &models.FeatureVector{
		MachineID: "m1",
		AsOf:      time.Now().UTC(),
		Values: map[string]float64{
			"temperature_roll3_mean": temp,
			"vibration_roll3_mean":   vib,
		},
	}
}

func TestClassifierPredict(t *testing.T) {
	clf := testClassifier()

	hot, contrib, err := clf.Predict(vec(85, 0.2))
	if err != nil {
		t.Fatal(err)
	}
	if hot <= 0.5 {
		t.Errorf("hot machine probability: got %f, want > 0.5", hot)
	}
	if contrib["temperature_roll3_mean"] <= 0 {
		t.Errorf("temperature contribution should be positive, got %f", contrib["temperature_roll3_mean"])
	}
	if contrib["vibration_roll3_mean"] != 0 {
		t.Errorf("untouched feature should contribute 0, got %f", contrib["vibration_roll3_mean"])
	}

	cool, contrib, err := clf.Predict(vec(55, 0.2))
	if err != nil {
		t.Fatal(err)
	}
	if cool >= 0.5 {
		t.Errorf("cool machine probability: got %f, want < 0.5", cool)
	}
	if contrib["temperature_roll3_mean"] >= 0 {
		t.Errorf("temperature contribution should be negative, got %f", contrib["temperature_roll3_mean"])
	}
}

func TestClassifierContributionsSumToMargin(t *testing.T) {
	clf := testClassifier()
	clf.Bias = 0.5
	p, contrib, err := clf.Predict(vec(85, 0.2))
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, c := range contrib {
		sum += c
	}
	// sigmoid(bias + sum) must reproduce the probability.
	want := 1 / (1 + math.Exp(-(clf.Bias + sum)))
	if math.Abs(p-want) > 1e-9 {
		t.Errorf("probability %f does not match bias+contributions %f", p, want)
	}
}

func TestClassifierFeatureMismatch(t *testing.T) {
	clf := testClassifier()
	_, _, err := clf.Predict(&models.FeatureVector{
		Values: map[string]float64{"temperature_roll3_mean": 80},
	})
	var mismatch *models.FeatureMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("got %v, want FeatureMismatchError", err)
	}
	if mismatch.Horizon != "24h" {
		t.Errorf("horizon: got %q", mismatch.Horizon)
	}
	if len(mismatch.Missing) != 1 || mismatch.Missing[0] != "vibration_roll3_mean" {
		t.Errorf("missing: got %v", mismatch.Missing)
	}
}

func TestClassifierExtraKeysIgnored(t *testing.T) {
	clf := testClassifier()
	v := vec(85, 0.2)
	v.Values["humidity_roll3_mean"] = 40
	if _, _, err := clf.Predict(v); err != nil {
		t.Fatalf("extra keys must be ignored: %v", err)
	}
}

func testDetector() *Detector {
	// One tree isolating high temperature quickly: anything past 90 lands in
	// a singleton leaf at depth 1.
	return &Detector{
		Kind:         "anomaly_detector",
		ModelVersion: "test-1",
		FeatureNames: []string{"temperature_roll3_mean", "vibration_roll3_mean"},
		SampleSize:   64,
		ScoreMin:     0.3,
		ScoreMax:     0.8,
		Stats: map[string]FeatureStats{
			"temperature_roll3_mean": {Median: 65, IQR: 5},
			"vibration_roll3_mean":   {Median: 0.3, IQR: 0.1},
		},
		Trees: []IsoTree{{Nodes: []IsoNode{
			{Feature: 0, Threshold: 90, Left: 1, Right: 2},
			{Left: -1, Size: 63},
			{Left: -1, Size: 1},
		}}},
	}
}

func TestDetectorOrdering(t *testing.T) {
	det := testDetector()
	normal, _, err := det.Predict(vec(65, 0.3))
	if err != nil {
		t.Fatal(err)
	}
	outlier, _, err := det.Predict(vec(120, 0.3))
	if err != nil {
		t.Fatal(err)
	}
	if outlier <= normal {
		t.Errorf("outlier score %f should exceed normal score %f", outlier, normal)
	}
	if normal < 0 || normal > 1 || outlier < 0 || outlier > 1 {
		t.Errorf("scores must stay in [0,1]: %f, %f", normal, outlier)
	}
}

func TestDetectorContributions(t *testing.T) {
	det := testDetector()
	_, contrib, err := det.Predict(vec(120, 0.3))
	if err != nil {
		t.Fatal(err)
	}
	if contrib["temperature_roll3_mean"] <= contrib["vibration_roll3_mean"] {
		t.Errorf("deviant temperature should dominate: %v", contrib)
	}
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "failure_24h.json"), testClassifier())
	writeJSON(t, filepath.Join(dir, "anomaly.json"), testDetector())

	b, err := Load(dir, []string{"24h", "72h"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Classifier("24h") == nil {
		t.Error("24h classifier should load")
	}
	if b.Classifier("72h") != nil {
		t.Error("72h classifier has no artifact and must be nil")
	}
	if b.Detector() == nil {
		t.Error("detector should load")
	}
	if got := b.Classifier("24h").Version(); got != "test-1" {
		t.Errorf("version: got %q", got)
	}
}

func TestLoadEmptyDirectory(t *testing.T) {
	b, err := Load(t.TempDir(), []string{"24h"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Horizons()) != 0 {
		t.Errorf("empty dir should yield no classifiers, got %v", b.Horizons())
	}
	if b.Detector() != nil {
		t.Error("empty dir should yield no detector")
	}
}

func TestLoadRejectsCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	bad := testClassifier()
	bad.Trees[0].Nodes[0].Left = 99
	writeJSON(t, filepath.Join(dir, "failure_24h.json"), bad)
	if _, err := Load(dir, []string{"24h"}, nil); err == nil {
		t.Error("out-of-range child index must fail the load")
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
}
