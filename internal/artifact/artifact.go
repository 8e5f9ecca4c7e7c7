// Package artifact loads and evaluates trained model artifacts.
//
// Artifacts are opaque, versioned JSON files produced by the offline training
// pipeline. Each bundles a fitted model with the exact feature-name ordering
// it was fitted against; inference validates incoming vectors against that
// ordering and never recomputes anything captured at fit time.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/yobou/internal/models"
	"go.uber.org/zap"
)

// Model is the common capability both artifact kinds expose: evaluate a
// feature vector into a [0,1] score plus signed per-feature contributions.
// Implementations are immutable after load and safe for concurrent use.
type Model interface {
	Predict(vec *models.FeatureVector) (score float64, contributions map[string]float64, err error)
	Version() string
}

// Bundle holds all artifacts loaded for the process lifetime: one failure
// classifier per horizon plus an optional anomaly detector. Read-only shared
// state; replaced only by constructing a new Bundle.
type Bundle struct {
	classifiers map[string]*Classifier
	detector    *Detector
}

// NewBundle builds a bundle from already-constructed artifacts. Used by tests
// and by callers that load artifacts from elsewhere.
func NewBundle(classifiers map[string]*Classifier, detector *Detector) *Bundle {
	if classifiers == nil {
		classifiers = make(map[string]*Classifier)
	}
	for h, clf := range classifiers {
		clf.horizon = h
	}
	return &Bundle{classifiers: classifiers, detector: detector}
}

// Classifier returns the failure classifier for horizon, or nil when that
// horizon has no loaded artifact (the degraded path).
func (b *Bundle) Classifier(horizon string) *Classifier {
	return b.classifiers[horizon]
}

// Detector returns the anomaly detector, or nil when none was loaded.
func (b *Bundle) Detector() *Detector {
	return b.detector
}

// Horizons returns the horizons that have a loaded classifier.
func (b *Bundle) Horizons() []string {
	out := make([]string, 0, len(b.classifiers))
	for h := range b.classifiers {
		out = append(out, h)
	}
	return out
}

// Load reads artifacts from dir: failure_<horizon>.json for each requested
// horizon and anomaly.json for the detector. A missing or unreadable file
// leaves that slot empty rather than failing the load; the orchestrator
// degrades per horizon at request time. Logger may be nil.
func Load(dir string, horizons []string, logger *zap.Logger) (*Bundle, error) {
	b := &Bundle{classifiers: make(map[string]*Classifier, len(horizons))}
	for _, h := range horizons {
		path := filepath.Join(dir, "failure_"+h+".json")
		clf, err := loadClassifier(path)
		if err != nil {
			if logger != nil {
				logger.Warn("classifier artifact unavailable",
					zap.String("horizon", h), zap.String("path", path), zap.Error(err))
			}
			continue
		}
		if err := clf.validate(); err != nil {
			return nil, fmt.Errorf("artifact %s: %w", path, err)
		}
		clf.horizon = h
		b.classifiers[h] = clf
		if logger != nil {
			logger.Info("classifier artifact loaded",
				zap.String("horizon", h), zap.String("version", clf.Version()))
		}
	}

	detPath := filepath.Join(dir, "anomaly.json")
	det, err := loadDetector(detPath)
	if err != nil {
		if logger != nil {
			logger.Warn("anomaly artifact unavailable", zap.String("path", detPath), zap.Error(err))
		}
	} else {
		if err := det.validate(); err != nil {
			return nil, fmt.Errorf("artifact %s: %w", detPath, err)
		}
		b.detector = det
		if logger != nil {
			logger.Info("anomaly artifact loaded", zap.String("version", det.Version()))
		}
	}
	return b, nil
}

func loadClassifier(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var clf Classifier
	if err := json.Unmarshal(data, &clf); err != nil {
		return nil, fmt.Errorf("parse artifact: %w", err)
	}
	return &clf, nil
}

func loadDetector(path string) (*Detector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var det Detector
	if err := json.Unmarshal(data, &det); err != nil {
		return nil, fmt.Errorf("parse artifact: %w", err)
	}
	return &det, nil
}

// orderedValues re-orders vec's values to match featureNames, collecting any
// missing keys. Shared validation for both artifact kinds.
func orderedValues(vec *models.FeatureVector, featureNames []string, horizon string) ([]float64, error) {
	x := make([]float64, len(featureNames))
	var missing []string
	for i, name := range featureNames {
		v, ok := vec.Get(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		x[i] = v
	}
	if len(missing) > 0 {
		return nil, &models.FeatureMismatchError{Horizon: horizon, Missing: missing}
	}
	return x, nil
}
