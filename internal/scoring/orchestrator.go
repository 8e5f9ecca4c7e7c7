// Package scoring coordinates feature building, failure classification,
// anomaly scoring, and factor attribution into a single request path.
package scoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/yobou/internal/artifact"
	"github.com/hyperjump/yobou/internal/attribution"
	"github.com/hyperjump/yobou/internal/config"
	"github.com/hyperjump/yobou/internal/features"
	"github.com/hyperjump/yobou/internal/models"
	"go.uber.org/zap"
)

// ReadingSource provides the sensor history for one machine up to a point in
// time. Implemented by the storage layer.
type ReadingSource interface {
	GetReadings(ctx context.Context, machineID string, asOf time.Time) ([]models.Reading, error)
}

// Result is a complete scoring response for one machine: one prediction per
// requested horizon, in request order.
type Result struct {
	MachineID   string              `json:"machine_id"`
	AsOf        time.Time           `json:"as_of"`
	Predictions []models.Prediction `json:"predictions"`
}

// Orchestrator runs the scoring pipeline. Feature vectors are built once per
// request and shared across horizons; horizons are scored concurrently.
// Results are cached for a short TTL and invalidated when new readings arrive.
type Orchestrator struct {
	source     ReadingSource
	bundle     *artifact.Bundle
	featureCfg *config.FeatureConfig
	scoringCfg *config.ScoringConfig
	cache      *resultCache
	logger     *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an orchestrator over the given reading source and
// loaded artifacts.
func NewOrchestrator(source ReadingSource, bundle *artifact.Bundle, featureCfg *config.FeatureConfig, scoringCfg *config.ScoringConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:     source,
		bundle:     bundle,
		featureCfg: featureCfg,
		scoringCfg: scoringCfg,
		cache:      newResultCache(time.Duration(scoringCfg.CacheTTLSeconds) * time.Second),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Score evaluates req and returns one prediction per horizon. Horizons with
// no loaded classifier yield a neutral degraded prediction; the request fails
// with models.ErrNoModelAvailable only when every requested horizon is
// missing, and with models.ErrNoReadings when the machine has no usable
// sensor history.
func (o *Orchestrator) Score(ctx context.Context, req *models.ScoreRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	horizons := req.Horizons
	if len(horizons) == 0 {
		horizons = o.scoringCfg.Horizons
	}

	key := cacheKey(req.MachineID, req.AsOf, o.cache.ttl, horizons, req.IncludeAnomaly, req.IncludeFactors)
	if cached, ok := o.cache.get(key); ok {
		o.logger.Debug("scoring cache hit", zap.String("machine", req.MachineID))
		return cached, nil
	}

	available := 0
	for _, h := range horizons {
		if o.bundle.Classifier(h) != nil {
			available++
		}
	}
	if available == 0 {
		return nil, fmt.Errorf("horizons %v: %w", horizons, models.ErrNoModelAvailable)
	}

	readings, err := o.source.GetReadings(ctx, req.MachineID, req.AsOf)
	if err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}
	vec, err := features.Build(readings, req.MachineID, req.AsOf, o.featureCfg)
	if err != nil {
		return nil, err
	}

	// Anomaly score is horizon-independent: compute once, stamp on every
	// prediction. Stays nil when no detector artifact is loaded so callers
	// see "not computed" rather than a fabricated 0.
	var anomalyScore *float64
	if req.IncludeAnomaly {
		if det := o.bundle.Detector(); det != nil {
			score, _, err := det.Predict(vec)
			if err != nil {
				return nil, fmt.Errorf("anomaly scoring: %w", err)
			}
			anomalyScore = &score
		} else {
			o.logger.Warn("anomaly score requested but no detector loaded",
				zap.String("machine", req.MachineID))
		}
	}

	predictions := make([]models.Prediction, len(horizons))
	errChan := make(chan error, len(horizons))
	var wg sync.WaitGroup
	for i, h := range horizons {
		wg.Add(1)
		go func(i int, horizon string) {
			defer wg.Done()
			pred, err := o.scoreHorizon(vec, horizon, req)
			if err != nil {
				errChan <- err
				return
			}
			pred.AnomalyScore = anomalyScore
			predictions[i] = *pred
		}(i, h)
	}
	wg.Wait()
	close(errChan)
	if err := <-errChan; err != nil {
		return nil, err
	}

	result := &Result{MachineID: req.MachineID, AsOf: req.AsOf, Predictions: predictions}
	o.cache.set(key, result)

	o.logger.Info("machine scored",
		zap.String("machine", req.MachineID),
		zap.Strings("horizons", horizons),
		zap.Bool("anomaly_scored", anomalyScore != nil),
		zap.Int("degraded", len(horizons)-available))
	return result, nil
}

// scoreHorizon evaluates one horizon against the shared feature vector.
func (o *Orchestrator) scoreHorizon(vec *models.FeatureVector, horizon string, req *models.ScoreRequest) (*models.Prediction, error) {
	clf := o.bundle.Classifier(horizon)
	if clf == nil {
		o.logger.Warn("no classifier for horizon, degrading",
			zap.String("machine", req.MachineID), zap.String("horizon", horizon))
		return &models.Prediction{
			MachineID:          req.MachineID,
			Horizon:            horizon,
			AsOf:               req.AsOf,
			FailureProbability: 0.5,
			Confidence:         0,
			Degraded:           true,
		}, nil
	}

	prob, contrib, err := clf.Predict(vec)
	if err != nil {
		return nil, err
	}
	pred := &models.Prediction{
		MachineID:          req.MachineID,
		Horizon:            horizon,
		AsOf:               req.AsOf,
		FailureProbability: prob,
		Confidence:         confidence(prob),
		ModelVersion:       clf.Version(),
	}
	if req.IncludeFactors {
		pred.TopFactors = attribution.Rank(contrib, o.scoringCfg.TopFactors)
	}
	return pred, nil
}

// Invalidate drops cached results for machineID. Called by the ingest path.
func (o *Orchestrator) Invalidate(machineID string) {
	o.cache.invalidate(machineID)
}

// Horizons returns the horizons with a loaded classifier, for status surfaces.
func (o *Orchestrator) Horizons() []string {
	return o.bundle.Horizons()
}

// confidence maps a probability to how far the model is from a coin flip:
// 0 at p=0.5, 1 at either extreme.
func confidence(p float64) float64 {
	c := 2 * (p - 0.5)
	if c < 0 {
		c = -c
	}
	return c
}
