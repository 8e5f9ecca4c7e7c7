package artifact

import (
	"fmt"
	"math"

	"github.com/hyperjump/yobou/internal/models"
	"github.com/hyperjump/yobou/pkg/utils"
)

// IsoNode is one node of an isolation tree. Leaves have Left == -1 and carry
// the size of the training sample that terminated there.
type IsoNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Size      int     `json:"size"`
}

// IsoTree is a flattened isolation tree, root at index 0.
type IsoTree struct {
	Nodes []IsoNode `json:"nodes"`
}

// FeatureStats captures a feature's training-set location and spread, used
// to attribute anomaly scores to the features deviating most from normal.
type FeatureStats struct {
	Median float64 `json:"median"`
	IQR    float64 `json:"iqr"`
}

// Detector is an isolation forest for anomaly scoring. ScoreMin and ScoreMax
// are the raw-score bounds observed on the training set; inference maps raw
// scores into [0,1] against them so the output is comparable across machines.
type Detector struct {
	Kind         string                  `json:"kind"`
	ModelVersion string                  `json:"version"`
	FeatureNames []string                `json:"feature_names"`
	SampleSize   int                     `json:"sample_size"`
	ScoreMin     float64                 `json:"score_min"`
	ScoreMax     float64                 `json:"score_max"`
	Stats        map[string]FeatureStats `json:"feature_stats"`
	Trees        []IsoTree               `json:"trees"`
}

// Version returns the artifact's version string.
func (d *Detector) Version() string {
	return d.ModelVersion
}

// Predict evaluates vec into a normalized anomaly score in [0,1] and
// per-feature deviation contributions. Higher means more anomalous.
func (d *Detector) Predict(vec *models.FeatureVector) (float64, map[string]float64, error) {
	x, err := orderedValues(vec, d.FeatureNames, "")
	if err != nil {
		return 0, nil, err
	}

	var total float64
	for _, tree := range d.Trees {
		total += tree.pathLength(x)
	}
	avg := total / float64(len(d.Trees))
	raw := math.Pow(2, -avg/avgPathLength(d.SampleSize))

	score := raw
	if d.ScoreMax > d.ScoreMin {
		score = (raw - d.ScoreMin) / (d.ScoreMax - d.ScoreMin)
	}
	return utils.Clamp01(score), d.contributions(x), nil
}

// contributions measures each feature's robust deviation from the training
// median, scaled by IQR. Not path-based: isolation trees split at random, so
// deviation against the fitted distribution attributes more faithfully.
func (d *Detector) contributions(x []float64) map[string]float64 {
	contrib := make(map[string]float64, len(d.FeatureNames))
	for i, name := range d.FeatureNames {
		st, ok := d.Stats[name]
		if !ok {
			continue
		}
		iqr := st.IQR
		if iqr <= 0 {
			iqr = 1
		}
		contrib[name] = math.Abs(x[i]-st.Median) / iqr
	}
	return contrib
}

// pathLength walks the tree for x and returns the isolation depth, with the
// standard c(n) correction for the leaf's residual sample size.
func (t *IsoTree) pathLength(x []float64) float64 {
	depth := 0.0
	i := 0
	for t.Nodes[i].Left != -1 {
		node := t.Nodes[i]
		if x[node.Feature] < node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
		depth++
	}
	return depth + avgPathLength(t.Nodes[i].Size)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n samples.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}

func (d *Detector) validate() error {
	if d.Kind != "anomaly_detector" {
		return fmt.Errorf("unexpected artifact kind %q", d.Kind)
	}
	if len(d.FeatureNames) == 0 {
		return fmt.Errorf("artifact has no feature names")
	}
	if len(d.Trees) == 0 {
		return fmt.Errorf("artifact has no trees")
	}
	if d.SampleSize < 2 {
		return fmt.Errorf("sample size %d too small", d.SampleSize)
	}
	for ti, tree := range d.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range tree.Nodes {
			if n.Left == -1 {
				continue
			}
			if n.Left < 0 || n.Left >= len(tree.Nodes) || n.Right < 0 || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, ni)
			}
			if n.Feature < 0 || n.Feature >= len(d.FeatureNames) {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, n.Feature)
			}
		}
	}
	return nil
}
