package artifact

import (
	"fmt"

	"github.com/hyperjump/yobou/internal/models"
	"github.com/hyperjump/yobou/pkg/utils"
)

// TreeNode is one node of a decision tree. Internal nodes split on
// FeatureNames[Feature] at Threshold (left when value < threshold); leaves
// have Left == -1. Value holds the expected margin of the samples reaching
// the node, so walking a path yields per-split contribution deltas.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Tree is a flattened decision tree, root at index 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// Classifier is a gradient-boosted tree ensemble for binary failure
// classification. The fields mirror the JSON artifact layout; the struct is
// read-only after load.
type Classifier struct {
	Kind         string   `json:"kind"`
	ModelVersion string   `json:"version"`
	FeatureNames []string `json:"feature_names"`
	Bias         float64  `json:"bias"`
	Trees        []Tree   `json:"trees"`

	horizon string
}

// Version returns the artifact's version string.
func (c *Classifier) Version() string {
	return c.ModelVersion
}

// Predict evaluates vec into a failure probability in [0,1] and signed
// per-feature margin contributions. A vector missing any of the artifact's
// feature names fails with models.FeatureMismatchError; extra keys in vec
// are ignored.
func (c *Classifier) Predict(vec *models.FeatureVector) (float64, map[string]float64, error) {
	x, err := orderedValues(vec, c.FeatureNames, c.horizon)
	if err != nil {
		return 0, nil, err
	}

	contrib := make(map[string]float64, len(c.FeatureNames))
	margin := c.Bias
	for _, tree := range c.Trees {
		margin += tree.walk(x, c.FeatureNames, contrib)
	}
	return utils.Sigmoid(margin), contrib, nil
}

// walk descends the tree for x, attributing each node-to-child change in
// expected value to the split feature, and returns the leaf margin.
func (t *Tree) walk(x []float64, names []string, contrib map[string]float64) float64 {
	i := 0
	for t.Nodes[i].Left != -1 {
		node := t.Nodes[i]
		next := node.Right
		if x[node.Feature] < node.Threshold {
			next = node.Left
		}
		contrib[names[node.Feature]] += t.Nodes[next].Value - node.Value
		i = next
	}
	return t.Nodes[i].Value
}

func (c *Classifier) validate() error {
	if c.Kind != "failure_classifier" {
		return fmt.Errorf("unexpected artifact kind %q", c.Kind)
	}
	if len(c.FeatureNames) == 0 {
		return fmt.Errorf("artifact has no feature names")
	}
	if len(c.Trees) == 0 {
		return fmt.Errorf("artifact has no trees")
	}
	for ti, tree := range c.Trees {
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
			if n.Feature < 0 || n.Feature >= len(c.FeatureNames) {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, n.Feature)
			}
		}
	}
	return nil
}
