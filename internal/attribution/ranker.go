// Package attribution turns raw model contributions into ranked factors.
package attribution

import (
	"math"
	"sort"

	"github.com/hyperjump/yobou/internal/models"
)

// Rank converts per-feature contributions into the top-k factors by absolute
// magnitude. Each importance is the factor's share of the total absolute
// contribution mass, so a full list sums to 1 and a truncated top-k list sums
// to the share of mass it covers. Shares stay comparable across horizons and
// machines regardless of truncation. Zero contributions are dropped; ties
// break on feature name so output is deterministic. Returns nil when every
// contribution is zero.
func Rank(contributions map[string]float64, topK int) []models.Factor {
	if topK <= 0 || len(contributions) == 0 {
		return nil
	}

	var total float64
	factors := make([]models.Factor, 0, len(contributions))
	for name, c := range contributions {
		abs := math.Abs(c)
		if abs == 0 {
			continue
		}
		factors = append(factors, models.Factor{Feature: name, Importance: abs})
		total += abs
	}
	if total == 0 {
		return nil
	}

	sort.Slice(factors, func(i, j int) bool {
		if factors[i].Importance != factors[j].Importance {
			return factors[i].Importance > factors[j].Importance
		}
		return factors[i].Feature < factors[j].Feature
	})

	if len(factors) > topK {
		factors = factors[:topK]
	}
	for i := range factors {
		factors[i].Importance /= total
	}
	return factors
}
