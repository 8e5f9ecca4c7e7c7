// Package features derives fixed-schema feature vectors from raw sensor time series.
package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hyperjump/yobou/internal/config"
	"github.com/hyperjump/yobou/internal/models"
)

// Build derives a feature vector for one machine at asOf from raw readings.
// It is a pure function: same readings, asOf, and config always produce the
// same vector. Readings after asOf and readings for other machines are
// ignored. Out-of-order input is sorted before windowing.
//
// Per configured channel it computes, over each trailing window of the last N
// readings: mean, standard deviation, min, max; plus lag features (value N
// samples back) and the time gap in seconds since the channel's most recent
// reading. A channel with zero usable readings is filled with the configured
// sentinel so the vector's key set always matches the artifact schema; only a
// machine with no usable reading on any configured channel fails, with
// models.ErrNoReadings.
func Build(readings []models.Reading, machineID string, asOf time.Time, cfg *config.FeatureConfig) (*models.FeatureVector, error) {
	byChannel := make(map[string][]models.Reading, len(cfg.Channels))
	configured := make(map[string]bool, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		configured[ch] = true
	}

	usable := 0
	for _, r := range readings {
		if r.MachineID != machineID || !configured[r.Sensor] || r.Timestamp.After(asOf) {
			continue
		}
		byChannel[r.Sensor] = append(byChannel[r.Sensor], r)
		usable++
	}
	if usable == 0 {
		return nil, fmt.Errorf("machine %s at %s: %w", machineID, asOf.Format(time.RFC3339), models.ErrNoReadings)
	}

	values := make(map[string]float64)
	for _, ch := range cfg.Channels {
		series := byChannel[ch]
		if len(series) == 0 {
			fillSentinel(values, ch, cfg)
			continue
		}
		models.SortReadings(series)
		channelFeatures(values, ch, series, asOf, cfg)
	}

	return &models.FeatureVector{MachineID: machineID, AsOf: asOf, Values: values}, nil
}

// Names returns the complete feature schema for cfg in sorted order. Artifacts
// are validated against this set at load time.
func Names(cfg *config.FeatureConfig) []string {
	names := make([]string, 0, len(cfg.Channels)*(4*len(cfg.Windows)+len(cfg.Lags)+1))
	for _, ch := range cfg.Channels {
		for _, w := range cfg.Windows {
			names = append(names,
				rollName(ch, w, "mean"),
				rollName(ch, w, "std"),
				rollName(ch, w, "min"),
				rollName(ch, w, "max"))
		}
		for _, l := range cfg.Lags {
			names = append(names, lagName(ch, l))
		}
		names = append(names, gapName(ch))
	}
	sort.Strings(names)
	return names
}

func channelFeatures(out map[string]float64, ch string, series []models.Reading, asOf time.Time, cfg *config.FeatureConfig) {
	vals := make([]float64, len(series))
	for i, r := range series {
		vals[i] = r.Value
	}

	for _, w := range cfg.Windows {
		window := vals
		if len(vals) > w {
			window = vals[len(vals)-w:]
		}
		mean, std, min, max := stats(window)
		out[rollName(ch, w, "mean")] = mean
		out[rollName(ch, w, "std")] = std
		out[rollName(ch, w, "min")] = min
		out[rollName(ch, w, "max")] = max
	}

	for _, l := range cfg.Lags {
		// Short history degrades to the oldest sample rather than failing.
		i := len(vals) - 1 - l
		if i < 0 {
			i = 0
		}
		out[lagName(ch, l)] = vals[i]
	}

	last := series[len(series)-1].Timestamp
	out[gapName(ch)] = asOf.Sub(last).Seconds()
}

func fillSentinel(out map[string]float64, ch string, cfg *config.FeatureConfig) {
	for _, w := range cfg.Windows {
		out[rollName(ch, w, "mean")] = cfg.Sentinel
		out[rollName(ch, w, "std")] = cfg.Sentinel
		out[rollName(ch, w, "min")] = cfg.Sentinel
		out[rollName(ch, w, "max")] = cfg.Sentinel
	}
	for _, l := range cfg.Lags {
		out[lagName(ch, l)] = cfg.Sentinel
	}
	out[gapName(ch)] = cfg.Sentinel
}

// stats returns mean, sample standard deviation, min, and max of vals.
// A single-sample window has std 0.
func stats(vals []float64) (mean, std, min, max float64) {
	min = vals[0]
	max = vals[0]
	var sum float64
	for _, v := range vals {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean = sum / float64(len(vals))
	if len(vals) > 1 {
		var ss float64
		for _, v := range vals {
			d := v - mean
			ss += d * d
		}
		std = math.Sqrt(ss / float64(len(vals)-1))
	}
	return mean, std, min, max
}

func rollName(ch string, window int, stat string) string {
	return fmt.Sprintf("%s_roll%d_%s", ch, window, stat)
}

func lagName(ch string, lag int) string {
	return fmt.Sprintf("%s_lag%d", ch, lag)
}

func gapName(ch string) string {
	return fmt.Sprintf("%s_gap_s", ch)
}
