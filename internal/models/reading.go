// Package models defines the core domain types shared across packages.
package models

import (
	"fmt"
	"sort"
	"time"
)

// Reading is one sensor sample from one machine.
type Reading struct {
	MachineID string    `json:"machine_id" db:"machine_id"`
	Sensor    string    `json:"sensor" db:"sensor"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Value     float64   `json:"value" db:"value"`
}

// Validate checks that the reading carries the fields storage requires.
func (r *Reading) Validate() error {
	if r.MachineID == "" {
		return fmt.Errorf("reading missing machine_id")
	}
	if r.Sensor == "" {
		return fmt.Errorf("reading missing sensor")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("reading missing timestamp")
	}
	return nil
}

// SortReadings orders readings by timestamp ascending, tie-breaking on sensor
// name so feature building is deterministic for simultaneous samples.
func SortReadings(readings []Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		if !readings[i].Timestamp.Equal(readings[j].Timestamp) {
			return readings[i].Timestamp.Before(readings[j].Timestamp)
		}
		return readings[i].Sensor < readings[j].Sensor
	})
}

// FeatureVector is a named feature map derived from one machine's readings
// at one point in time. The key set is fixed by configuration, never by which
// sensors happened to report.
type FeatureVector struct {
	MachineID string             `json:"machine_id"`
	AsOf      time.Time          `json:"as_of"`
	Values    map[string]float64 `json:"values"`
}

// Names returns the vector's feature names in sorted order.
func (v *FeatureVector) Names() []string {
	names := make([]string, 0, len(v.Values))
	for name := range v.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the value for name and whether it is present.
func (v *FeatureVector) Get(name string) (float64, bool) {
	val, ok := v.Values[name]
	return val, ok
}
