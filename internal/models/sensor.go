package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Metric identifies the measured quantity of a reading
type Metric string

const (
	MetricTemperature Metric = "t"
	MetricHumidity    Metric = "h"
	MetricSubstrate   Metric = "s"
	MetricLight       Metric = "l"

	// MetricVPD is derived from temperature and humidity and never stored
	MetricVPD Metric = "vpd"
)

// StoredMetrics lists the metrics a device may report, in display order
var StoredMetrics = []Metric{MetricTemperature, MetricHumidity, MetricSubstrate, MetricLight}

var metricNames = map[Metric]string{
	MetricTemperature: "temperature",
	MetricHumidity:    "humidity",
	MetricSubstrate:   "substrate",
	MetricLight:       "light",
	MetricVPD:         "vpd",
}

// ParseMetric accepts a metric code ("t") or its long name ("temperature")
func ParseMetric(s string) (Metric, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range StoredMetrics {
		if s == string(m) || s == metricNames[m] {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// IsStored reports whether the metric can appear in the reading store
func (m Metric) IsStored() bool {
	switch m {
	case MetricTemperature, MetricHumidity, MetricSubstrate, MetricLight:
		return true
	}
	return false
}

// Name returns the long name used in legacy payloads
func (m Metric) Name() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	return string(m)
}

// Unit returns the display unit of the metric
func (m Metric) Unit() string {
	switch m {
	case MetricTemperature:
		return "°C"
	case MetricHumidity, MetricSubstrate:
		return "%"
	case MetricLight:
		return "lx"
	case MetricVPD:
		return "kPa"
	}
	return ""
}

// Reading is one atomic sensor measurement. Readings are never updated.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Sensor    string    `json:"sensor"`
	Metric    Metric    `json:"metric"`
	Value     float64   `json:"value"`
}

// Validate checks that the reading can be stored
func (r *Reading) Validate() error {
	if strings.TrimSpace(r.Sensor) == "" {
		return fmt.Errorf("sensor is required")
	}
	if !r.Metric.IsStored() {
		return fmt.Errorf("unknown metric %q", r.Metric)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("value for %s/%s is not a finite number", r.Sensor, r.Metric)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// SensorRoom is a registry entry assigning a sensor to a room
type SensorRoom struct {
	Sensor string `json:"sensor"`
	Room   string `json:"room"`
}

// ValueRange bounds the values of one metric. Nil bounds are open.
type ValueRange struct {
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

// Contains reports whether v satisfies every bound of the range
func (vr ValueRange) Contains(v float64) bool {
	if vr.GT != nil && !(v > *vr.GT) {
		return false
	}
	if vr.GTE != nil && !(v >= *vr.GTE) {
		return false
	}
	if vr.LT != nil && !(v < *vr.LT) {
		return false
	}
	if vr.LTE != nil && !(v <= *vr.LTE) {
		return false
	}
	return true
}

// IsEmpty reports whether no bound is set
func (vr ValueRange) IsEmpty() bool {
	return vr.GT == nil && vr.GTE == nil && vr.LT == nil && vr.LTE == nil
}
