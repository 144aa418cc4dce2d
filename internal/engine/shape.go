package engine

import (
	"math"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

// FlatRow is one (timestamp, sensor, metric) of a flat response. Value is
// a number, an *Aggregate, or nil for an empty gapless bucket.
type FlatRow struct {
	Timestamp time.Time     `json:"timestamp"`
	Sensor    string        `json:"sensor"`
	Metric    models.Metric `json:"metric"`
	Room      string        `json:"room,omitempty"`
	Value     interface{}   `json:"value"`
}

// LegacyRow is one (timestamp, sensor) with nested aggregates per metric
type LegacyRow struct {
	Timestamp   time.Time  `json:"timestamp"`
	Sensor      string     `json:"sensor"`
	Room        string     `json:"room,omitempty"`
	Temperature *Aggregate `json:"temperature"`
	Humidity    *Aggregate `json:"humidity"`
	Substrate   *Aggregate `json:"substrate,omitempty"`
	Light       *Aggregate `json:"light,omitempty"`
	VPD         *Aggregate `json:"vpd,omitempty"`
}

// ShapeOptions controls the response shaper
type ShapeOptions struct {
	Format       Format
	Aggregations bool
	Precision    int
	// Rooms maps sensor to room; nil disables the annotation
	Rooms map[string]string
}

// Shape converts aggregated rows to the external representation. It
// returns []FlatRow or []LegacyRow depending on the format.
func Shape(rows []Row, opts ShapeOptions) interface{} {
	if opts.Format == FormatLegacy {
		return ShapeLegacy(rows, opts)
	}
	return ShapeFlat(rows, opts)
}

// ShapeFlat emits one object per row
func ShapeFlat(rows []Row, opts ShapeOptions) []FlatRow {
	out := make([]FlatRow, 0, len(rows))
	for _, r := range rows {
		fr := FlatRow{
			Timestamp: r.Timestamp,
			Sensor:    r.Sensor,
			Metric:    r.Metric,
			Room:      opts.Rooms[r.Sensor],
		}
		if r.Agg != nil {
			if opts.Aggregations {
				fr.Value = roundAggregate(r.Agg, opts.Precision)
			} else {
				fr.Value = Round(r.Agg.Mean, opts.Precision)
			}
		}
		out = append(out, fr)
	}
	return out
}

// ShapeLegacy pivots rows into one object per (timestamp, sensor).
// Rows must be sorted by timestamp then sensor.
func ShapeLegacy(rows []Row, opts ShapeOptions) []LegacyRow {
	out := []LegacyRow{}
	for _, r := range rows {
		n := len(out)
		if n == 0 || out[n-1].Sensor != r.Sensor || !out[n-1].Timestamp.Equal(r.Timestamp) {
			out = append(out, LegacyRow{
				Timestamp: r.Timestamp,
				Sensor:    r.Sensor,
				Room:      opts.Rooms[r.Sensor],
			})
			n++
		}
		if r.Agg == nil {
			continue
		}

		agg := roundAggregate(r.Agg, opts.Precision)
		switch r.Metric {
		case models.MetricTemperature:
			out[n-1].Temperature = agg
		case models.MetricHumidity:
			out[n-1].Humidity = agg
		case models.MetricSubstrate:
			out[n-1].Substrate = agg
		case models.MetricLight:
			out[n-1].Light = agg
		case models.MetricVPD:
			out[n-1].VPD = agg
		}
	}
	return out
}

// Metadata describes a timeframed response
type Metadata struct {
	QueryID       string         `json:"query_id"`
	Timeframe     string         `json:"timeframe,omitempty"`
	StartDate     time.Time      `json:"start_date"`
	EndDate       time.Time      `json:"end_date"`
	WindowMinutes float64        `json:"window_minutes"`
	BucketCount   int            `json:"bucket_count"`
	RecordCount   int            `json:"record_count"`
	SkippedCount  int            `json:"skipped_count"`
	Groups        int            `json:"groups"`
	SensorIDs     []string       `json:"sensor_ids"`
	ExcludedItems []ExcludedItem `json:"excluded_items"`
	Aggregations  bool           `json:"aggregations"`
	Gapless       bool           `json:"gapless"`
	Format        Format         `json:"format,omitempty"`
	ElapsedTime   float64        `json:"elapsed_time"`
}

func roundAggregate(a *Aggregate, precision int) *Aggregate {
	return &Aggregate{
		Mean:  Round(a.Mean, precision),
		Min:   Round(a.Min, precision),
		Max:   Round(a.Max, precision),
		First: Round(a.First, precision),
		Last:  Round(a.Last, precision),
		Count: a.Count,
	}
}

// Round rounds v to precision decimals. A negative precision leaves v as is.
func Round(v float64, precision int) float64 {
	if precision < 0 {
		return v
	}
	p := math.Pow10(precision)
	return math.Round(v*p) / p
}
