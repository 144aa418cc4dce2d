package store

import (
	"context"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

// ReadingQuery selects readings by time range, sensor, metric and value.
// The range is [Start, End], or [Start, End) when EndExclusive is set.
// Empty Sensors or Metrics match everything.
type ReadingQuery struct {
	Start        time.Time
	End          time.Time
	EndExclusive bool
	Sensors      []string
	Metrics      []models.Metric
	Ranges       map[models.Metric]models.ValueRange
}

// Match reports whether a reading satisfies the query
func (q ReadingQuery) Match(r models.Reading) bool {
	if r.Timestamp.Before(q.Start) {
		return false
	}
	if q.EndExclusive {
		if !r.Timestamp.Before(q.End) {
			return false
		}
	} else if r.Timestamp.After(q.End) {
		return false
	}
	if len(q.Sensors) > 0 && !containsString(q.Sensors, r.Sensor) {
		return false
	}
	if len(q.Metrics) > 0 && !containsMetric(q.Metrics, r.Metric) {
		return false
	}
	if vr, ok := q.Ranges[r.Metric]; ok && !vr.Contains(r.Value) {
		return false
	}
	return true
}

// ReadingStore is the persistence collaborator of the query engine.
// Implementations must be safe for concurrent use.
type ReadingStore interface {
	// Health check
	Ping(ctx context.Context) error

	AddReadings(ctx context.Context, readings []models.Reading) error

	// QueryReadings returns matching readings in ascending timestamp order
	QueryReadings(ctx context.Context, q ReadingQuery) ([]models.Reading, error)
	CountReadings(ctx context.Context, q ReadingQuery) (int, error)

	// LatestReadings returns the newest matching reading per (sensor, metric)
	LatestReadings(ctx context.Context, q ReadingQuery) ([]models.Reading, error)

	DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Sensor registry
	SensorRooms(ctx context.Context) ([]models.SensorRoom, error)
	SetSensorRoom(ctx context.Context, entry models.SensorRoom) error
	ListSensors(ctx context.Context) ([]string, error)

	Close() error
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

func containsMetric(items []models.Metric, m models.Metric) bool {
	for _, item := range items {
		if item == m {
			return true
		}
	}
	return false
}
