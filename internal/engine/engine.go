package engine

import (
	"context"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kodexArg/dj-indoor-monitor/config"
	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

// Engine answers list, latest and timeframed queries over a reading source.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	source ReadingSource
	cfg    config.EngineConfig
	now    func() time.Time
}

// New creates an engine with the given limits
func New(source ReadingSource, cfg config.EngineConfig) *Engine {
	return &Engine{source: source, cfg: cfg, now: time.Now}
}

// WithClock replaces the clock used to resolve missing dates
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Config returns the engine limits
func (e *Engine) Config() config.EngineConfig {
	return e.cfg
}

// ParseQuery builds a validated query for the given mode
func (e *Engine) ParseQuery(values url.Values, mode Mode) (Query, error) {
	return BuildQuery(values, e.cfg, e.now(), mode)
}

// ListMetadata describes a list response
type ListMetadata struct {
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	RecordCount int       `json:"record_count"`
	SensorIDs   []string  `json:"sensor_ids"`
	ElapsedTime float64   `json:"elapsed_time"`
}

// ListResult holds raw readings, newest first
type ListResult struct {
	Results  []models.Reading `json:"results"`
	Metadata ListMetadata     `json:"metadata"`
}

// List returns the raw readings selected by the query, newest first
func (e *Engine) List(ctx context.Context, q Query) (*ListResult, error) {
	started := time.Now()
	if err := q.Filter.Validate(); err != nil {
		return nil, err
	}

	readings, err := e.source.QueryReadings(ctx, q.readingQuery())
	if err != nil {
		return nil, &DataAccessError{Op: "query", Err: err}
	}
	if readings == nil {
		readings = []models.Reading{}
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.After(readings[j].Timestamp)
	})

	seen := make(map[string]bool)
	sensors := []string{}
	for _, r := range readings {
		if !seen[r.Sensor] {
			seen[r.Sensor] = true
			sensors = append(sensors, r.Sensor)
		}
	}
	sort.Strings(sensors)

	return &ListResult{
		Results: readings,
		Metadata: ListMetadata{
			StartDate:   q.Start,
			EndDate:     q.End,
			RecordCount: len(readings),
			SensorIDs:   sensors,
			ElapsedTime: time.Since(started).Seconds(),
		},
	}, nil
}

// LatestRow is the most recent reading of one (sensor, metric)
type LatestRow struct {
	Timestamp time.Time     `json:"timestamp"`
	Sensor    string        `json:"sensor"`
	Metric    models.Metric `json:"metric"`
	Value     float64       `json:"value"`
	Room      string        `json:"room,omitempty"`
}

// Latest returns the newest reading per (sensor, metric) inside the query
// window. Sensors without data in the window are absent.
func (e *Engine) Latest(ctx context.Context, q Query) ([]LatestRow, error) {
	if err := q.Filter.Validate(); err != nil {
		return nil, err
	}

	readings, err := e.source.LatestReadings(ctx, q.readingQuery())
	if err != nil {
		return nil, &DataAccessError{Op: "latest", Err: err}
	}

	rooms, err := e.rooms(ctx, q.Rooms)
	if err != nil {
		return nil, err
	}

	rows := make([]LatestRow, 0, len(readings))
	for _, r := range readings {
		rows = append(rows, LatestRow{
			Timestamp: r.Timestamp.UTC(),
			Sensor:    r.Sensor,
			Metric:    r.Metric,
			Value:     Round(r.Value, e.cfg.Precision),
			Room:      rooms[r.Sensor],
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Sensor != rows[j].Sensor {
			return rows[i].Sensor < rows[j].Sensor
		}
		return rows[i].Metric < rows[j].Metric
	})
	return rows, nil
}

// TimeframedResult is the response of a timeframed query. Data holds
// []FlatRow or []LegacyRow.
type TimeframedResult struct {
	Rows     []Row             `json:"-"`
	Rooms    map[string]string `json:"-"`
	Data     interface{}       `json:"data"`
	Metadata Metadata          `json:"metadata"`
}

// Timeframed loads, resamples and shapes the readings selected by q
func (e *Engine) Timeframed(ctx context.Context, q Query) (*TimeframedResult, error) {
	started := time.Now()
	if q.Timeframe.IsZero() {
		return nil, invalid("timeframe", "is required")
	}

	frame, err := BuildFrame(ctx, e.source, q.Filter, e.cfg)
	if err != nil {
		return nil, err
	}

	res := Resample(frame, q.Timeframe, ResampleOptions{
		Full:       q.Aggregations,
		Gapless:    q.Gapless,
		MinSamples: e.cfg.MinSamples,
	})
	rows := res.Rows
	if q.VPD {
		rows = AppendVPD(rows)
	}

	rooms, err := e.rooms(ctx, q.Rooms)
	if err != nil {
		return nil, err
	}

	data := Shape(rows, ShapeOptions{
		Format:       q.Format,
		Aggregations: q.Aggregations,
		Precision:    e.cfg.Precision,
		Rooms:        rooms,
	})

	groups := 0
	switch d := data.(type) {
	case []FlatRow:
		groups = len(d)
	case []LegacyRow:
		groups = len(d)
	}

	return &TimeframedResult{
		Rows:  rows,
		Rooms: rooms,
		Data:  data,
		Metadata: Metadata{
			QueryID:       uuid.NewString(),
			Timeframe:     q.Timeframe.String(),
			StartDate:     q.Start,
			EndDate:       q.End,
			WindowMinutes: q.End.Sub(q.Start).Minutes(),
			BucketCount:   res.BucketCount,
			RecordCount:   frame.RecordCount,
			SkippedCount:  frame.Skipped,
			Groups:        groups,
			SensorIDs:     rowSensors(rows),
			ExcludedItems: res.Excluded,
			Aggregations:  q.Aggregations,
			Gapless:       q.Gapless,
			Format:        q.Format,
			ElapsedTime:   time.Since(started).Seconds(),
		},
	}, nil
}

// Frame loads the raw frame selected by q without resampling
func (e *Engine) Frame(ctx context.Context, q Query) (*Frame, error) {
	return BuildFrame(ctx, e.source, q.Filter, e.cfg)
}

func (e *Engine) rooms(ctx context.Context, enabled bool) (map[string]string, error) {
	if !enabled {
		return nil, nil
	}
	entries, err := e.source.SensorRooms(ctx)
	if err != nil {
		return nil, &DataAccessError{Op: "sensor registry", Err: err}
	}
	rooms := make(map[string]string, len(entries))
	for _, entry := range entries {
		rooms[entry.Sensor] = entry.Room
	}
	return rooms, nil
}

func rowSensors(rows []Row) []string {
	seen := make(map[string]bool)
	sensors := []string{}
	for _, r := range rows {
		if !seen[r.Sensor] {
			seen[r.Sensor] = true
			sensors = append(sensors, r.Sensor)
		}
	}
	sort.Strings(sensors)
	return sensors
}
