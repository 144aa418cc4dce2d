package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
	"github.com/kodexArg/dj-indoor-monitor/internal/store"
)

// recordingSource serves fixed readings and records the queries it gets
type recordingSource struct {
	readings []models.Reading
	count    int
	queries  []store.ReadingQuery
	err      error
}

func (s *recordingSource) QueryReadings(ctx context.Context, q store.ReadingQuery) ([]models.Reading, error) {
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Reading
	for _, r := range s.readings {
		// The source is trusted to filter by time only; metric checks stay in the builder
		if r.Timestamp.Before(q.Start) || r.Timestamp.After(q.End) || (q.EndExclusive && r.Timestamp.Equal(q.End)) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *recordingSource) CountReadings(ctx context.Context, q store.ReadingQuery) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.count, nil
}

func (s *recordingSource) LatestReadings(ctx context.Context, q store.ReadingQuery) ([]models.Reading, error) {
	return nil, s.err
}

func (s *recordingSource) SensorRooms(ctx context.Context) ([]models.SensorRoom, error) {
	return nil, s.err
}

func rd(offset time.Duration, sensor string, metric models.Metric, v float64) models.Reading {
	return models.Reading{Timestamp: t0.Add(offset), Sensor: sensor, Metric: metric, Value: v}
}

func TestBuildFrame_SeriesAndSkips(t *testing.T) {
	src := &recordingSource{readings: []models.Reading{
		rd(30*time.Second, "s2", models.MetricTemperature, 19),
		rd(10*time.Second, "s1", models.MetricTemperature, 21),
		rd(0, "s1", models.MetricTemperature, 20),
		rd(5*time.Second, "s1", models.MetricHumidity, math.NaN()),
		rd(6*time.Second, "s1", models.MetricHumidity, math.Inf(1)),
		rd(7*time.Second, "s1", models.Metric("co2"), 400),
		rd(8*time.Second, "s1", models.MetricHumidity, 55),
	}}
	f := Filter{Start: t0, End: t0.Add(time.Minute)}

	frame, err := BuildFrame(context.Background(), src, f, testConfig())
	if err != nil {
		t.Fatalf("BuildFrame failed: %v", err)
	}

	if frame.RecordCount != 4 || frame.Skipped != 3 {
		t.Errorf("Expected 4 records and 3 skipped, got %d and %d", frame.RecordCount, frame.Skipped)
	}
	if len(frame.Series) != 3 {
		t.Fatalf("Expected 3 series, got %d", len(frame.Series))
	}
	keys := []SeriesKey{
		{"s1", models.MetricHumidity},
		{"s1", models.MetricTemperature},
		{"s2", models.MetricTemperature},
	}
	for i, k := range keys {
		if frame.Series[i].Key != k {
			t.Errorf("Series %d: expected %v, got %v", i, k, frame.Series[i].Key)
		}
	}

	temps := frame.Series[1].Points
	if temps[0].Value != 20 || temps[1].Value != 21 {
		t.Errorf("Expected chronological points, got %+v", temps)
	}
	if sensors := frame.Sensors(); len(sensors) != 2 || sensors[0] != "s1" || sensors[1] != "s2" {
		t.Errorf("Unexpected sensors %v", sensors)
	}
}

func TestBuildFrame_Chunked(t *testing.T) {
	cfg := testConfig()
	cfg.ChunkThreshold = 2
	cfg.ChunkSpan = time.Hour

	src := &recordingSource{
		count: 10,
		readings: []models.Reading{
			rd(0, "s1", models.MetricTemperature, 20),
			rd(time.Hour, "s1", models.MetricTemperature, 21), // slice boundary
			rd(150*time.Minute, "s1", models.MetricTemperature, 22),
			rd(3*time.Hour, "s1", models.MetricTemperature, 23), // range end
		},
	}
	f := Filter{Start: t0, End: t0.Add(3 * time.Hour)}

	frame, err := BuildFrame(context.Background(), src, f, cfg)
	if err != nil {
		t.Fatalf("BuildFrame failed: %v", err)
	}

	if len(src.queries) != 3 {
		t.Fatalf("Expected 3 slice queries, got %d", len(src.queries))
	}
	for i, q := range src.queries[:2] {
		if !q.EndExclusive {
			t.Errorf("Slice %d should be half-open", i)
		}
	}
	last := src.queries[2]
	if last.EndExclusive || !last.End.Equal(f.End) {
		t.Errorf("Last slice should be closed at the range end, got %+v", last)
	}

	if frame.RecordCount != 4 {
		t.Errorf("Expected each reading loaded once, got %d", frame.RecordCount)
	}
	points := frame.Series[0].Points
	for i := 1; i < len(points); i++ {
		if points[i].Timestamp.Before(points[i-1].Timestamp) {
			t.Errorf("Points out of order: %+v", points)
		}
	}
}

func TestBuildFrame_BelowThresholdSingleQuery(t *testing.T) {
	cfg := testConfig()
	cfg.ChunkThreshold = 100
	cfg.ChunkSpan = time.Hour

	src := &recordingSource{count: 5}
	_, err := BuildFrame(context.Background(), src, Filter{Start: t0, End: t0.Add(5 * time.Hour)}, cfg)
	if err != nil {
		t.Fatalf("BuildFrame failed: %v", err)
	}
	if len(src.queries) != 1 {
		t.Errorf("Expected a single query, got %d", len(src.queries))
	}
}

func TestBuildFrame_Errors(t *testing.T) {
	src := &recordingSource{err: errors.New("connection refused")}

	_, err := BuildFrame(context.Background(), src, Filter{Start: t0, End: t0.Add(time.Minute)}, testConfig())
	var derr *DataAccessError
	if !errors.As(err, &derr) {
		t.Fatalf("Expected DataAccessError, got %v", err)
	}
	if !errors.Is(err, src.err) {
		t.Error("Expected the store error to be wrapped")
	}

	_, err = BuildFrame(context.Background(), src, Filter{Start: t0.Add(time.Minute), End: t0}, testConfig())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if len(src.queries) != 1 {
		t.Errorf("Validation must fail before store access, got %d queries", len(src.queries))
	}
}

func TestFrame_Table(t *testing.T) {
	frame := &Frame{
		Start: t0,
		End:   t0.Add(time.Minute),
		Series: []*Series{
			series("s1", models.MetricHumidity, pt(0, 50), pt(20*time.Second, 52)),
			series("s1", models.MetricTemperature, pt(10*time.Second, 21), pt(20*time.Second, 22)),
		},
	}

	table := frame.Table()
	if len(table.Index) != 3 || len(table.Columns) != 2 {
		t.Fatalf("Expected 3x2 table, got %dx%d", len(table.Index), len(table.Columns))
	}
	if !math.IsNaN(table.Values[0][1]) {
		t.Errorf("Expected NaN for missing temperature at 10:00:00, got %v", table.Values[0][1])
	}
	if !math.IsNaN(table.Values[1][0]) {
		t.Errorf("Expected NaN for missing humidity at 10:00:10, got %v", table.Values[1][0])
	}
	if table.Values[2][0] != 52 || table.Values[2][1] != 22 {
		t.Errorf("Unexpected last row %v", table.Values[2])
	}
}
