package store

import (
	"context"
	"testing"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

var base = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func reading(offset time.Duration, sensor string, metric models.Metric, value float64) models.Reading {
	return models.Reading{Timestamp: base.Add(offset), Sensor: sensor, Metric: metric, Value: value}
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(100)
	err := s.AddReadings(context.Background(), []models.Reading{
		reading(20*time.Second, "s1", models.MetricTemperature, 24.0),
		reading(0, "s1", models.MetricTemperature, 20.0),
		reading(10*time.Second, "s1", models.MetricHumidity, 55.0),
		reading(30*time.Second, "s2", models.MetricTemperature, 18.0),
		reading(90*time.Second, "s2", models.MetricLight, 320.0),
	})
	if err != nil {
		t.Fatalf("AddReadings failed: %v", err)
	}
	return s
}

func TestStore_QueryReadings_Ordered(t *testing.T) {
	s := seededStore(t)

	readings, err := s.QueryReadings(context.Background(), ReadingQuery{Start: base, End: base.Add(time.Hour)})
	if err != nil {
		t.Fatalf("QueryReadings failed: %v", err)
	}
	if len(readings) != 5 {
		t.Fatalf("Expected 5 readings, got %d", len(readings))
	}
	for i := 1; i < len(readings); i++ {
		if readings[i].Timestamp.Before(readings[i-1].Timestamp) {
			t.Errorf("Readings out of order at %d: %v before %v", i, readings[i].Timestamp, readings[i-1].Timestamp)
		}
	}
}

func TestStore_QueryReadings_Filters(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	twenty := 20.0

	tests := []struct {
		name     string
		query    ReadingQuery
		expected int
	}{
		{"inclusive end", ReadingQuery{Start: base, End: base.Add(30 * time.Second)}, 4},
		{"exclusive end", ReadingQuery{Start: base, End: base.Add(30 * time.Second), EndExclusive: true}, 3},
		{"sensor filter", ReadingQuery{Start: base, End: base.Add(time.Hour), Sensors: []string{"s2"}}, 2},
		{"metric filter", ReadingQuery{Start: base, End: base.Add(time.Hour), Metrics: []models.Metric{models.MetricTemperature}}, 3},
		{
			"range only constrains its metric",
			ReadingQuery{Start: base, End: base.Add(time.Hour), Ranges: map[models.Metric]models.ValueRange{
				models.MetricTemperature: {GT: &twenty},
			}},
			3, // t=24 plus h and l readings
		},
		{"empty window", ReadingQuery{Start: base.Add(-time.Hour), End: base.Add(-time.Minute)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readings, err := s.QueryReadings(ctx, tt.query)
			if err != nil {
				t.Fatalf("QueryReadings failed: %v", err)
			}
			if len(readings) != tt.expected {
				t.Errorf("Expected %d readings, got %d", tt.expected, len(readings))
			}
			count, _ := s.CountReadings(ctx, tt.query)
			if count != tt.expected {
				t.Errorf("Expected count %d, got %d", tt.expected, count)
			}
		})
	}
}

func TestStore_LatestReadings(t *testing.T) {
	s := seededStore(t)

	latest, err := s.LatestReadings(context.Background(), ReadingQuery{Start: base, End: base.Add(time.Hour)})
	if err != nil {
		t.Fatalf("LatestReadings failed: %v", err)
	}
	if len(latest) != 4 {
		t.Fatalf("Expected 4 (sensor, metric) pairs, got %d", len(latest))
	}
	if latest[0].Sensor != "s1" || latest[0].Metric != models.MetricHumidity {
		t.Errorf("Unexpected first entry: %+v", latest[0])
	}
	for _, r := range latest {
		if r.Sensor == "s1" && r.Metric == models.MetricTemperature && r.Value != 24.0 {
			t.Errorf("Expected latest s1/t = 24.0, got %v", r.Value)
		}
	}
}

func TestStore_MaxReadings(t *testing.T) {
	s := NewStore(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.AddReadings(ctx, []models.Reading{reading(time.Duration(i)*time.Second, "s1", models.MetricTemperature, float64(i))})
	}

	readings, _ := s.QueryReadings(ctx, ReadingQuery{Start: base, End: base.Add(time.Minute)})
	if len(readings) != 3 {
		t.Fatalf("Expected 3 readings kept, got %d", len(readings))
	}
	if readings[0].Value != 2 {
		t.Errorf("Expected oldest kept value 2, got %v", readings[0].Value)
	}
}

func TestStore_DeleteReadingsBefore(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	deleted, err := s.DeleteReadingsBefore(ctx, base.Add(30*time.Second))
	if err != nil {
		t.Fatalf("DeleteReadingsBefore failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Expected 3 deleted, got %d", deleted)
	}
	count, _ := s.CountReadings(ctx, ReadingQuery{Start: base, End: base.Add(time.Hour)})
	if count != 2 {
		t.Errorf("Expected 2 remaining, got %d", count)
	}
}

func TestStore_SensorRegistry(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	s.SetSensorRoom(ctx, models.SensorRoom{Sensor: "s2", Room: "flora"})
	s.SetSensorRoom(ctx, models.SensorRoom{Sensor: "s1", Room: "vege"})
	s.SetSensorRoom(ctx, models.SensorRoom{Sensor: "s1", Room: "clones"})

	rooms, _ := s.SensorRooms(ctx)
	if len(rooms) != 2 {
		t.Fatalf("Expected 2 registry entries, got %d", len(rooms))
	}
	if rooms[0] != (models.SensorRoom{Sensor: "s1", Room: "clones"}) {
		t.Errorf("Expected updated s1 entry, got %+v", rooms[0])
	}

	sensors, _ := s.ListSensors(ctx)
	if len(sensors) != 2 || sensors[0] != "s1" || sensors[1] != "s2" {
		t.Errorf("Unexpected sensors: %v", sensors)
	}
}
