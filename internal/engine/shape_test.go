package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

func shapeRows() []Row {
	return []Row{
		{Timestamp: t0, Sensor: "s1", Metric: models.MetricHumidity, Agg: &Aggregate{Mean: 61.256, Min: 60, Max: 62.5, First: 60, Last: 62.5, Count: 4}},
		{Timestamp: t0, Sensor: "s1", Metric: models.MetricTemperature, Agg: &Aggregate{Mean: 24.444, Min: 24, Max: 25, First: 25, Last: 24, Count: 4}},
		{Timestamp: t0, Sensor: "s2", Metric: models.MetricLight, Agg: nil},
	}
}

func TestShapeFlat_Scalar(t *testing.T) {
	out := ShapeFlat(shapeRows(), ShapeOptions{Format: FormatFlat, Precision: 2, Rooms: map[string]string{"s1": "flora"}})
	if len(out) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(out))
	}
	if v, ok := out[0].Value.(float64); !ok || v != 61.26 {
		t.Errorf("Expected rounded scalar 61.26, got %#v", out[0].Value)
	}
	if out[0].Room != "flora" || out[2].Room != "" {
		t.Errorf("Unexpected rooms %q / %q", out[0].Room, out[2].Room)
	}
	if out[2].Value != nil {
		t.Errorf("Expected nil value for empty bucket, got %#v", out[2].Value)
	}

	body, _ := json.Marshal(out[2])
	if !strings.Contains(string(body), `"value":null`) {
		t.Errorf("Expected explicit null value, got %s", body)
	}
}

func TestShapeFlat_Aggregations(t *testing.T) {
	out := ShapeFlat(shapeRows(), ShapeOptions{Format: FormatFlat, Aggregations: true, Precision: 1})
	agg, ok := out[1].Value.(*Aggregate)
	if !ok {
		t.Fatalf("Expected aggregate value, got %#v", out[1].Value)
	}
	want := Aggregate{Mean: 24.4, Min: 24, Max: 25, First: 25, Last: 24, Count: 4}
	if *agg != want {
		t.Errorf("Expected %+v, got %+v", want, *agg)
	}
}

func TestShapeLegacy_Pivot(t *testing.T) {
	rows := append(shapeRows(), Row{
		Timestamp: t0, Sensor: "s1", Metric: models.MetricVPD,
		Agg: &Aggregate{Mean: 1.2, Min: 1.2, Max: 1.2, First: 1.2, Last: 1.2, Count: 4},
	})
	sortRows(rows)

	out := ShapeLegacy(rows, ShapeOptions{Format: FormatLegacy, Aggregations: true, Precision: 2})
	if len(out) != 2 {
		t.Fatalf("Expected 2 pivoted rows, got %d", len(out))
	}

	s1 := out[0]
	if s1.Sensor != "s1" || s1.Temperature == nil || s1.Humidity == nil || s1.VPD == nil {
		t.Fatalf("Unexpected s1 row %+v", s1)
	}
	if s1.Temperature.Mean != 24.44 || s1.Humidity.Mean != 61.26 {
		t.Errorf("Unexpected means %v / %v", s1.Temperature.Mean, s1.Humidity.Mean)
	}

	body, _ := json.Marshal(out[1])
	s := string(body)
	if !strings.Contains(s, `"temperature":null`) || !strings.Contains(s, `"humidity":null`) {
		t.Errorf("Expected null temperature and humidity, got %s", s)
	}
	if strings.Contains(s, `"light"`) || strings.Contains(s, `"room"`) {
		t.Errorf("Expected light and room omitted, got %s", s)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		v         float64
		precision int
		want      float64
	}{
		{1.005, 1, 1.0},
		{1.26666, 2, 1.27},
		{-3.14159, 3, -3.142},
		{2.5, 0, 3},
		{7.123, -1, 7.123},
	}
	for _, tt := range tests {
		if got := Round(tt.v, tt.precision); got != tt.want {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.v, tt.precision, got, tt.want)
		}
	}
}
