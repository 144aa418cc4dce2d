package models

import (
	"math"
	"testing"
	"time"
)

func TestParseMetric(t *testing.T) {
	tests := []struct {
		input    string
		expected Metric
		wantErr  bool
	}{
		{"t", MetricTemperature, false},
		{"H", MetricHumidity, false},
		{"substrate", MetricSubstrate, false},
		{" light ", MetricLight, false},
		{"vpd", "", true},
		{"x", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m, err := ParseMetric(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q, got metric %q", tt.input, m)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if m != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, m)
			}
		})
	}
}

func TestReading_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		reading Reading
		wantErr bool
	}{
		{"valid", Reading{Timestamp: now, Sensor: "vege-d4", Metric: MetricTemperature, Value: 21.5}, false},
		{"missing sensor", Reading{Timestamp: now, Metric: MetricTemperature, Value: 1}, true},
		{"derived metric", Reading{Timestamp: now, Sensor: "s1", Metric: MetricVPD, Value: 1}, true},
		{"NaN value", Reading{Timestamp: now, Sensor: "s1", Metric: MetricHumidity, Value: math.NaN()}, true},
		{"infinite value", Reading{Timestamp: now, Sensor: "s1", Metric: MetricHumidity, Value: math.Inf(1)}, true},
		{"zero timestamp", Reading{Sensor: "s1", Metric: MetricLight, Value: 300}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reading.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValueRange_Contains(t *testing.T) {
	ten, twenty := 10.0, 20.0

	r := ValueRange{GTE: &ten, LT: &twenty}
	if !r.Contains(10) {
		t.Error("Expected 10 to satisfy gte=10")
	}
	if r.Contains(20) {
		t.Error("Expected 20 to fail lt=20")
	}
	if r.Contains(9.99) {
		t.Error("Expected 9.99 to fail gte=10")
	}

	open := ValueRange{}
	if !open.IsEmpty() || !open.Contains(-1e9) {
		t.Error("Expected empty range to accept every value")
	}

	strict := ValueRange{GT: &ten, LTE: &twenty}
	if strict.Contains(10) || !strict.Contains(20) {
		t.Error("Expected gt=10,lte=20 to reject 10 and accept 20")
	}
}
