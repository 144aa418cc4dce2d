package services

import (
	"context"
	"errors"
	"testing"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

type fakeWriter struct {
	stored []models.Reading
	err    error
}

func (w *fakeWriter) AddReadings(ctx context.Context, readings []models.Reading) error {
	if w.err != nil {
		return w.err
	}
	w.stored = append(w.stored, readings...)
	return nil
}

func TestIngestor_IngestPayload(t *testing.T) {
	tests := []struct {
		name          string
		payload       string
		defaultSensor string
		expected      int
		wantErr       bool
	}{
		{"flat json", `{"timestamp":"2025-01-06T10:00:00Z","sensor":"s1","metric":"t","value":22.5}`, "", 1, false},
		{"legacy json with topic sensor", `{"t":22.5,"h":60}`, "s2", 2, false},
		{"plain text", `t=22.5,h=60,l=300`, "s3", 3, false},
		{"plain text without sensor", `t=22.5`, "", 0, true},
		{"garbage", `{not json`, "s1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{}
			ing := NewIngestor(w, nil)

			var notified int
			ing.OnIngest(func(readings []models.Reading) { notified += len(readings) })

			readings, err := ing.IngestPayload(context.Background(), SourceMQTT, []byte(tt.payload), tt.defaultSensor)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				if len(w.stored) != 0 || notified != 0 {
					t.Error("Expected nothing stored or broadcast on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(readings) != tt.expected || len(w.stored) != tt.expected {
				t.Errorf("Expected %d readings stored, got %d", tt.expected, len(w.stored))
			}
			if notified != tt.expected {
				t.Errorf("Expected listener to see %d readings, got %d", tt.expected, notified)
			}
		})
	}
}

func TestIngestor_StoreFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("db down")}
	ing := NewIngestor(w, nil)

	called := false
	ing.OnIngest(func([]models.Reading) { called = true })

	err := ing.Ingest(context.Background(), SourceHTTP, []models.Reading{
		{Timestamp: fixedNow, Sensor: "s1", Metric: models.MetricTemperature, Value: 21},
	})
	if !errors.Is(err, ErrStore) {
		t.Fatalf("Expected ErrStore, got %v", err)
	}
	if called {
		t.Error("Listener must not run when the write fails")
	}
}

func TestIngestor_RejectsEmpty(t *testing.T) {
	ing := NewIngestor(&fakeWriter{}, nil)
	if err := ing.Ingest(context.Background(), SourceKafka, nil); err == nil {
		t.Error("Expected error for empty batch")
	}
}
