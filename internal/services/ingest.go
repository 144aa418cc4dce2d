package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/kodexArg/dj-indoor-monitor/internal/metrics"
	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

// Ingestion sources, used as metric labels
const (
	SourceHTTP  = "http"
	SourceMQTT  = "mqtt"
	SourceKafka = "kafka"
)

// ErrStore marks ingestion failures caused by the reading store rather
// than by the payload
var ErrStore = errors.New("failed to store readings")

// ReadingWriter persists readings
type ReadingWriter interface {
	AddReadings(ctx context.Context, readings []models.Reading) error
}

// Ingestor is the single write path shared by the HTTP, MQTT and Kafka
// front doors. Stored readings are handed to every registered listener.
type Ingestor struct {
	store     ReadingWriter
	parser    *SensorParser
	metrics   *metrics.Metrics
	mu        sync.RWMutex
	listeners []func([]models.Reading)
}

// NewIngestor creates an ingestor writing to store. m may be nil.
func NewIngestor(store ReadingWriter, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		store:   store,
		parser:  NewSensorParser(),
		metrics: m,
	}
}

// OnIngest registers a listener called after each successful write
func (i *Ingestor) OnIngest(fn func([]models.Reading)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.listeners = append(i.listeners, fn)
}

// IngestPayload parses a raw device payload and stores its readings.
// Non-JSON payloads fall back to the "t=24.5,h=61" form, which needs
// defaultSensor.
func (i *Ingestor) IngestPayload(ctx context.Context, source string, payload []byte, defaultSensor string) ([]models.Reading, error) {
	readings, err := i.parse(payload, defaultSensor)
	if err != nil {
		i.metrics.IngestError(source)
		return nil, err
	}
	if err := i.Ingest(ctx, source, readings); err != nil {
		return nil, err
	}
	return readings, nil
}

func (i *Ingestor) parse(payload []byte, defaultSensor string) ([]models.Reading, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return i.parser.ParseSensorJSON(trimmed, defaultSensor)
	}
	readings, err := i.parser.ParseSensorString(string(trimmed), defaultSensor)
	if err != nil {
		return nil, fmt.Errorf("sensor data parsing failed: %w", err)
	}
	return readings, nil
}

// Ingest validates and stores already-decoded readings
func (i *Ingestor) Ingest(ctx context.Context, source string, readings []models.Reading) error {
	if len(readings) == 0 {
		i.metrics.IngestError(source)
		return fmt.Errorf("no readings to ingest")
	}
	for idx := range readings {
		readings[idx].Timestamp = readings[idx].Timestamp.UTC()
		if err := readings[idx].Validate(); err != nil {
			i.metrics.IngestError(source)
			return fmt.Errorf("reading %d: %w", idx, err)
		}
	}

	if err := i.store.AddReadings(ctx, readings); err != nil {
		i.metrics.IngestError(source)
		log.Printf("❌ Ingest (%s): failed to store %d reading(s): %v", source, len(readings), err)
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	i.metrics.ReadingsIngested(source, len(readings))
	log.Printf("📥 Ingest (%s): %d reading(s), first %s", source, len(readings), i.parser.FormatSensorReading(readings[0]))

	i.mu.RLock()
	listeners := i.listeners
	i.mu.RUnlock()
	for _, fn := range listeners {
		fn(readings)
	}
	return nil
}
