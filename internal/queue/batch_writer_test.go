package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/metrics"
	"github.com/kodexArg/dj-indoor-monitor/internal/models"
	"github.com/kodexArg/dj-indoor-monitor/internal/services"
	"github.com/segmentio/kafka-go"
)

type fakeSource struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
}

func (s *fakeSource) Consume(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if len(s.pending) > 0 {
		msg := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
		return msg, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (s *fakeSource) Commit(ctx context.Context, msg kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, msg.Offset)
	return nil
}

func (s *fakeSource) Stats() kafka.ReaderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return kafka.ReaderStats{Lag: int64(len(s.pending))}
}

func (s *fakeSource) commits() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.committed...)
}

type fakeIngestor struct {
	mu      sync.Mutex
	sensors []string
	// storeFailures makes that many calls fail as if the store were down
	storeFailures int
}

func (f *fakeIngestor) IngestPayload(ctx context.Context, source string, payload []byte, defaultSensor string) ([]models.Reading, error) {
	if string(payload) == "bad" {
		return nil, errors.New("parse failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if string(payload) == "down" || f.storeFailures > 0 {
		if f.storeFailures > 0 {
			f.storeFailures--
		}
		return nil, fmt.Errorf("%w: connection refused", services.ErrStore)
	}
	f.sensors = append(f.sensors, defaultSensor)
	return []models.Reading{{Sensor: defaultSensor}}, nil
}

func TestBatchWriter_Flush(t *testing.T) {
	source := &fakeSource{}
	ing := &fakeIngestor{}
	bw := NewBatchWriter(source, ing, 10, time.Second)

	stored, pending := bw.flush(context.Background(), []kafka.Message{
		{Key: []byte("s1"), Value: []byte(`{"t":21}`), Offset: 1},
		{Key: []byte("s2"), Value: []byte("bad"), Offset: 2},
		{Key: []byte("s3"), Value: []byte(`{"h":50}`), Offset: 3},
	})

	if stored != 2 {
		t.Errorf("Expected 2 readings stored, got %d", stored)
	}
	if len(pending) != 0 {
		t.Errorf("Expected nothing pending, got %d", len(pending))
	}
	// Unreadable payloads are committed so they are not redelivered forever
	commits := source.commits()
	if len(commits) != 3 || commits[0] != 1 || commits[1] != 2 || commits[2] != 3 {
		t.Errorf("Expected offsets [1 2 3] committed, got %v", commits)
	}
	if len(ing.sensors) != 2 || ing.sensors[0] != "s1" {
		t.Errorf("Expected message key used as sensor, got %v", ing.sensors)
	}
}

func TestBatchWriter_ReportsLag(t *testing.T) {
	source := &fakeSource{pending: make([]kafka.Message, 5)}
	m := metrics.New()
	bw := NewBatchWriter(source, &fakeIngestor{}, 10, time.Second).WithMetrics(m)

	bw.flush(context.Background(), []kafka.Message{{Key: []byte("s1"), Value: []byte(`{"t":21}`), Offset: 1}})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "indoor_kafka_consumer_lag 5") {
		t.Errorf("Expected lag of 5 reported, got:\n%s", rec.Body.String())
	}
}

func TestBatchWriter_FlushStopsOnStoreFailure(t *testing.T) {
	source := &fakeSource{}
	bw := NewBatchWriter(source, &fakeIngestor{}, 10, time.Second)

	stored, pending := bw.flush(context.Background(), []kafka.Message{
		{Key: []byte("s1"), Value: []byte(`{"t":21}`), Offset: 1},
		{Key: []byte("s2"), Value: []byte("down"), Offset: 2},
		{Key: []byte("s3"), Value: []byte(`{"h":50}`), Offset: 3},
	})

	if stored != 1 {
		t.Errorf("Expected 1 reading stored, got %d", stored)
	}
	if commits := source.commits(); len(commits) != 1 || commits[0] != 1 {
		t.Errorf("Expected only offset 1 committed, got %v", commits)
	}
	if len(pending) != 2 || pending[0].Offset != 2 || pending[1].Offset != 3 {
		t.Errorf("Expected offsets 2 and 3 kept for retry, got %v", pending)
	}
}

func TestBatchWriter_RetriesAfterStoreFailure(t *testing.T) {
	source := &fakeSource{pending: []kafka.Message{
		{Key: []byte("s1"), Value: []byte(`{"t":21}`), Offset: 4},
	}}
	ing := &fakeIngestor{storeFailures: 2}
	bw := NewBatchWriter(source, ing, 1, 10*time.Millisecond)

	bw.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(source.commits()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	bw.Stop()

	if commits := source.commits(); len(commits) != 1 || commits[0] != 4 {
		t.Errorf("Expected offset 4 committed once the store recovered, got %v", commits)
	}
	if len(ing.sensors) != 1 {
		t.Errorf("Expected the message stored once, got %v", ing.sensors)
	}
}

func TestBatchWriter_StopFlushesPending(t *testing.T) {
	source := &fakeSource{pending: []kafka.Message{
		{Key: []byte("s1"), Value: []byte(`{"t":21}`), Offset: 7},
	}}
	bw := NewBatchWriter(source, &fakeIngestor{}, 100, time.Hour)

	bw.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		source.mu.Lock()
		drained := len(source.pending) == 0
		source.mu.Unlock()
		if drained {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Give the run loop a moment to receive the message
	time.Sleep(20 * time.Millisecond)
	bw.Stop()

	if commits := source.commits(); len(commits) != 1 || commits[0] != 7 {
		t.Errorf("Expected offset 7 committed on stop, got %v", commits)
	}
}
