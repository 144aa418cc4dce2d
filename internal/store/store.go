package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

// Store is an in-memory ReadingStore, used as fallback when no database
// is reachable and as the backing store in tests
type Store struct {
	mu          sync.RWMutex
	readings    []models.Reading // sorted by timestamp
	rooms       map[string]string
	maxReadings int
}

// NewStore creates a new in-memory store keeping at most maxReadings
func NewStore(maxReadings int) *Store {
	if maxReadings <= 0 {
		maxReadings = 100000
	}

	return &Store{
		readings:    make([]models.Reading, 0, 1024),
		rooms:       make(map[string]string),
		maxReadings: maxReadings,
	}
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// AddReadings stores readings keeping chronological order
func (s *Store) AddReadings(ctx context.Context, readings []models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range readings {
		r.Timestamp = r.Timestamp.UTC()
		// Devices usually report in order, so the insert point is the tail
		i := sort.Search(len(s.readings), func(i int) bool {
			return s.readings[i].Timestamp.After(r.Timestamp)
		})
		s.readings = append(s.readings, models.Reading{})
		copy(s.readings[i+1:], s.readings[i:])
		s.readings[i] = r
	}

	// Maintain maximum size by removing oldest entries
	if over := len(s.readings) - s.maxReadings; over > 0 {
		s.readings = append(s.readings[:0:0], s.readings[over:]...)
	}
	return nil
}

// QueryReadings returns matching readings in ascending timestamp order
func (s *Store) QueryReadings(ctx context.Context, q ReadingQuery) ([]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []models.Reading{}
	for _, r := range s.readings[s.lowerBound(q.Start):] {
		if r.Timestamp.After(q.End) {
			break
		}
		if q.Match(r) {
			result = append(result, r)
		}
	}
	return result, nil
}

// CountReadings returns the number of matching readings
func (s *Store) CountReadings(ctx context.Context, q ReadingQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.readings[s.lowerBound(q.Start):] {
		if r.Timestamp.After(q.End) {
			break
		}
		if q.Match(r) {
			count++
		}
	}
	return count, nil
}

// LatestReadings returns the newest matching reading per (sensor, metric)
func (s *Store) LatestReadings(ctx context.Context, q ReadingQuery) ([]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		sensor string
		metric models.Metric
	}
	latest := make(map[key]models.Reading)
	for _, r := range s.readings[s.lowerBound(q.Start):] {
		if r.Timestamp.After(q.End) {
			break
		}
		if q.Match(r) {
			latest[key{r.Sensor, r.Metric}] = r
		}
	}

	result := make([]models.Reading, 0, len(latest))
	for _, r := range latest {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Sensor != result[j].Sensor {
			return result[i].Sensor < result[j].Sensor
		}
		return result[i].Metric < result[j].Metric
	})
	return result, nil
}

// DeleteReadingsBefore removes readings older than cutoff
func (s *Store) DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.lowerBound(cutoff)
	s.readings = append(s.readings[:0:0], s.readings[i:]...)
	return int64(i), nil
}

// SensorRooms returns the registry sorted by sensor
func (s *Store) SensorRooms(ctx context.Context) ([]models.SensorRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]models.SensorRoom, 0, len(s.rooms))
	for sensor, room := range s.rooms {
		entries = append(entries, models.SensorRoom{Sensor: sensor, Room: room})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Sensor < entries[j].Sensor })
	return entries, nil
}

// SetSensorRoom creates or updates a registry entry
func (s *Store) SetSensorRoom(ctx context.Context, entry models.SensorRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms[entry.Sensor] = entry.Room
	return nil
}

// ListSensors returns every sensor that has reported at least once
func (s *Store) ListSensors(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for _, r := range s.readings {
		seen[r.Sensor] = true
	}
	sensors := make([]string, 0, len(seen))
	for sensor := range seen {
		sensors = append(sensors, sensor)
	}
	sort.Strings(sensors)
	return sensors, nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

// lowerBound returns the index of the first reading at or after t
func (s *Store) lowerBound(t time.Time) int {
	return sort.Search(len(s.readings), func(i int) bool {
		return !s.readings[i].Timestamp.Before(t)
	})
}
