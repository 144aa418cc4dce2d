package engine

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/config"
	"github.com/kodexArg/dj-indoor-monitor/internal/models"
	"github.com/kodexArg/dj-indoor-monitor/internal/store"
)

// SeriesKey identifies one column of a frame
type SeriesKey struct {
	Sensor string
	Metric models.Metric
}

func (k SeriesKey) less(o SeriesKey) bool {
	if k.Sensor != o.Sensor {
		return k.Sensor < o.Sensor
	}
	return k.Metric < o.Metric
}

// Point is one value of a series
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Series holds the chronologically ordered points of one (sensor, metric)
type Series struct {
	Key    SeriesKey
	Points []Point
}

// Frame is the in-memory result of loading a filter from the store
type Frame struct {
	Start       time.Time
	End         time.Time
	Series      []*Series // sorted by key
	RecordCount int
	Skipped     int
}

// Sensors returns the distinct sensors present in the frame
func (f *Frame) Sensors() []string {
	sensors := []string{}
	for _, s := range f.Series {
		if len(sensors) == 0 || sensors[len(sensors)-1] != s.Key.Sensor {
			sensors = append(sensors, s.Key.Sensor)
		}
	}
	return sensors
}

// Table is a dense view of a frame: one row per distinct timestamp and
// one column per series. Missing cells hold NaN, never zero.
type Table struct {
	Index   []time.Time
	Columns []SeriesKey
	Values  [][]float64 // Values[row][column]
}

// Table materializes the dense view of the frame
func (f *Frame) Table() Table {
	seen := make(map[int64]bool)
	var index []time.Time
	for _, s := range f.Series {
		for _, p := range s.Points {
			ns := p.Timestamp.UnixNano()
			if !seen[ns] {
				seen[ns] = true
				index = append(index, p.Timestamp)
			}
		}
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })

	rowOf := make(map[int64]int, len(index))
	for i, ts := range index {
		rowOf[ts.UnixNano()] = i
	}

	t := Table{
		Index:   index,
		Columns: make([]SeriesKey, len(f.Series)),
		Values:  make([][]float64, len(index)),
	}
	for i := range t.Values {
		row := make([]float64, len(f.Series))
		for j := range row {
			row[j] = math.NaN()
		}
		t.Values[i] = row
	}
	for j, s := range f.Series {
		t.Columns[j] = s.Key
		// Several readings on the same instant keep the last one
		for _, p := range s.Points {
			t.Values[rowOf[p.Timestamp.UnixNano()]][j] = p.Value
		}
	}
	return t
}

// ReadingSource is the read side of the reading store used by the engine
type ReadingSource interface {
	QueryReadings(ctx context.Context, q store.ReadingQuery) ([]models.Reading, error)
	CountReadings(ctx context.Context, q store.ReadingQuery) (int, error)
	LatestReadings(ctx context.Context, q store.ReadingQuery) ([]models.Reading, error)
	SensorRooms(ctx context.Context) ([]models.SensorRoom, error)
}

// BuildFrame loads the readings selected by f. Large ranges are read in
// consecutive time slices instead of one query.
func BuildFrame(ctx context.Context, source ReadingSource, f Filter, cfg config.EngineConfig) (*Frame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	b := &frameBuilder{series: make(map[SeriesKey]*Series)}
	q := f.readingQuery()

	chunked := false
	if cfg.ChunkThreshold > 0 && cfg.ChunkSpan > 0 && f.End.Sub(f.Start) > cfg.ChunkSpan {
		estimate, err := source.CountReadings(ctx, q)
		if err != nil {
			return nil, &DataAccessError{Op: "count", Err: err}
		}
		chunked = estimate > cfg.ChunkThreshold
		if chunked {
			log.Printf("📦 Loading ~%d readings in %s slices", estimate, cfg.ChunkSpan)
		}
	}

	if !chunked {
		readings, err := source.QueryReadings(ctx, q)
		if err != nil {
			return nil, &DataAccessError{Op: "query", Err: err}
		}
		b.add(readings)
	} else {
		for sliceStart := f.Start; !sliceStart.After(f.End); sliceStart = sliceStart.Add(cfg.ChunkSpan) {
			slice := q
			slice.Start = sliceStart
			slice.End = sliceStart.Add(cfg.ChunkSpan)
			slice.EndExclusive = true
			if !slice.End.Before(f.End) {
				slice.End = f.End
				slice.EndExclusive = false
			}

			readings, err := source.QueryReadings(ctx, slice)
			if err != nil {
				return nil, &DataAccessError{Op: "query", Err: err}
			}
			b.add(readings)
			if !slice.EndExclusive {
				break
			}
		}
	}

	return b.frame(f), nil
}

type frameBuilder struct {
	series  map[SeriesKey]*Series
	count   int
	skipped int
}

func (b *frameBuilder) add(readings []models.Reading) {
	for _, r := range readings {
		if !r.Metric.IsStored() || math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			log.Printf("⚠️  Skipping malformed reading %s/%s at %s: %v",
				r.Sensor, r.Metric, r.Timestamp.Format(time.RFC3339), r.Value)
			b.skipped++
			continue
		}

		key := SeriesKey{Sensor: r.Sensor, Metric: r.Metric}
		s, ok := b.series[key]
		if !ok {
			s = &Series{Key: key}
			b.series[key] = s
		}
		s.Points = append(s.Points, Point{Timestamp: r.Timestamp.UTC(), Value: r.Value})
		b.count++
	}
}

func (b *frameBuilder) frame(f Filter) *Frame {
	frame := &Frame{
		Start:       f.Start,
		End:         f.End,
		Series:      make([]*Series, 0, len(b.series)),
		RecordCount: b.count,
		Skipped:     b.skipped,
	}
	for _, s := range b.series {
		if !sort.SliceIsSorted(s.Points, func(i, j int) bool { return s.Points[i].Timestamp.Before(s.Points[j].Timestamp) }) {
			sort.SliceStable(s.Points, func(i, j int) bool { return s.Points[i].Timestamp.Before(s.Points[j].Timestamp) })
		}
		frame.Series = append(frame.Series, s)
	}
	sort.Slice(frame.Series, func(i, j int) bool { return frame.Series[i].Key.less(frame.Series[j].Key) })
	return frame
}
