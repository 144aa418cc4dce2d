package engine

import (
	"sort"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

// Aggregate holds the statistics of one bucket of one series
type Aggregate struct {
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	First float64 `json:"first"`
	Last  float64 `json:"last"`
	Count int     `json:"count"`
}

// Row is one aggregated (bucket, sensor, metric). Agg is nil for an
// empty bucket emitted in gapless mode.
type Row struct {
	Timestamp time.Time
	Sensor    string
	Metric    models.Metric
	Agg       *Aggregate
}

// ExcludedItem is a series dropped for having too few readings
type ExcludedItem struct {
	Sensor string        `json:"sensor"`
	Metric models.Metric `json:"metric"`
	Count  int           `json:"count"`
}

// ResampleOptions controls what Resample computes
type ResampleOptions struct {
	// Full computes min, max, first and last besides the mean
	Full       bool
	Gapless    bool
	MinSamples int
}

// Resampled is the output of Resample
type Resampled struct {
	Rows        []Row
	Excluded    []ExcludedItem
	BucketCount int
}

// Resample buckets every series of the frame into epoch-aligned
// timeframe intervals. Rows are ordered by timestamp, sensor, metric.
func Resample(frame *Frame, tf models.Timeframe, opts ResampleOptions) Resampled {
	out := Resampled{
		Rows:        []Row{},
		Excluded:    []ExcludedItem{},
		BucketCount: tf.BucketCount(frame.Start, frame.End),
	}

	var grid []time.Time
	if opts.Gapless && out.BucketCount > 0 {
		grid = make([]time.Time, 0, out.BucketCount)
		step := tf.Duration()
		last := tf.BucketStart(frame.End)
		for ts := tf.BucketStart(frame.Start); !ts.After(last); ts = ts.Add(step) {
			grid = append(grid, ts)
		}
	}

	for _, s := range frame.Series {
		if len(s.Points) < opts.MinSamples {
			out.Excluded = append(out.Excluded, ExcludedItem{
				Sensor: s.Key.Sensor,
				Metric: s.Key.Metric,
				Count:  len(s.Points),
			})
			continue
		}

		rows := resampleSeries(s, tf, opts.Full)
		if grid != nil {
			rows = fillGrid(rows, grid, s.Key)
		}
		out.Rows = append(out.Rows, rows...)
	}

	sortRows(out.Rows)
	return out
}

// resampleSeries folds the chronologically ordered points of one series
// in a single pass
func resampleSeries(s *Series, tf models.Timeframe, full bool) []Row {
	var rows []Row
	var acc accumulator
	var bucket time.Time

	flush := func() {
		if acc.count == 0 {
			return
		}
		rows = append(rows, Row{
			Timestamp: bucket,
			Sensor:    s.Key.Sensor,
			Metric:    s.Key.Metric,
			Agg:       acc.aggregate(full),
		})
		acc = accumulator{}
	}

	for _, p := range s.Points {
		start := tf.BucketStart(p.Timestamp)
		if acc.count > 0 && !start.Equal(bucket) {
			flush()
		}
		bucket = start
		acc.add(p.Value)
	}
	flush()
	return rows
}

// fillGrid inserts empty rows for grid buckets without data
func fillGrid(rows []Row, grid []time.Time, key SeriesKey) []Row {
	filled := make([]Row, 0, len(grid))
	i := 0
	for _, ts := range grid {
		if i < len(rows) && rows[i].Timestamp.Equal(ts) {
			filled = append(filled, rows[i])
			i++
			continue
		}
		filled = append(filled, Row{Timestamp: ts, Sensor: key.Sensor, Metric: key.Metric})
	}
	return filled
}

func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Sensor != b.Sensor {
			return a.Sensor < b.Sensor
		}
		return a.Metric < b.Metric
	})
}

type accumulator struct {
	count       int
	sum         float64
	min, max    float64
	first, last float64
}

func (a *accumulator) add(v float64) {
	if a.count == 0 {
		a.min, a.max, a.first = v, v, v
	}
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	a.last = v
	a.sum += v
	a.count++
}

func (a *accumulator) aggregate(full bool) *Aggregate {
	mean := a.sum / float64(a.count)
	// Summation error must not push the mean outside the observed range
	if mean < a.min {
		mean = a.min
	}
	if mean > a.max {
		mean = a.max
	}

	agg := &Aggregate{Mean: mean, Count: a.count}
	if full {
		agg.Min, agg.Max = a.min, a.max
		agg.First, agg.Last = a.first, a.last
	}
	return agg
}
