package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeUnit is the unit part of a timeframe token
type TimeUnit string

const (
	UnitSecond TimeUnit = "S"
	UnitMinute TimeUnit = "T"
	UnitHour   TimeUnit = "H"
	UnitDay    TimeUnit = "D"
)

var unitDurations = map[TimeUnit]time.Duration{
	UnitSecond: time.Second,
	UnitMinute: time.Minute,
	UnitHour:   time.Hour,
	UnitDay:    24 * time.Hour,
}

// Timeframe is the width of an aggregation bucket, e.g. 30T = 30 minutes
type Timeframe struct {
	Count int
	Unit  TimeUnit
}

// Canonical timeframes accepted from requests, with the lookback window
// used when a query omits its start date.
var canonicalTimeframes = map[Timeframe]time.Duration{
	{5, UnitSecond}:  5 * time.Minute,
	{1, UnitMinute}:  15 * time.Minute,
	{5, UnitMinute}:  time.Hour,
	{15, UnitMinute}: 6 * time.Hour,
	{30, UnitMinute}: 12 * time.Hour,
	{1, UnitHour}:    24 * time.Hour,
	{2, UnitHour}:    48 * time.Hour,
	{4, UnitHour}:    4 * 24 * time.Hour,
	{12, UnitHour}:   7 * 24 * time.Hour,
	{1, UnitDay}:     7 * 24 * time.Hour,
}

// ParseTimeframe parses a <integer><unit> token, case-insensitive.
// "MIN" is accepted as an alias of "T". Only canonical timeframes are valid.
func ParseTimeframe(token string) (Timeframe, error) {
	s := strings.ToUpper(strings.TrimSpace(token))
	if strings.HasSuffix(s, "MIN") {
		s = strings.TrimSuffix(s, "MIN") + string(UnitMinute)
	}
	if len(s) < 2 {
		return Timeframe{}, fmt.Errorf("invalid timeframe %q", token)
	}

	unit := TimeUnit(s[len(s)-1:])
	if _, ok := unitDurations[unit]; !ok {
		return Timeframe{}, fmt.Errorf("invalid timeframe unit in %q", token)
	}

	count, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || count <= 0 {
		return Timeframe{}, fmt.Errorf("invalid timeframe count in %q", token)
	}

	tf := Timeframe{Count: count, Unit: unit}
	if _, ok := canonicalTimeframes[tf]; !ok {
		return Timeframe{}, fmt.Errorf("unsupported timeframe %q", token)
	}
	return tf, nil
}

// Duration returns the bucket width
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Count) * unitDurations[tf.Unit]
}

// DefaultWindow returns the lookback used when a query has no start date
func (tf Timeframe) DefaultWindow() time.Duration {
	if w, ok := canonicalTimeframes[tf]; ok {
		return w
	}
	return 0
}

// String returns the canonical token, e.g. "30T"
func (tf Timeframe) String() string {
	return strconv.Itoa(tf.Count) + string(tf.Unit)
}

// IsZero reports whether the timeframe is unset
func (tf Timeframe) IsZero() bool {
	return tf.Count == 0
}

// BucketStart returns the epoch-aligned start of the bucket containing t
func (tf Timeframe) BucketStart(t time.Time) time.Time {
	d := tf.Duration().Nanoseconds()
	ns := t.UnixNano()
	start := ns - ns%d
	if ns%d < 0 {
		start -= d
	}
	return time.Unix(0, start).UTC()
}

// BucketCount returns the number of buckets between the buckets holding
// start and end, both inclusive
func (tf Timeframe) BucketCount(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	first := tf.BucketStart(start)
	last := tf.BucketStart(end)
	return int(last.Sub(first)/tf.Duration()) + 1
}
