package engine

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/config"
	"github.com/kodexArg/dj-indoor-monitor/internal/models"
	"github.com/kodexArg/dj-indoor-monitor/internal/store"
)

// Mode selects which entry point a query is built for
type Mode int

const (
	ModeList Mode = iota
	ModeLatest
	ModeTimeframed
)

// Format is the output shape of a timeframed response
type Format string

const (
	FormatFlat   Format = "flat"
	FormatLegacy Format = "legacy"
)

const defaultTimeframe = "5S"

// Filter is the normalized selection of readings. Start and End are inclusive.
type Filter struct {
	Start   time.Time
	End     time.Time
	Sensors []string
	Metrics []models.Metric
	Ranges  map[models.Metric]models.ValueRange
}

// Validate checks the filter invariants
func (f Filter) Validate() error {
	if f.Start.IsZero() || f.End.IsZero() {
		return invalid("start_date", "date range is not resolved")
	}
	if f.Start.After(f.End) {
		return invalid("start_date", "start %s is after end %s", f.Start.Format(time.RFC3339), f.End.Format(time.RFC3339))
	}
	for _, m := range f.Metrics {
		if !m.IsStored() {
			return invalid("metric", "unknown metric %q", m)
		}
	}
	return nil
}

// HasMetric reports whether the filter selects metric m
func (f Filter) HasMetric(m models.Metric) bool {
	if len(f.Metrics) == 0 {
		return true
	}
	for _, fm := range f.Metrics {
		if fm == m {
			return true
		}
	}
	return false
}

func (f Filter) readingQuery() store.ReadingQuery {
	return store.ReadingQuery{
		Start:   f.Start,
		End:     f.End,
		Sensors: f.Sensors,
		Metrics: f.Metrics,
		Ranges:  f.Ranges,
	}
}

// Query is a validated request for one of the engine entry points
type Query struct {
	Filter
	Mode         Mode
	Timeframe    models.Timeframe
	Aggregations bool
	Gapless      bool
	Rooms        bool
	VPD          bool
	Format       Format

	// Explicit is set when both dates came from the request
	Explicit bool
}

// BuildQuery translates request parameters into a validated Query.
// It never touches the store.
func BuildQuery(values url.Values, cfg config.EngineConfig, now time.Time, mode Mode) (Query, error) {
	q := Query{Mode: mode, Format: FormatFlat}

	if mode == ModeTimeframed {
		token := firstValue(values, "timeframe")
		if token == "" {
			token = defaultTimeframe
		}
		tf, err := models.ParseTimeframe(token)
		if err != nil {
			return Query{}, invalid("timeframe", "%q is not one of 5S, 1T, 5T, 15T, 30T, 1H, 2H, 4H, 12H, 1D", token)
		}
		q.Timeframe = tf
	}

	end := now.UTC()
	endStr := firstValue(values, "end_date", "end")
	if endStr != "" {
		t, err := parseDate(endStr)
		if err != nil {
			return Query{}, invalid("end_date", "%q is not an ISO-8601 date", endStr)
		}
		end = t
	}

	startStr := firstValue(values, "start_date", "start")
	var start time.Time
	if startStr != "" {
		t, err := parseDate(startStr)
		if err != nil {
			return Query{}, invalid("start_date", "%q is not an ISO-8601 date", startStr)
		}
		start = t
	} else {
		start = end.Add(-defaultWindow(q, cfg))
	}
	q.Start, q.End = start, end
	q.Explicit = startStr != "" && endStr != ""

	q.Sensors = listParam(values, "sensor", "sensors")

	var err error
	if q.Metrics, err = metricList(values); err != nil {
		return Query{}, err
	}
	if q.Ranges, err = valueRanges(values); err != nil {
		return Query{}, err
	}

	if q.Aggregations, err = boolParam(values, "aggregations", false); err != nil {
		return Query{}, err
	}
	if q.Gapless, err = boolParam(values, "gapless", false); err != nil {
		return Query{}, err
	}
	if q.Rooms, err = boolParam(values, "rooms", false); err != nil {
		return Query{}, err
	}
	vpdDefault := q.Filter.HasMetric(models.MetricTemperature) && q.Filter.HasMetric(models.MetricHumidity)
	if q.VPD, err = boolParam(values, "vpd", vpdDefault); err != nil {
		return Query{}, err
	}

	switch format := strings.ToLower(firstValue(values, "format")); format {
	case "", string(FormatFlat):
	case string(FormatLegacy):
		q.Format = FormatLegacy
		// Legacy rows always carry full aggregate objects
		q.Aggregations = true
	default:
		return Query{}, invalid("format", "%q must be flat or legacy", format)
	}

	if err := q.Filter.Validate(); err != nil {
		return Query{}, err
	}
	if cfg.MaxWindow > 0 && q.End.Sub(q.Start) > cfg.MaxWindow {
		return Query{}, invalid("start_date", "range exceeds the maximum window of %s", cfg.MaxWindow)
	}
	if mode == ModeTimeframed && cfg.MaxBuckets > 0 {
		if n := q.Timeframe.BucketCount(q.Start, q.End); n > cfg.MaxBuckets {
			return Query{}, invalid("timeframe", "%s over this range yields %d buckets, maximum is %d", q.Timeframe, n, cfg.MaxBuckets)
		}
	}

	return q, nil
}

func defaultWindow(q Query, cfg config.EngineConfig) time.Duration {
	switch q.Mode {
	case ModeLatest:
		if cfg.LatestWindow > 0 {
			return cfg.LatestWindow
		}
	case ModeTimeframed:
		if w := q.Timeframe.DefaultWindow(); w > 0 {
			return w
		}
	}
	if cfg.DefaultWindow > 0 {
		return cfg.DefaultWindow
	}
	return 5 * time.Minute
}

// parseDate accepts ISO-8601 dates. Values without an offset are UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	// An unescaped '+' offset arrives as a space after query decoding
	if i := strings.LastIndex(s, " "); i > 10 && strings.Contains(s, "T") {
		s = s[:i] + "+" + s[i+1:]
	}
	return models.ParseTimestamp(s)
}

func firstValue(values url.Values, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(values.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

// listParam merges repeated and comma-separated values of the given keys
func listParam(values url.Values, keys ...string) []string {
	seen := make(map[string]bool)
	var items []string
	for _, key := range keys {
		for _, raw := range values[key] {
			for _, item := range strings.Split(raw, ",") {
				item = strings.TrimSpace(item)
				if item != "" && !seen[item] {
					seen[item] = true
					items = append(items, item)
				}
			}
		}
	}
	sort.Strings(items)
	return items
}

func metricList(values url.Values) ([]models.Metric, error) {
	seen := make(map[models.Metric]bool)
	var metrics []models.Metric
	for _, item := range listParam(values, "metric", "metrics") {
		m, err := models.ParseMetric(item)
		if err != nil {
			return nil, invalid("metric", "unknown metric %q", item)
		}
		if !seen[m] {
			seen[m] = true
			metrics = append(metrics, m)
		}
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i] < metrics[j] })
	return metrics, nil
}

// valueRanges parses <metric>__<op> parameters, e.g. t__gte=18
func valueRanges(values url.Values) (map[models.Metric]models.ValueRange, error) {
	ranges := make(map[models.Metric]models.ValueRange)

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		prefix, op, ok := strings.Cut(key, "__")
		if !ok {
			continue
		}
		m, err := models.ParseMetric(prefix)
		if err != nil {
			return nil, invalid(key, "unknown metric %q", prefix)
		}
		raw := strings.TrimSpace(values.Get(key))
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, invalid(key, "%q is not a number", raw)
		}

		vr := ranges[m]
		switch op {
		case "gt":
			vr.GT = &v
		case "gte":
			vr.GTE = &v
		case "lt":
			vr.LT = &v
		case "lte":
			vr.LTE = &v
		default:
			return nil, invalid(key, "unknown operator %q, use gt, gte, lt or lte", op)
		}
		ranges[m] = vr
	}

	if len(ranges) == 0 {
		return nil, nil
	}
	return ranges, nil
}

func boolParam(values url.Values, key string, defaultValue bool) (bool, error) {
	raw := firstValue(values, key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, invalid(key, "%q is not a boolean", raw)
	}
	return v, nil
}
