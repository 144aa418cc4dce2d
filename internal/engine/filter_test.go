package engine

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/config"
	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

var testNow = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		DefaultWindow:  5 * time.Minute,
		LatestWindow:   5 * time.Minute,
		MaxWindow:      90 * 24 * time.Hour,
		MaxBuckets:     5000,
		MinSamples:     1,
		ChunkThreshold: 200000,
		ChunkSpan:      6 * time.Hour,
		Precision:      2,
	}
}

func TestBuildQuery_Defaults(t *testing.T) {
	tests := []struct {
		name      string
		mode      Mode
		params    string
		wantStart time.Time
		wantTF    string
	}{
		{"list default window", ModeList, "", testNow.Add(-5 * time.Minute), ""},
		{"latest default window", ModeLatest, "", testNow.Add(-5 * time.Minute), ""},
		{"timeframed default token", ModeTimeframed, "", testNow.Add(-5 * time.Minute), "5S"},
		{"timeframed window follows timeframe", ModeTimeframed, "timeframe=1h", testNow.Add(-24 * time.Hour), "1H"},
		{"min alias", ModeTimeframed, "timeframe=30min", testNow.Add(-12 * time.Hour), "30T"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, _ := url.ParseQuery(tt.params)
			q, err := BuildQuery(values, testConfig(), testNow, tt.mode)
			if err != nil {
				t.Fatalf("BuildQuery failed: %v", err)
			}
			if !q.End.Equal(testNow) {
				t.Errorf("Expected end %v, got %v", testNow, q.End)
			}
			if !q.Start.Equal(tt.wantStart) {
				t.Errorf("Expected start %v, got %v", tt.wantStart, q.Start)
			}
			if tt.wantTF != "" && q.Timeframe.String() != tt.wantTF {
				t.Errorf("Expected timeframe %s, got %s", tt.wantTF, q.Timeframe)
			}
			if q.Explicit {
				t.Error("Expected implicit date range")
			}
			if !q.VPD {
				t.Error("Expected vpd enabled without a metric filter")
			}
		})
	}
}

func TestBuildQuery_Lists(t *testing.T) {
	values := url.Values{
		"sensors": {"s2,s1", "s3"},
		"sensor":  {"s1"},
		"metrics": {"t,humidity", "t"},
	}
	q, err := BuildQuery(values, testConfig(), testNow, ModeList)
	if err != nil {
		t.Fatalf("BuildQuery failed: %v", err)
	}

	if len(q.Sensors) != 3 || q.Sensors[0] != "s1" || q.Sensors[2] != "s3" {
		t.Errorf("Unexpected sensors: %v", q.Sensors)
	}
	if len(q.Metrics) != 2 || q.Metrics[0] != models.MetricHumidity || q.Metrics[1] != models.MetricTemperature {
		t.Errorf("Unexpected metrics: %v", q.Metrics)
	}
}

func TestBuildQuery_ExplicitRangeAndOptions(t *testing.T) {
	values, _ := url.ParseQuery("start_date=2025-01-06T10:00:00Z&end_date=2025-01-06T11:00:00%2B01:00" +
		"&t__gte=18&t__lt=30&h__lte=80&aggregations=true&gapless=1&rooms=true&metric=s")
	q, err := BuildQuery(values, testConfig(), testNow, ModeTimeframed)
	if err != nil {
		t.Fatalf("BuildQuery failed: %v", err)
	}

	if !q.Explicit {
		t.Error("Expected explicit date range")
	}
	if !q.End.Equal(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected offset converted to UTC, got %v", q.End)
	}
	if !q.Aggregations || !q.Gapless || !q.Rooms {
		t.Errorf("Expected options enabled, got %+v", q)
	}
	if q.VPD {
		t.Error("Expected vpd disabled when t and h are not requested")
	}

	tr := q.Ranges[models.MetricTemperature]
	if tr.GTE == nil || *tr.GTE != 18 || tr.LT == nil || *tr.LT != 30 {
		t.Errorf("Unexpected temperature range: %+v", tr)
	}
	if hr := q.Ranges[models.MetricHumidity]; hr.LTE == nil || *hr.LTE != 80 {
		t.Errorf("Unexpected humidity range: %+v", hr)
	}
}

func TestBuildQuery_LegacyForcesAggregations(t *testing.T) {
	values := url.Values{"format": {"legacy"}}
	q, err := BuildQuery(values, testConfig(), testNow, ModeTimeframed)
	if err != nil {
		t.Fatalf("BuildQuery failed: %v", err)
	}
	if q.Format != FormatLegacy || !q.Aggregations {
		t.Errorf("Expected legacy format with aggregations, got %s/%v", q.Format, q.Aggregations)
	}
}

func TestBuildQuery_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mode   Mode
		params string
		field  string
	}{
		{"bad start", ModeList, "start_date=yesterday", "start_date"},
		{"bad end", ModeList, "end_date=2025-13-01", "end_date"},
		{"start after end", ModeList, "start_date=2025-01-06T11:00:00Z&end_date=2025-01-06T10:00:00Z", "start_date"},
		{"unknown timeframe", ModeTimeframed, "timeframe=7T", "timeframe"},
		{"garbage timeframe", ModeTimeframed, "timeframe=abc", "timeframe"},
		{"unknown operator", ModeList, "t__ne=3", "t__ne"},
		{"unknown range metric", ModeList, "x__gt=3", "x__gt"},
		{"non numeric range", ModeList, "h__gt=wet", "h__gt"},
		{"unknown metric", ModeList, "metrics=t,co2", "metric"},
		{"bad boolean", ModeTimeframed, "gapless=maybe", "gapless"},
		{"bad format", ModeTimeframed, "format=xml", "format"},
		{"window too large", ModeList, "start_date=2024-01-01&end_date=2025-01-01", "start_date"},
		{"too many buckets", ModeTimeframed, "timeframe=5S&start_date=2025-01-01&end_date=2025-01-02", "timeframe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, _ := url.ParseQuery(tt.params)
			_, err := BuildQuery(values, testConfig(), testNow, tt.mode)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Expected field %q, got %q (%v)", tt.field, verr.Field, verr)
			}
		})
	}
}

func TestParseDate_Layouts(t *testing.T) {
	want := time.Date(2025, 1, 6, 10, 30, 0, 0, time.UTC)
	inputs := []string{
		"2025-01-06T10:30:00Z",
		"2025-01-06T10:30:00.000Z",
		"2025-01-06T10:30:00",
		"2025-01-06T10:30",
		"2025-01-06 10:30:00",
		"2025-01-06T07:30:00-03:00",
		"2025-01-06T12:30:00 02:00", // '+' decoded as space
	}
	for _, in := range inputs {
		got, err := parseDate(in)
		if err != nil {
			t.Errorf("parseDate(%q) failed: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parseDate(%q) = %v, want %v", in, got, want)
		}
	}
}
