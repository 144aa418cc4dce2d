package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

// SensorParser turns device payloads into readings. It accepts the flat
// form {timestamp, sensor, metric, value}, the legacy per-device form
// {timestamp, sensor|rpi, t, h, s, l}, or a JSON array of either.
type SensorParser struct {
	now func() time.Time
}

// NewSensorParser creates a new instance of SensorParser
func NewSensorParser() *SensorParser {
	return &SensorParser{now: time.Now}
}

type sensorPayload struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Sensor    string          `json:"sensor"`
	RPI       string          `json:"rpi"`
	Metric    string          `json:"metric"`
	Value     *float64        `json:"value"`
	T         *float64        `json:"t"`
	H         *float64        `json:"h"`
	S         *float64        `json:"s"`
	L         *float64        `json:"l"`
}

// ParseSensorJSON parses one payload. defaultSensor is used when the
// payload names no sensor (e.g. taken from an MQTT topic).
func (sp *SensorParser) ParseSensorJSON(payload []byte, defaultSensor string) ([]models.Reading, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var items []sensorPayload
	if payload[0] == '[' {
		if err := json.Unmarshal(payload, &items); err != nil {
			return nil, fmt.Errorf("failed to parse sensor JSON: %w", err)
		}
	} else {
		var item sensorPayload
		if err := json.Unmarshal(payload, &item); err != nil {
			return nil, fmt.Errorf("failed to parse sensor JSON: %w", err)
		}
		items = append(items, item)
	}

	var readings []models.Reading
	for i, item := range items {
		parsed, err := sp.readings(item, defaultSensor)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		readings = append(readings, parsed...)
	}
	return readings, nil
}

func (sp *SensorParser) readings(p sensorPayload, defaultSensor string) ([]models.Reading, error) {
	sensor := firstNonEmpty(p.Sensor, p.RPI, defaultSensor)
	if sensor == "" {
		return nil, fmt.Errorf("sensor is required")
	}

	ts, err := sp.timestamp(p.Timestamp)
	if err != nil {
		return nil, err
	}

	var readings []models.Reading
	add := func(metric models.Metric, v *float64) {
		if v != nil {
			readings = append(readings, models.Reading{Timestamp: ts, Sensor: sensor, Metric: metric, Value: *v})
		}
	}

	if p.Metric != "" {
		metric, err := models.ParseMetric(p.Metric)
		if err != nil {
			return nil, err
		}
		if p.Value == nil {
			return nil, fmt.Errorf("value is required for metric %s", metric)
		}
		add(metric, p.Value)
	} else {
		add(models.MetricTemperature, p.T)
		add(models.MetricHumidity, p.H)
		add(models.MetricSubstrate, p.S)
		add(models.MetricLight, p.L)
	}

	if len(readings) == 0 {
		return nil, fmt.Errorf("payload for %s carries no metric", sensor)
	}
	for i := range readings {
		if err := readings[i].Validate(); err != nil {
			return nil, err
		}
	}
	return readings, nil
}

// timestamp accepts an ISO-8601 string or unix seconds; missing means now
func (sp *SensorParser) timestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return sp.now().UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		ts, err := models.ParseTimestamp(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
		}
		return ts, nil
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s", raw)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

// ParseSensorString parses the plain-text fallback format
// "t=24.5,h=61" for the given sensor, stamped with the current time
func (sp *SensorParser) ParseSensorString(payload string, sensor string) ([]models.Reading, error) {
	if sensor == "" {
		return nil, fmt.Errorf("sensor is required")
	}
	now := sp.now().UTC()

	var readings []models.Reading
	for _, pair := range strings.Split(payload, ",") {
		key, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("failed to parse sensor string: expected metric=value, got %q", pair)
		}
		metric, err := models.ParseMetric(key)
		if err != nil {
			return nil, err
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse value of %s: %w", metric, err)
		}

		r := models.Reading{Timestamp: now, Sensor: sensor, Metric: metric, Value: value}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// FormatSensorReading formats a reading for logging
func (sp *SensorParser) FormatSensorReading(r models.Reading) string {
	return fmt.Sprintf("Sensor: %s, Time: %s, %s: %.2f %s",
		r.Sensor,
		r.Timestamp.Format("2006-01-02 15:04:05"),
		r.Metric.Name(),
		r.Value,
		r.Metric.Unit())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
