package engine

import (
	"math"
	"testing"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

func TestVPD_Scenario(t *testing.T) {
	es := SaturationVaporPressure(25)
	if math.Abs(es-3.168) > 0.01 {
		t.Errorf("Expected es(25) ≈ 3.168, got %v", es)
	}
	if v := VPD(25, 60); math.Abs(v-1.267) > 0.01 {
		t.Errorf("Expected VPD(25, 60) ≈ 1.267, got %v", v)
	}
}

func TestVPD_PassesThroughImplausibleInputs(t *testing.T) {
	if v := VPD(25, 120); v >= 0 {
		t.Errorf("Expected negative VPD above 100%% RH, got %v", v)
	}
	if v := VPD(70, 50); math.IsNaN(v) || v <= 0 {
		t.Errorf("Expected a finite positive value at 70°C, got %v", v)
	}
}

func TestAppendVPD_Presence(t *testing.T) {
	agg := func(v float64, n int) *Aggregate { return &Aggregate{Mean: v, Count: n} }
	rows := []Row{
		{Timestamp: t0, Sensor: "s1", Metric: models.MetricHumidity, Agg: agg(60, 3)},
		{Timestamp: t0, Sensor: "s1", Metric: models.MetricTemperature, Agg: agg(25, 5)},
		{Timestamp: t0, Sensor: "s2", Metric: models.MetricTemperature, Agg: agg(22, 1)},
		{Timestamp: t0.Add(time.Minute), Sensor: "s1", Metric: models.MetricHumidity, Agg: nil},
		{Timestamp: t0.Add(time.Minute), Sensor: "s1", Metric: models.MetricTemperature, Agg: agg(24, 2)},
		{Timestamp: t0.Add(time.Minute), Sensor: "s2", Metric: models.MetricHumidity, Agg: agg(40, 2)},
		{Timestamp: t0.Add(time.Minute), Sensor: "s2", Metric: models.MetricLight, Agg: agg(100, 2)},
		{Timestamp: t0.Add(time.Minute), Sensor: "s2", Metric: models.MetricTemperature, Agg: agg(20, 4)},
	}

	out := AppendVPD(rows)

	var vpdRows []Row
	for _, r := range out {
		if r.Metric == models.MetricVPD {
			vpdRows = append(vpdRows, r)
		}
	}
	if len(vpdRows) != 2 {
		t.Fatalf("Expected 2 vpd rows, got %d", len(vpdRows))
	}

	first := vpdRows[0]
	if first.Sensor != "s1" || !first.Timestamp.Equal(t0) {
		t.Errorf("Unexpected first vpd row %+v", first)
	}
	if math.Abs(first.Agg.Mean-1.267) > 0.01 || first.Agg.Count != 3 {
		t.Errorf("Unexpected first vpd aggregate %+v", first.Agg)
	}
	if vpdRows[1].Sensor != "s2" || !vpdRows[1].Timestamp.Equal(t0.Add(time.Minute)) {
		t.Errorf("Unexpected second vpd row %+v", vpdRows[1])
	}

	// vpd follows the other metrics of its group
	if out[2].Metric != models.MetricVPD || out[len(out)-1].Metric != models.MetricVPD {
		t.Errorf("Expected vpd rows at the end of their groups, got %v and %v", out[2].Metric, out[len(out)-1].Metric)
	}
	if len(out) != len(rows)+2 {
		t.Errorf("Expected %d rows, got %d", len(rows)+2, len(out))
	}
}
