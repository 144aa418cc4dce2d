package engine

import (
	"math"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
)

// SaturationVaporPressure returns es in kPa for a temperature in °C (Tetens)
func SaturationVaporPressure(t float64) float64 {
	return 0.6108 * math.Exp(17.27*t/(t+237.3))
}

// VPD returns the vapor pressure deficit in kPa. Inputs are not range
// checked.
func VPD(t, rh float64) float64 {
	return SaturationVaporPressure(t) * (1 - rh/100)
}

// AppendVPD adds a vpd row after every (timestamp, sensor) group that has
// both a temperature and a humidity aggregate. Rows must be sorted by
// timestamp, sensor, metric; the result keeps that order.
func AppendVPD(rows []Row) []Row {
	out := make([]Row, 0, len(rows)+len(rows)/2)

	for i := 0; i < len(rows); {
		j := i
		var t, h *Aggregate
		for j < len(rows) && rows[j].Sensor == rows[i].Sensor && rows[j].Timestamp.Equal(rows[i].Timestamp) {
			switch rows[j].Metric {
			case models.MetricTemperature:
				t = rows[j].Agg
			case models.MetricHumidity:
				h = rows[j].Agg
			}
			out = append(out, rows[j])
			j++
		}

		if t != nil && h != nil {
			v := VPD(t.Mean, h.Mean)
			count := t.Count
			if h.Count < count {
				count = h.Count
			}
			out = append(out, Row{
				Timestamp: rows[i].Timestamp,
				Sensor:    rows[i].Sensor,
				Metric:    models.MetricVPD,
				Agg:       &Aggregate{Mean: v, Min: v, Max: v, First: v, Last: v, Count: count},
			})
		}
		i = j
	}
	return out
}
