package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/pthm-cable/randwalk/geom"
)

// Precision is the number of decimal places kept in presented statistics.
const Precision = 5

// Summary is the exported statistics document. Values are rounded to
// Precision decimal places. The axis_x series is the XZ magnitude (distance
// from the Y axis) and axis_y the YZ magnitude.
type Summary struct {
	DistanceFromOrigin map[string][]float64   `json:"average_distance_from_origin"`
	DistancesFromAxisX map[string][]float64   `json:"distances_from_axis_x"`
	DistancesFromAxisY map[string][]float64   `json:"distances_from_axis_y"`
	EscapeRadius       map[string]EscapeStats `json:"escape_radius_10_stats"`
	PassedY            map[string][]float64   `json:"passed_y_stats"`
	Leads              map[string]float64     `json:"average lead count"`
}

// Summary computes every derived statistic and rounds it for presentation.
func (a *Aggregator) Summary() Summary {
	escape := a.EscapeRadius()
	for name, s := range escape {
		if s.Average != nil {
			avg := round(*s.Average)
			s.Average = &avg
			escape[name] = s
		}
	}
	leads := a.AverageLeads()
	for name, v := range leads {
		leads[name] = round(v)
	}
	return Summary{
		DistanceFromOrigin: roundSeries(a.DistanceFromOrigin()),
		DistancesFromAxisX: roundSeries(a.DistancesFromAxis(geom.AxisY)),
		DistancesFromAxisY: roundSeries(a.DistancesFromAxis(geom.AxisX)),
		EscapeRadius:       escape,
		PassedY:            roundSeries(a.AveragePassedY()),
		Leads:              leads,
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s Summary) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(s.Leads))
	names := make([]string, 0, len(s.Leads))
	for name := range s.Leads {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		group := []any{slog.Float64("leads", s.Leads[name])}
		if d := s.DistanceFromOrigin[name]; len(d) > 0 {
			group = append(group, slog.Float64("final_distance", d[len(d)-1]))
		}
		if e := s.EscapeRadius[name]; e.Average != nil {
			group = append(group, slog.Float64("escape_avg", *e.Average))
		}
		attrs = append(attrs, slog.Group(name, group...))
	}
	return slog.GroupValue(attrs...)
}

func round(v float64) float64 {
	return scalar.Round(v, Precision)
}

func roundSeries(in map[string][]float64) map[string][]float64 {
	for _, series := range in {
		for i, v := range series {
			series[i] = round(v)
		}
	}
	return in
}

// SeriesRow is one walker-step line of the per-step CSV.
type SeriesRow struct {
	Walker     string  `csv:"walker"`
	Step       int     `csv:"step"`
	AvgX       float64 `csv:"avg_abs_x"`
	AvgY       float64 `csv:"avg_abs_y"`
	AvgZ       float64 `csv:"avg_abs_z"`
	DistOrigin float64 `csv:"distance_from_origin"`
	DistAxisX  float64 `csv:"distance_from_axis_x"`
	DistAxisY  float64 `csv:"distance_from_axis_y"`
	AvgPassedY float64 `csv:"avg_passed_y"`
}

// SeriesRows flattens the per-step series into CSV rows, walkers in
// first-seen order and steps numbered from 1.
func (a *Aggregator) SeriesRows() []SeriesRow {
	abs := a.AveragePositions(Absolute)
	origin := a.DistanceFromOrigin()
	axisX := a.DistancesFromAxis(geom.AxisY)
	axisY := a.DistancesFromAxis(geom.AxisX)
	passed := a.AveragePassedY()

	var rows []SeriesRow
	for _, name := range a.Walkers() {
		for i, p := range abs[name] {
			row := SeriesRow{
				Walker:     name,
				Step:       i + 1,
				AvgX:       round(p.X),
				AvgY:       round(p.Y),
				AvgZ:       round(p.Z),
				DistOrigin: round(origin[name][i]),
				DistAxisX:  round(axisX[name][i]),
				DistAxisY:  round(axisY[name][i]),
			}
			if i < len(passed[name]) {
				row.AvgPassedY = round(passed[name][i])
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// Distribution describes a set of samples.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
}

// EscapeDistribution computes mean, standard deviation and percentiles of
// escape steps. Empty input yields zeros.
func EscapeDistribution(values []float64) Distribution {
	n := len(values)
	if n == 0 {
		return Distribution{}
	}

	var d Distribution
	d.Mean = floats.Sum(values) / float64(n)

	var sqDiffSum float64
	for _, v := range values {
		diff := v - d.Mean
		sqDiffSum += diff * diff
	}
	d.Std = math.Sqrt(sqDiffSum / float64(n))

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	d.P10 = Percentile(sorted, 0.10)
	d.P50 = Percentile(sorted, 0.50)
	d.P90 = Percentile(sorted, 0.90)
	return d
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
