package telemetry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/randwalk/geom"
	"github.com/pthm-cable/randwalk/sim"
)

func record(name string, escape int, crossings []int, traj ...geom.Vec) sim.Record {
	return sim.Record{Walker: name, Trajectory: traj, EscapeStep: escape, Crossings: crossings}
}

func runOf(recs ...sim.Record) sim.Run {
	return sim.Run{Records: recs}
}

func TestAveragePositionExample(t *testing.T) {
	a := NewAggregator()
	a.AddRun(runOf(record("W1", 0, []int{0}, geom.Vec{X: 1})))
	a.AddRun(runOf(record("W1", 0, []int{0}, geom.Vec{X: 3})))

	assert.Equal(t, []geom.Vec{{X: 2}}, a.AveragePositions(Signed)["W1"])
	assert.Equal(t, []float64{2.0}, a.DistanceFromOrigin()["W1"])
	assert.Equal(t, 2, a.Runs())
	assert.Equal(t, []string{"Simulation 1", "Simulation 2"}, a.RunIDs("W1"))
}

func TestSignedAndAbsoluteModes(t *testing.T) {
	a := NewAggregator()
	a.AddRun(runOf(record("W", 0, nil, geom.Vec{X: 2, Y: -4})))
	a.AddRun(runOf(record("W", 0, nil, geom.Vec{X: -2, Y: 4})))

	assert.Equal(t, []geom.Vec{{}}, a.AveragePositions(Signed)["W"])
	assert.Equal(t, []geom.Vec{{X: 2, Y: 4}}, a.AveragePositions(Absolute)["W"])
	assert.Equal(t, []float64{0}, a.DistanceFromOrigin()["W"])

	// Distance from the X axis line uses Y and Z.
	assert.Equal(t, []float64{4}, a.DistancesFromAxis(geom.AxisX)["W"])
	assert.Equal(t, []float64{2}, a.DistancesFromAxis(geom.AxisY)["W"])
	assert.InDelta(t, math.Sqrt(20), a.DistancesFromAxis(geom.AxisZ)["W"][0], 1e-12)
}

func TestTruncatedRunsAverageOverReachedSteps(t *testing.T) {
	a := NewAggregator()
	a.AddRun(runOf(record("W", 0, []int{1, 1, 2}, geom.Vec{X: 1}, geom.Vec{X: 2}, geom.Vec{X: 3})))
	a.AddRun(runOf(record("W", 0, []int{3}, geom.Vec{X: 3})))

	assert.Equal(t, []geom.Vec{{X: 2}, {X: 2}, {X: 3}}, a.AveragePositions(Signed)["W"])
	assert.Equal(t, []float64{2, 1, 2}, a.AveragePassedY()["W"])
}

func TestEscapeRadius(t *testing.T) {
	a := NewAggregator()
	a.AddRun(runOf(record("A", 12, nil), record("B", 0, nil)))
	a.AddRun(runOf(record("A", 0, nil), record("B", 0, nil)))
	a.AddRun(runOf(record("A", 18, nil), record("B", 0, nil)))

	stats := a.EscapeRadius()
	require.NotNil(t, stats["A"].Average)
	assert.Equal(t, 15.0, *stats["A"].Average)
	assert.Equal(t, 1, stats["A"].ZeroCount)
	assert.Nil(t, stats["B"].Average)
	assert.Equal(t, 3, stats["B"].ZeroCount)
	assert.Equal(t, []float64{12, 18}, a.EscapeSteps("A"))
}

func TestAverageLeads(t *testing.T) {
	tests := []struct {
		name string
		runs []sim.Run
		want map[string]float64
	}{
		{
			name: "farther walker leads",
			runs: []sim.Run{
				runOf(
					record("A", 0, nil, geom.Vec{X: 1}, geom.Vec{X: 2}),
					record("B", 0, nil, geom.Vec{X: 2}, geom.Vec{X: 1}),
				),
			},
			want: map[string]float64{"A": 1, "B": 1},
		},
		{
			name: "ties go to first inserted",
			runs: []sim.Run{
				runOf(
					record("A", 0, nil, geom.Vec{X: 1}, geom.Vec{Y: 1}),
					record("B", 0, nil, geom.Vec{X: -1}, geom.Vec{Y: -1}),
				),
			},
			want: map[string]float64{"A": 2, "B": 0},
		},
		{
			name: "sums over runs then divides by run count",
			runs: []sim.Run{
				runOf(record("A", 0, nil, geom.Vec{X: 5}), record("B", 0, nil, geom.Vec{X: 1})),
				runOf(record("A", 0, nil, geom.Vec{X: 1}), record("B", 0, nil, geom.Vec{X: 2})),
			},
			want: map[string]float64{"A": 1, "B": 0},
		},
		{
			name: "every run counts at every step",
			runs: []sim.Run{
				runOf(
					record("A", 0, nil, geom.Vec{X: 2}, geom.Vec{X: 3}, geom.Vec{X: 4}),
					record("B", 0, nil, geom.Vec{X: 1}, geom.Vec{X: 1}, geom.Vec{X: 1}),
				),
				runOf(
					record("A", 0, nil, geom.Vec{Y: 2}, geom.Vec{Y: 3}, geom.Vec{Y: 4}),
					record("B", 0, nil, geom.Vec{Y: 1}, geom.Vec{Y: 1}, geom.Vec{Y: 1}),
				),
			},
			want: map[string]float64{"A": 3, "B": 0},
		},
		{
			name: "walker without samples cannot lead",
			runs: []sim.Run{
				runOf(record("A", 0, nil), record("B", 0, nil, geom.Vec{X: 0.5})),
			},
			want: map[string]float64{"A": 0, "B": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAggregator()
			for _, r := range tt.runs {
				a.AddRun(r)
			}
			assert.Equal(t, tt.want, a.AverageLeads())
		})
	}
}

func TestAverageLeadsEmpty(t *testing.T) {
	assert.Empty(t, NewAggregator().AverageLeads())
}

func TestWalkersFirstSeenOrder(t *testing.T) {
	a := NewAggregator()
	a.AddRun(runOf(record("Z", 0, nil), record("A", 0, nil)))
	a.AddRun(runOf(record("M", 0, nil), record("A", 0, nil)))
	assert.Equal(t, []string{"Z", "A", "M"}, a.Walkers())
}

func TestSummaryRounds(t *testing.T) {
	a := NewAggregator()
	a.AddRun(runOf(record("W", 11, []int{1}, geom.Vec{X: 1.0 / 3})))
	a.AddRun(runOf(record("W", 12, []int{0}, geom.Vec{X: 1.0 / 3})))
	a.AddRun(runOf(record("W", 12, []int{0}, geom.Vec{X: 1.0 / 3})))

	s := a.Summary()
	assert.Equal(t, []float64{0.33333}, s.DistanceFromOrigin["W"])
	assert.Equal(t, []float64{0.33333}, s.PassedY["W"])
	assert.Equal(t, []float64{0.33333}, s.DistancesFromAxisX["W"])
	assert.Equal(t, []float64{0}, s.DistancesFromAxisY["W"])
	require.NotNil(t, s.EscapeRadius["W"].Average)
	assert.Equal(t, 11.66667, *s.EscapeRadius["W"].Average)
	assert.Equal(t, 1.0, s.Leads["W"])
}

func TestSummaryAxisKeys(t *testing.T) {
	a := NewAggregator()
	a.AddRun(runOf(record("W", 0, nil, geom.Vec{X: 3, Y: 4})))

	s := a.Summary()
	// distances_from_axis_x is measured across the XZ plane, axis_y across YZ.
	assert.Equal(t, []float64{3}, s.DistancesFromAxisX["W"])
	assert.Equal(t, []float64{4}, s.DistancesFromAxisY["W"])

	rows := a.SeriesRows()
	require.Len(t, rows, 1)
	assert.Equal(t, 3.0, rows[0].DistAxisX)
	assert.Equal(t, 4.0, rows[0].DistAxisY)
}

func TestSeriesRows(t *testing.T) {
	a := NewAggregator()
	a.AddRun(runOf(
		record("A", 0, []int{0, 1}, geom.Vec{X: 1}, geom.Vec{X: -1}),
		record("B", 0, []int{0}, geom.Vec{Y: 2}),
	))

	rows := a.SeriesRows()
	require.Len(t, rows, 3)
	assert.Equal(t, SeriesRow{Walker: "A", Step: 1, AvgX: 1, DistOrigin: 1, DistAxisX: 1}, rows[0])
	assert.Equal(t, SeriesRow{Walker: "A", Step: 2, AvgX: 1, DistOrigin: 1, DistAxisX: 1, AvgPassedY: 1}, rows[1])
	assert.Equal(t, SeriesRow{Walker: "B", Step: 1, AvgY: 2, DistOrigin: 2, DistAxisY: 2}, rows[2])
}
