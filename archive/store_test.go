package archive

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/randwalk/geom"
	"github.com/pthm-cable/randwalk/obstacle"
	"github.com/pthm-cable/randwalk/policy"
	"github.com/pthm-cable/randwalk/sim"
	"github.com/pthm-cable/randwalk/telemetry"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newEngine(t *testing.T) *sim.Engine {
	t.Helper()
	reg := obstacle.NewRegistry()
	require.NoError(t, reg.AddBarrier("wall", geom.NewBox2D(2, -1, 1, 2)))
	require.NoError(t, reg.AddPortal("gate", geom.NewBox2D(-3, -1, 0.5, 2), geom.Vec{X: 20, Y: 20}))

	e := sim.New(reg, sim.WithSeed(11), sim.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	biased, err := policy.NewBiased(policy.Weights{Up: 1, Down: 1, Left: 3, Right: 1})
	require.NoError(t, err)
	for _, p := range []policy.Policy{biased, policy.Grid{}, policy.RandomStep{}} {
		_, err := e.AddWalker(p)
		require.NoError(t, err)
	}
	return e
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	s := openMemory(t)
	require.NoError(t, InitSchema(context.Background(), s.db))

	version, err := getSchemaVersion(context.Background(), s.db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestBatchRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateBatch(ctx, Batch{ID: "b1", CreatedAt: created, Seed: 1 << 63, Steps: 40, Config: "simulation: {}"}))

	b, err := s.Batch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)
	assert.True(t, created.Equal(b.CreatedAt))
	assert.Equal(t, uint64(1<<63), b.Seed)
	assert.Equal(t, 40, b.Steps)
	assert.Equal(t, 0, b.Runs)

	_, err = s.Batch(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownBatch)

	assert.Error(t, s.CreateBatch(ctx, Batch{ID: "b1"}), "duplicate batch id")
	assert.Error(t, s.CreateBatch(ctx, Batch{}), "empty batch id")
}

func TestSaveRunRequiresBatch(t *testing.T) {
	s := openMemory(t)
	err := s.SaveRun(context.Background(), "nope", sim.Run{Index: 1})
	assert.Error(t, err)
}

func TestReplayMatchesLiveAggregate(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	require.NoError(t, s.CreateBatch(ctx, Batch{ID: "batch", Seed: 11, Steps: 60}))

	e := newEngine(t)
	live := telemetry.NewAggregator()
	var saved []sim.Run
	for range 4 {
		run, err := e.Simulate(60)
		require.NoError(t, err)
		live.AddRun(run)
		require.NoError(t, s.SaveRun(ctx, "batch", run))
		saved = append(saved, run)
		e.Reset()
	}

	runs, err := s.LoadRuns(ctx, "batch")
	require.NoError(t, err)
	require.Len(t, runs, len(saved))
	for i, run := range runs {
		assert.Equal(t, saved[i].Index, run.Index)
		assert.Equal(t, saved[i].Steps, run.Steps)
		assert.Equal(t, saved[i].Obstacles, run.Obstacles)
		require.Len(t, run.Records, len(saved[i].Records))
		for j, rec := range run.Records {
			want := saved[i].Records[j]
			assert.Equal(t, want.Walker, rec.Walker)
			assert.Equal(t, want.Kind, rec.Kind)
			assert.Equal(t, want.EscapeStep, rec.EscapeStep)
			assert.Equal(t, want.Attempts, rec.Attempts)
			assert.Equal(t, want.Truncated, rec.Truncated)
			assert.Equal(t, want.Trajectory, rec.Trajectory)
			assert.Equal(t, want.Crossings, rec.Crossings)
		}
	}

	replayed := telemetry.NewAggregator()
	n, err := s.Replay(ctx, "batch", replayed)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, live.Summary(), replayed.Summary())

	batches, err := s.Batches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 4, batches[0].Runs)
}

func TestReplayUnknownBatch(t *testing.T) {
	_, err := openMemory(t).Replay(context.Background(), "missing", telemetry.NewAggregator())
	assert.ErrorIs(t, err, ErrUnknownBatch)
}

func TestOpenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs", "archive.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.CreateBatch(ctx, Batch{ID: "persisted", Steps: 1}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	b, err := s.Batch(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Steps)
}
