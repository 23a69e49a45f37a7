// Package runner drives a batch: it builds the engine from configuration,
// runs it repeatedly, folds every run into an aggregator and writes outputs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/randwalk/archive"
	"github.com/pthm-cable/randwalk/config"
	"github.com/pthm-cable/randwalk/sim"
	"github.com/pthm-cable/randwalk/telemetry"
)

// perfWindow is the number of runs averaged in timing logs.
const perfWindow = 20

// Options override configuration for one batch.
type Options struct {
	Seed    uint64       // overrides simulation.seed when non-zero
	BatchID string       // generated when empty
	Logger  *slog.Logger // slog.Default() when nil
}

// Result is the outcome of a batch. It is returned even when writing
// outputs fails, so in-memory statistics are never lost.
type Result struct {
	BatchID    string
	Seed       uint64
	Runs       int
	Aggregator *telemetry.Aggregator
	Summary    telemetry.Summary
	StatsPath  string  // where stats were written, empty if disabled
	ItemErrors []error // rejected config entries
	Truncated  int     // walker-runs stopped on retry exhaustion
	Perf       telemetry.PerfStats
}

// LogValue implements slog.LogValuer for structured logging.
func (r *Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("batch", r.BatchID),
		slog.Uint64("seed", r.Seed),
		slog.Int("runs", r.Runs),
		slog.Int("walkers", len(r.Aggregator.Walkers())),
		slog.Int("item_errors", len(r.ItemErrors)),
		slog.Int("truncated", r.Truncated),
		slog.String("stats_path", r.StatsPath),
	)
}

// Build constructs the engine described by cfg. Rejected barriers, portal
// gates and walkers are returned as item errors; an engine without any
// walker is an error.
func Build(cfg *config.Config, seed uint64, logger *slog.Logger) (*sim.Engine, []error, error) {
	reg, itemErrs := cfg.Registry()
	policies, walkerErrs := cfg.Policies()
	itemErrs = append(itemErrs, walkerErrs...)
	for _, err := range itemErrs {
		logger.Warn("skipping config entry", "error", err)
	}
	if len(policies) == 0 {
		return nil, itemErrs, config.ErrNoWalkers
	}

	engine := sim.New(reg,
		sim.WithMaxAttempts(cfg.Simulation.MaxAttempts),
		sim.WithEscapeRadius(cfg.Simulation.EscapeRadius),
		sim.WithParallel(cfg.Simulation.Parallel),
		sim.WithSeed(seed),
		sim.WithLogger(logger),
	)
	for _, p := range policies {
		if _, err := engine.AddWalker(p); err != nil {
			return nil, itemErrs, fmt.Errorf("adding walker: %w", err)
		}
	}
	return engine, itemErrs, nil
}

// Run executes the configured batch. Cancelling ctx stops between runs.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = cfg.Simulation.Seed
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	batchID := opts.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	logger = logger.With("batch", batchID)

	engine, itemErrs, err := Build(cfg, seed, logger)
	if err != nil {
		return nil, err
	}

	res := &Result{
		BatchID:    batchID,
		Seed:       seed,
		Aggregator: telemetry.NewAggregator(),
		ItemErrors: itemErrs,
	}

	store, err := openArchive(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer store.Close()
	}

	trajectories, err := telemetry.NewTrajectoryWriter(cfg.Output.TrajectoriesCSV)
	if err != nil {
		return nil, err
	}
	defer trajectories.Close()

	logger.Info("starting batch",
		"seed", seed,
		"walkers", engine.Walkers(),
		"obstacles", engine.Obstacles().Len(),
		"num_simulations", cfg.Simulation.NumSimulations,
		"num_steps", cfg.Simulation.NumSteps,
	)

	perf := telemetry.NewPerfCollector(perfWindow)
	for i := 1; i <= cfg.Simulation.NumSimulations; i++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("batch stopped after %d runs: %w", res.Runs, err)
		}

		perf.StartRun()
		perf.StartPhase(telemetry.PhaseSimulate)
		run, err := engine.Simulate(cfg.Simulation.NumSteps)
		if err != nil {
			return res, fmt.Errorf("run %d: %w", i, err)
		}

		perf.StartPhase(telemetry.PhaseAggregate)
		res.Aggregator.AddRun(run)
		res.Runs++
		res.Truncated += len(run.Truncated())

		perf.StartPhase(telemetry.PhaseRecord)
		if err := trajectories.WriteRun(run); err != nil {
			return res, err
		}
		if store != nil {
			if err := store.SaveRun(ctx, batchID, run); err != nil {
				return res, fmt.Errorf("archiving run %d: %w", i, err)
			}
		}

		perf.StartPhase(telemetry.PhaseReset)
		engine.Reset()
		perf.EndRun(run.AcceptedSteps())

		logger.Debug("run complete", "run", run)
		if i%perfWindow == 0 {
			logger.Debug("perf", "stats", perf.Stats())
		}
	}
	res.Perf = perf.Stats()

	res.Summary = res.Aggregator.Summary()
	if err := writeOutputs(cfg.Output, res); err != nil {
		return res, err
	}

	logger.Info("batch complete", "result", res, "perf", res.Perf)
	logger.Debug("batch statistics", "summary", res.Summary, "escape", res.Aggregator)
	return res, nil
}

func openArchive(ctx context.Context, cfg *config.Config, res *Result) (*archive.Store, error) {
	if cfg.Output.Archive == "" {
		return nil, nil
	}
	store, err := archive.Open(ctx, cfg.Output.Archive)
	if err != nil {
		return nil, err
	}
	snapshot, err := cfg.YAML()
	if err != nil {
		store.Close()
		return nil, err
	}
	err = store.CreateBatch(ctx, archive.Batch{
		ID:     res.BatchID,
		Seed:   res.Seed,
		Steps:  cfg.Simulation.NumSteps,
		Config: string(snapshot),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// writeOutputs writes the stats document and the series CSV. Both are
// attempted; the errors are joined.
func writeOutputs(out config.OutputConfig, res *Result) error {
	var errs []error
	if out.StatsPath != "" {
		path, err := telemetry.WriteStats(out.StatsPath, res.Summary)
		if err != nil {
			errs = append(errs, err)
		}
		res.StatsPath = path
	}
	if out.SeriesCSV != "" {
		if err := telemetry.WriteSeriesCSV(out.SeriesCSV, res.Aggregator); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Replay re-aggregates an archived batch and writes its stats document to
// statsPath when non-empty.
func Replay(ctx context.Context, archivePath, batchID, statsPath string, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := archive.Open(ctx, archivePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	batch, err := store.Batch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		BatchID:    batch.ID,
		Seed:       batch.Seed,
		Aggregator: telemetry.NewAggregator(),
	}
	n, err := store.Replay(ctx, batchID, res.Aggregator)
	if err != nil {
		return nil, err
	}
	res.Runs = n
	res.Summary = res.Aggregator.Summary()

	if err := writeOutputs(config.OutputConfig{StatsPath: statsPath}, res); err != nil {
		return res, err
	}
	logger.Info("replay complete", "result", res)
	return res, nil
}
