package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/randwalk/archive"
	"github.com/pthm-cable/randwalk/config"
	"github.com/pthm-cable/randwalk/policy"
	"github.com/pthm-cable/randwalk/runner"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "randwalk",
		Short: "Random walk simulator",
		Long: `randwalk runs walkers with different movement policies among barriers
and portal gates, repeats the simulation many times and reports averaged
statistics per walker.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml or .json (empty = use defaults)")
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level")
	rootCmd.PersistentFlags().String("log-format", "", "Override logging.format (json or text)")

	rootCmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newReplayCmd(),
		newKindsCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig loads the config named by --config and applies logging flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if err := config.Init(path); err != nil {
		return nil, err
	}
	cfg := config.Cfg()

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if err := cfg.Derived.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid --log-level %q", level)
		}
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Logging.Format = format
	}
	return cfg, nil
}

// newLogger builds the process logger, JSON by default.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Derived.LogLevel}
	if strings.EqualFold(cfg.Logging.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured batch and write statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("simulations") {
				cfg.Simulation.NumSimulations, _ = cmd.Flags().GetInt("simulations")
			}
			if cmd.Flags().Changed("steps") {
				cfg.Simulation.NumSteps, _ = cmd.Flags().GetInt("steps")
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Simulation.Parallel, _ = cmd.Flags().GetBool("parallel")
			}
			if out, _ := cmd.Flags().GetString("out"); out != "" {
				cfg.Output.StatsPath = out
			}
			if db, _ := cmd.Flags().GetString("archive"); db != "" {
				cfg.Output.Archive = db
			}
			seed, _ := cmd.Flags().GetUint64("seed")

			logger := newLogger(cmd.ErrOrStderr(), cfg)
			slog.SetDefault(logger)

			res, err := runner.Run(cmd.Context(), cfg, runner.Options{Seed: seed, Logger: logger})
			if res != nil && res.StatsPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "statistics written to %s (batch %s)\n", res.StatsPath, res.BatchID)
			}
			return err
		},
	}
	cmd.Flags().Uint64("seed", 0, "RNG seed (0 = use config, then time-based)")
	cmd.Flags().Int("simulations", 0, "Override simulation.num_simulations")
	cmd.Flags().Int("steps", 0, "Override simulation.num_steps")
	cmd.Flags().Bool("parallel", false, "Walk the walkers of each run concurrently")
	cmd.Flags().String("out", "", "Override output.stats_path")
	cmd.Flags().String("archive", "", "Override output.archive")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			_, regErrs := cfg.Registry()
			policies, walkerErrs := cfg.Policies()
			out := cmd.OutOrStdout()
			for _, err := range append(regErrs, walkerErrs...) {
				fmt.Fprintf(out, "skipped: %v\n", err)
			}
			if len(policies) == 0 {
				return config.ErrNoWalkers
			}
			fmt.Fprintf(out, "ok: %d walkers, %d barriers, %d portal gates\n",
				len(policies), len(cfg.Barriers)-countSection(regErrs, "barriers"),
				len(cfg.PortalGates)-countSection(regErrs, "portal_gates"))
			return nil
		},
	}
}

func countSection(errs []error, section string) int {
	n := 0
	for _, err := range errs {
		var item *config.ItemError
		if errors.As(err, &item) && item.Section == section {
			n++
		}
	}
	return n
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <archive.db> [batch-id]",
		Short: "Recompute statistics from an archived batch, or list batches",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg)

			if len(args) == 1 {
				return listBatches(cmd, args[0])
			}

			out, _ := cmd.Flags().GetString("out")
			res, err := runner.Replay(cmd.Context(), args[0], args[1], out, logger)
			if err != nil {
				return err
			}
			if res.StatsPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "statistics written to %s\n", res.StatsPath)
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "    ")
			return enc.Encode(res.Summary)
		},
	}
	cmd.Flags().String("out", "", "Write statistics to this path instead of stdout")
	return cmd
}

func listBatches(cmd *cobra.Command, path string) error {
	store, err := archive.Open(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer store.Close()

	batches, err := store.Batches(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, b := range batches {
		fmt.Fprintf(out, "%s  %s  seed=%d  runs=%d  steps=%d\n",
			b.ID, b.CreatedAt.Format("2006-01-02 15:04:05"), b.Seed, b.Runs, b.Steps)
	}
	return nil
}

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List walker kinds",
		Run: func(cmd *cobra.Command, args []string) {
			for _, k := range policy.Kinds() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "randwalk version %s\n", version)
		},
	}
}
