package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/skorper/harmony/internal/adapter/sqlite"
	"github.com/skorper/harmony/internal/client"
	"github.com/skorper/harmony/internal/config"
	"github.com/skorper/harmony/internal/domain"
	"github.com/skorper/harmony/internal/runner"
	"github.com/skorper/harmony/internal/scenario"
)

var runFlags struct {
	users          int
	spawnRate      float64
	duration       time.Duration
	iterations     int
	waitMin        time.Duration
	waitMax        time.Duration
	requestTimeout time.Duration
	shapefile      string
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the load test",
		Long: `run drives simulated users through the scenario table against the base URL,
waits for asynchronous jobs and records every request and job outcome in the
results database.`,
		Args: cobra.NoArgs,
		RunE: runLoad,
	}

	f := cmd.Flags()
	f.IntVarP(&runFlags.users, "users", "u", 0, "number of simulated users")
	f.Float64VarP(&runFlags.spawnRate, "spawn-rate", "r", 0, "users started per second")
	f.DurationVarP(&runFlags.duration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
	f.IntVarP(&runFlags.iterations, "iterations", "n", 0, "scenarios per user (0 is unlimited)")
	f.DurationVar(&runFlags.waitMin, "wait-min", 0, "minimum think time between scenarios")
	f.DurationVar(&runFlags.waitMax, "wait-max", 0, "maximum think time between scenarios")
	f.DurationVar(&runFlags.requestTimeout, "request-timeout", 0, "timeout of a single request")
	f.StringVar(&runFlags.shapefile, "shapefile", "", "shapefile uploaded by shapefile scenarios")
	addScenarioFlags(cmd)
	addPollFlags(cmd)
	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("users") {
		cfg.Users = runFlags.users
	}
	if f.Changed("spawn-rate") {
		cfg.SpawnRate = runFlags.spawnRate
	}
	if f.Changed("duration") {
		cfg.Duration = runFlags.duration
	}
	if f.Changed("iterations") {
		cfg.Iterations = runFlags.iterations
	}
	if f.Changed("wait-min") {
		cfg.WaitMin = runFlags.waitMin
	}
	if f.Changed("wait-max") {
		cfg.WaitMax = runFlags.waitMax
	}
	if f.Changed("request-timeout") {
		cfg.RequestTimeout = runFlags.requestTimeout
	}
	if f.Changed("shapefile") {
		cfg.ShapefilePath = runFlags.shapefile
	}
}

func runLoad(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, applyRunFlags, applyScenarioFlags, applyPollFlags)
	if err != nil {
		return err
	}

	table, err := effectiveScenarios(cfg)
	if err != nil {
		return err
	}
	if len(table) == 0 {
		return fmt.Errorf("no scenario left after tag filters %v / %v", cfg.Tags, cfg.ExcludeTags)
	}

	repo, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open results database: %w", err)
	}
	defer repo.Close()

	runID := uuid.NewString()
	c, err := client.New(cfg.BaseURL, client.Options{
		Timeout:   cfg.RequestTimeout,
		Transport: client.TransportOptions{Insecure: cfg.Insecure},
		Recorder:  repo,
		RunID:     runID,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	log.Info().Str("run", runID).Str("base", c.BaseURL()).Str("db", cfg.DBPath).Msg("starting load run")

	r := runner.New(runner.Config{
		RunID:      runID,
		Users:      cfg.Users,
		SpawnRate:  cfg.SpawnRate,
		Iterations: cfg.Iterations,
		WaitMin:    cfg.WaitMin,
		WaitMax:    cfg.WaitMax,
		Poll:       cfg.Poll.Waiter(),
		Env:        scenario.Env{ShapefilePath: cfg.ShapefilePath},
	}, table, c, repo)

	summary, err := r.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	writeSummary(out, summary)
	fmt.Fprintln(out)
	return report(context.Background(), out, repo, runID)
}

func writeSummary(w io.Writer, s *runner.Summary) {
	fmt.Fprintf(w, "run %s: %d scenarios, %d failed, in %s\n",
		s.RunID, s.Executions, s.Failures, s.Elapsed.Round(time.Millisecond))

	statuses := make([]domain.JobStatus, 0, len(s.Jobs))
	for st := range s.Jobs {
		statuses = append(statuses, st)
	}
	slices.Sort(statuses)
	for _, st := range statuses {
		fmt.Fprintf(w, "  jobs %s: %d\n", st, s.Jobs[st])
	}
	if s.JobErrors > 0 {
		fmt.Fprintf(w, "  jobs not awaited: %d\n", s.JobErrors)
	}
}
