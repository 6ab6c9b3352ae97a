package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skorper/harmony/internal/adapter/sqlite"
	"github.com/skorper/harmony/internal/stats"
)

var statsFlags struct {
	runID string
	json  bool
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "summarize a recorded run",
		Long:  `stats reads the results database and prints request timings and job outcomes of a run (the latest by default).`,
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
	cmd.Flags().StringVar(&statsFlags.runID, "run", "", "run ID (default latest)")
	cmd.Flags().BoolVar(&statsFlags.json, "json", false, "print request statistics as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	repo, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open results database: %w", err)
	}
	defer repo.Close()

	ctx := cmd.Context()
	runID := statsFlags.runID
	if runID == "" {
		if runID, err = repo.LatestRun(ctx); err != nil {
			if errors.Is(err, sqlite.ErrNoRuns) {
				return fmt.Errorf("%s: %w", cfg.DBPath, err)
			}
			return err
		}
	}

	if statsFlags.json {
		rows, err := requestRows(ctx, repo, runID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return report(ctx, cmd.OutOrStdout(), repo, runID)
}

func requestRows(ctx context.Context, repo *sqlite.Repository, runID string) ([]stats.Row, error) {
	timings, err := repo.RequestTimings(ctx, runID)
	if err != nil {
		return nil, err
	}
	rows := make([]stats.Row, 0, len(timings))
	for _, t := range timings {
		rows = append(rows, stats.Row{Name: t.Name, Failures: t.Failures, Stat: stats.Summarize(t.Elapsed)})
	}
	return rows, nil
}

// report prints the request table and job outcome counts of a run.
func report(ctx context.Context, w io.Writer, repo *sqlite.Repository, runID string) error {
	rows, err := requestRows(ctx, repo, runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "requests of run %s (ms)\n", runID)
	if err := stats.WriteTable(w, rows); err != nil {
		return err
	}

	counts, err := repo.JobCounts(ctx, runID)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return nil
	}

	fmt.Fprintln(w, "\njobs")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSTATUS\tCOUNT")
	for _, c := range counts {
		status := string(c.Status)
		if status == "" {
			status = "error"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Scenario, status, c.Count)
	}
	return tw.Flush()
}
