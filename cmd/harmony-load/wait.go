package main

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skorper/harmony/internal/client"
	"github.com/skorper/harmony/internal/config"
	"github.com/skorper/harmony/internal/domain"
	"github.com/skorper/harmony/internal/waiter"
)

var pollFlags struct {
	interval    time.Duration
	timeout     time.Duration
	maxFailures int
}

func addPollFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.DurationVar(&pollFlags.interval, "poll-interval", 0, "time between job status polls (at least 1s)")
	f.DurationVar(&pollFlags.timeout, "poll-timeout", 0, "give up waiting for a job after this long")
	f.IntVar(&pollFlags.maxFailures, "max-failures", 0, "consecutive status failures tolerated")
}

func applyPollFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("poll-interval") {
		cfg.Poll.Interval = pollFlags.interval
	}
	if f.Changed("poll-timeout") {
		cfg.Poll.Timeout = pollFlags.timeout
	}
	if f.Changed("max-failures") {
		cfg.Poll.MaxFailures = pollFlags.maxFailures
	}
}

func newWaitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait <status-url>",
		Short: "wait for one job to finish",
		Long: `wait polls a job status URL until the job succeeds, fails or is canceled.
It exits non-zero unless the job succeeded.`,
		Args: cobra.ExactArgs(1),
		RunE: runWait,
	}
	addPollFlags(cmd)
	return cmd
}

func runWait(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, applyPollFlags)
	if err != nil {
		return err
	}

	c, err := client.New(cfg.BaseURL, client.Options{
		Timeout:   cfg.RequestTimeout,
		Transport: client.TransportOptions{Insecure: cfg.Insecure},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statusURL := args[0]
	sub := &domain.Submission{
		JobID:     jobIDFromURL(statusURL),
		StatusURL: statusURL,
		Status:    domain.StatusAccepted,
	}
	res, err := waiter.New(c, cfg.Poll.Waiter()).Wait(ctx, sub)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "job %s %s after %d polls in %s\n", res.JobID, res.Status, res.Polls, res.Elapsed.Round(time.Millisecond))
	if res.Message != "" {
		fmt.Fprintf(out, "  %s\n", res.Message)
	}
	for _, l := range res.Links {
		fmt.Fprintf(out, "  %s\n", l.Href)
	}
	if !res.Succeeded() {
		return fmt.Errorf("job %s ended %s", res.JobID, res.Status)
	}
	return nil
}

// jobIDFromURL takes the last path segment of a job status URL.
func jobIDFromURL(statusURL string) string {
	u, err := url.Parse(statusURL)
	if err != nil {
		return path.Base(statusURL)
	}
	return path.Base(u.Path)
}
