package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kr/pretty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/skorper/harmony/internal/config"
)

var rootFlags struct {
	configPath string
	logLevel   string
	baseURL    string
	dbPath     string
	insecure   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "harmony-load",
		Short:        "load test the Harmony coverages API",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&rootFlags.configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/harmony-load/config.toml)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&rootFlags.baseURL, "base-url", "", "Harmony root URL")
	pf.StringVar(&rootFlags.dbPath, "db", "", "results database (default $XDG_CACHE_HOME/harmony-load/results.db)")
	pf.BoolVarP(&rootFlags.insecure, "insecure", "k", false, "skip TLS verification")

	root.AddCommand(
		newRunCmd(),
		newScenariosCmd(),
		newWaitCmd(),
		newStatsCmd(),
		newStubCmd(),
	)
	return root
}

// loadConfig layers command-line flags over config.Load, sets up logging and
// validates the result. apply copies command specific flags.
func loadConfig(cmd *cobra.Command, apply ...func(*cobra.Command, *config.Config)) (*config.Config, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = rootFlags.logLevel
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = rootFlags.baseURL
	}
	if flags.Changed("db") {
		cfg.DBPath = rootFlags.dbPath
	}
	if flags.Changed("insecure") {
		cfg.Insecure = rootFlags.insecure
	}
	for _, fn := range apply {
		fn(cmd, cfg)
	}

	if err := setupLogging(cfg.LogLevel); err != nil {
		return nil, err
	}
	log.Debug().Msgf("config: %# v", pretty.Formatter(cfg))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	return nil
}
