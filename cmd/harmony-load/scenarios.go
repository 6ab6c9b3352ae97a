package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skorper/harmony/internal/config"
	"github.com/skorper/harmony/internal/scenario"
)

var scenarioFlags struct {
	tags          []string
	excludeTags   []string
	scenariosFile string
}

func addScenarioFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVarP(&scenarioFlags.tags, "tags", "T", nil, "only run scenarios with one of these tags")
	f.StringSliceVarP(&scenarioFlags.excludeTags, "exclude-tags", "E", nil, "skip scenarios with one of these tags")
	f.StringVar(&scenarioFlags.scenariosFile, "scenarios-file", "", "YAML file re-weighting, re-tagging or disabling scenarios")
}

func applyScenarioFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("tags") {
		cfg.Tags = scenarioFlags.tags
	}
	if f.Changed("exclude-tags") {
		cfg.ExcludeTags = scenarioFlags.excludeTags
	}
	if f.Changed("scenarios-file") {
		cfg.ScenariosFile = scenarioFlags.scenariosFile
	}
}

// effectiveScenarios applies the overrides file and tag filters to the
// built-in table.
func effectiveScenarios(cfg *config.Config) ([]scenario.Scenario, error) {
	table := scenario.Defaults()
	if cfg.ScenariosFile != "" {
		o, err := scenario.LoadOverrides(cfg.ScenariosFile)
		if err != nil {
			return nil, err
		}
		if table, err = o.Apply(table); err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.ScenariosFile, err)
		}
	}
	return scenario.Filter(table, cfg.Tags, cfg.ExcludeTags), nil
}

func newScenariosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "list the scenarios a run would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, applyScenarioFlags)
			if err != nil {
				return err
			}
			table, err := effectiveScenarios(cfg)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tWEIGHT\tMODE\tTAGS")
			total := 0
			for _, s := range table {
				mode := "sync"
				if s.Async {
					mode = "async"
				}
				total += s.Weight
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Name, s.Weight, mode, strings.Join(s.Tags, ","))
			}
			fmt.Fprintf(tw, "%d scenarios\t%d\t\t\n", len(table), total)
			return tw.Flush()
		},
	}
	addScenarioFlags(cmd)
	return cmd
}
