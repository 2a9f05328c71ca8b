package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/askgate/internal/routing"
	"github.com/ShayCichocki/askgate/internal/suite"
	"github.com/ShayCichocki/askgate/pkg/models"
)

var (
	routingSuiteDir  string
	routingSuiteGlob string
	routingSamples   string
	routingLimit     int
)

var routingCmd = &cobra.Command{
	Use:   "routing",
	Short: "Build and validate the routing sample set",
}

var routingBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Derive routing_samples.json from the suites",
	Long: `Concatenate the payloads of every suite, drop duplicates by
(expected_intent, normalized question), sort and write the routing sample
set atomically.

Example:
  askgate routing build --out data/ops/quality/routing_samples.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		suites, err := loadRoutingSuites()
		if err != nil {
			return err
		}
		set := routing.Build(suites)
		path := flagOr(routingSamples, cfg.Paths.RoutingSamples)
		if err := routing.WriteSampleSet(path, set); err != nil {
			return err
		}
		printOK(cmd.OutOrStdout(), fmt.Sprintf("wrote %s (%d payloads from %d suites)", path, len(set.Payloads), len(suites)))
		return nil
	},
}

var routingValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check routing_samples.json against the suites",
	Long: `Compare the (intent, normalized question) keys of the suites with the
routing sample set and list what is missing or extra on each side. Exits 1
on drift.

Example:
  askgate routing validate --limit 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		suites, err := loadRoutingSuites()
		if err != nil {
			return err
		}
		set, err := routing.LoadSampleSet(flagOr(routingSamples, cfg.Paths.RoutingSamples))
		if err != nil {
			return err
		}
		report := routing.ValidateDrift(suites, set)
		report.Render(cmd.OutOrStdout(), routingLimit)
		if !report.Clean() {
			return exitCode(1)
		}
		return nil
	},
}

func loadRoutingSuites() ([]*models.Suite, error) {
	return suite.LoadDir(flagOr(routingSuiteDir, cfg.Paths.SuiteDir), flagOr(routingSuiteGlob, cfg.Paths.SuiteGlob))
}

func init() {
	for _, c := range []*cobra.Command{routingBuildCmd, routingValidateCmd} {
		c.Flags().StringVar(&routingSuiteDir, "suite-dir", "", "Suite directory (default paths.suite_dir)")
		c.Flags().StringVar(&routingSuiteGlob, "suite-glob", "", "Suite file glob (default paths.suite_glob)")
		c.Flags().StringVar(&routingSamples, "samples", "", "Routing sample set path (default paths.routing_samples)")
	}
	routingValidateCmd.Flags().IntVar(&routingLimit, "limit", routing.DefaultDriftLimit, "Keys listed per side")

	routingCmd.AddCommand(routingBuildCmd)
	routingCmd.AddCommand(routingValidateCmd)
}
