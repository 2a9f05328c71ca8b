package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/askgate/internal/obsaudit"
	"github.com/ShayCichocki/askgate/internal/observability"
)

var (
	obsConfig        string
	obsDashboardsDir string
	obsRulesDir      string
	obsEngine        string
	obsTemplatesDir  string
	obsWatch         bool
)

var obsCmd = &cobra.Command{
	Use:   "obs",
	Short: "Generate and audit Grafana dashboards and Prometheus rules",
}

var obsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Render every dashboard and rule file from the observability config",
	Long: `Render the four Grafana dashboards and the two Prometheus rule files
from the observability config. Each rendering is validated (JSON for
dashboards, YAML for rules) before anything is written.

Engines:
  template   Go text/template with missingkey=error (default)
  minimal    {{ expr }} substitution of dotted paths, string literals and
             promql_filter calls

With --watch the artefacts are regenerated whenever the config changes,
until interrupted.

Examples:
  askgate obs generate
  askgate obs generate --engine minimal
  askgate obs generate --watch`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := observability.ParseEngine(obsEngine)
		if err != nil {
			return err
		}
		opts := observability.GenerateOptions{
			ConfigPath:    flagOr(obsConfig, cfg.Paths.ObservabilityConfig),
			DashboardsDir: flagOr(obsDashboardsDir, cfg.Paths.DashboardsDir),
			RulesDir:      flagOr(obsRulesDir, cfg.Paths.RulesDir),
			TemplatesDir:  obsTemplatesDir,
			Engine:        engine,
			Logger:        logger,
		}

		out := cmd.OutOrStdout()
		if obsWatch {
			return observability.Watch(cmd.Context(), opts, func(artefacts []observability.Artefact, err error) {
				if err != nil {
					printFail(out, err.Error())
					return
				}
				printArtefacts(out, artefacts)
			})
		}

		artefacts, err := observability.Generate(opts)
		if err != nil {
			return err
		}
		printArtefacts(out, artefacts)
		return nil
	},
}

func printArtefacts(w io.Writer, artefacts []observability.Artefact) {
	for _, a := range artefacts {
		printOK(w, fmt.Sprintf("%s (%s)", a.Path, a.Target.Kind))
	}
}

var obsAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check the generated artefacts against the observability config",
	Long: `Audit the generated dashboards and rule files:

  missing      the config and every artefact exist
  stale        no artefact is older than the config
  placeholder  no placeholder or unrendered template token remains
  parse        dashboards are JSON, rule files are YAML
  binding      every bound metric name appears in some artefact
  threshold    every threshold appears by key or by value
  rule_ref     alerts only read defined recording rules, and every
               configured alert is defined

Exits 1 on any finding.

Example:
  askgate obs generate && askgate obs audit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report := obsaudit.Audit(obsaudit.Options{
			ConfigPath:    flagOr(obsConfig, cfg.Paths.ObservabilityConfig),
			DashboardsDir: flagOr(obsDashboardsDir, cfg.Paths.DashboardsDir),
			RulesDir:      flagOr(obsRulesDir, cfg.Paths.RulesDir),
			Logger:        logger,
		})
		report.Render(cmd.OutOrStdout())
		if !report.OK() {
			return exitCode(1)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{obsGenerateCmd, obsAuditCmd} {
		c.Flags().StringVar(&obsConfig, "obs-config", "", "Observability config (default paths.observability_config)")
		c.Flags().StringVar(&obsDashboardsDir, "dashboards-dir", "", "Dashboard output directory (default paths.dashboards_dir)")
		c.Flags().StringVar(&obsRulesDir, "rules-dir", "", "Rule output directory (default paths.rules_dir)")
	}
	obsGenerateCmd.Flags().StringVar(&obsEngine, "engine", string(observability.EngineTemplate), "Template engine: template or minimal")
	obsGenerateCmd.Flags().StringVar(&obsTemplatesDir, "templates-dir", "", "Replace the embedded templates")
	obsGenerateCmd.Flags().BoolVar(&obsWatch, "watch", false, "Regenerate whenever the config changes")

	obsCmd.AddCommand(obsGenerateCmd)
	obsCmd.AddCommand(obsAuditCmd)
}
