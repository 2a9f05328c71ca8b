package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/askgate/internal/ask"
	"github.com/ShayCichocki/askgate/internal/config"
	"github.com/ShayCichocki/askgate/internal/history"
	"github.com/ShayCichocki/askgate/internal/routing"
	"github.com/ShayCichocki/askgate/internal/routingdiff"
)

var (
	diffSamples     string
	diffOut         string
	diffLimit       int
	diffBaseURL     string
	diffRoutingOnly bool
	diffNoHistory   bool
)

var routingDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Probe every routing sample and record the misses",
	Long: `Send every payload of the routing sample set to the Ask service with
explain=true and keep the probes whose chosen route disagrees with a present
expectation. Transport and HTTP failures are misses too, with the failure
as their status reason.

The report {generated_at, total, matched, misses} is written atomically and
is the input of askgate clusters.

Examples:
  askgate routing diff
  askgate routing diff --limit 50 --routing-only`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		set, err := routing.LoadSampleSet(flagOr(diffSamples, cfg.Paths.RoutingSamples))
		if err != nil {
			return err
		}

		baseURL := flagOr(diffBaseURL, cfg.Ask.BaseURL)
		client, err := ask.NewClient(ask.Options{
			BaseURL:     baseURL,
			Token:       config.GetToken(cfg),
			Timeout:     cfg.Ask.Timeout,
			Explain:     true,
			RoutingOnly: cfg.Ask.RoutingOnly || diffRoutingOnly,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		runID := uuid.NewString()
		started := time.Now()
		var store *history.DB
		if !diffNoHistory {
			store, err = history.OpenAndMigrate(cfg.Paths.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.CreateRun(&history.Run{ID: runID, Kind: history.KindRoutingDiff, BaseURL: baseURL, StartedAt: started}); err != nil {
				return err
			}
			defer abortRun(store, runID, &err)
		}

		report, runErr := routingdiff.Run(cmd.Context(), client, set, routingdiff.Options{
			Identity: probeIdentity(),
			Limit:    diffLimit,
			Logger:   logger,
		})

		path := flagOr(diffOut, cfg.Paths.Misses)
		if err := routingdiff.Write(path, report); err != nil {
			return err
		}

		if store != nil {
			technical := 0
			for _, m := range report.Misses {
				if m.Technical() {
					technical++
				}
			}
			routingMisses := len(report.Misses) - technical
			if err := store.FinishRun(runID, time.Now(), report.Total, report.Matched, routingMisses, 0, technical); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		msg := fmt.Sprintf("%d/%d matched, %d misses -> %s", report.Matched, report.Total, len(report.Misses), path)
		if len(report.Misses) == 0 {
			printOK(out, msg)
		} else {
			printWarn(out, msg)
		}
		return runErr
	},
}

func init() {
	f := routingDiffCmd.Flags()
	f.StringVar(&diffSamples, "samples", "", "Routing sample set path (default paths.routing_samples)")
	f.StringVar(&diffOut, "out", "", "Miss report path (default paths.misses)")
	f.IntVar(&diffLimit, "limit", 0, "Probe at most N payloads (0 = all)")
	f.StringVar(&diffBaseURL, "base-url", "", "Ask service base URL (default ask.base_url)")
	f.BoolVar(&diffRoutingOnly, "routing-only", false, "Send the routing-only header")
	f.BoolVar(&diffNoHistory, "no-history", false, "Do not record the run in the history database")

	routingCmd.AddCommand(routingDiffCmd)
}
