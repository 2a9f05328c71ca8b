package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/askgate/internal/ask"
	"github.com/ShayCichocki/askgate/internal/config"
	"github.com/ShayCichocki/askgate/internal/history"
	"github.com/ShayCichocki/askgate/internal/shadow"
)

var (
	shadowBaseURL   string
	shadowOutDir    string
	shadowNoHistory bool

	shadowLogsDir string
	shadowJSON    bool
)

var shadowCmd = &cobra.Command{
	Use:   "shadow",
	Short: "Replay narrator shadow experiments and summarize their logs",
}

var shadowRunCmd = &cobra.Command{
	Use:   "run <experiment.yaml>",
	Short: "Replay every flow of an experiment against the Ask service",
	Long: `Replay a shadow experiment: every flow sends its questions in order
with one fixed identity so the service keeps conversational context. A
failed question is recorded, followed by the experiment's sleep_ms pause,
and the run continues.

Records go to <out-dir>/shadow_run_<utc>_<run8>.jsonl.

Experiment format:
  name: narrator-v2
  sleep_ms: 500
  timeout: 45s
  flows:
    - id: fiis-followup
      client_id: shadow-01
      conversation_id: conv-fiis-01
      nickname: shadow
      questions:
        - "quanto pagou o HGLG11 em maio?"
        - "e no mes anterior?"

Example:
  askgate shadow run data/ops/shadow/narrator.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		exp, err := shadow.LoadExperiment(args[0])
		if err != nil {
			return err
		}

		baseURL := flagOr(shadowBaseURL, cfg.Ask.BaseURL)
		client, err := ask.NewClient(ask.Options{
			BaseURL: baseURL,
			Token:   config.GetToken(cfg),
			Timeout: durationOr(exp.TimeoutDuration(), cfg.Ask.Timeout),
			Explain: cfg.Ask.Explain,
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		runID := uuid.NewString()
		started := time.Now()
		runLog, err := ask.CreateRunLog(flagOr(shadowOutDir, cfg.Paths.RunsDir), shadow.LogPrefix, runID, started, false)
		if err != nil {
			return err
		}
		defer runLog.Close()

		var store *history.DB
		if !shadowNoHistory {
			store, err = history.OpenAndMigrate(cfg.Paths.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.CreateRun(&history.Run{ID: runID, Kind: history.KindShadow, Label: exp.Name, BaseURL: baseURL, StartedAt: started}); err != nil {
				return err
			}
			defer abortRun(store, runID, &err)
		}

		logger.Info("shadow run started",
			zap.String("run_id", runID),
			zap.String("experiment", exp.Name),
			zap.Int("flows", len(exp.Flows)),
			zap.Int("questions", exp.Questions()),
		)

		runner := &shadow.Runner{Client: client, Sink: runLog, RunID: runID, Logger: logger}
		report, runErr := runner.Run(cmd.Context(), exp)

		if store != nil {
			ok := report.Questions - report.Failures
			if err := store.FinishRun(runID, time.Now(), report.Questions, ok, 0, 0, report.Failures); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		msg := fmt.Sprintf("%s: %d flows, %d questions, %d failures -> %s",
			exp.Name, report.Flows, report.Questions, report.Failures, runLog.JSONLPath())
		if report.Failures == 0 {
			printOK(out, msg)
		} else {
			printWarn(out, msg)
		}
		return runErr
	},
}

var shadowSummarizeCmd = &cobra.Command{
	Use:   "summarize [log.jsonl...]",
	Short: "Summarize narrator shadow logs",
	Long: `Aggregate narrator shadow logs by client and conversation, count
narrator strategies, classify errors (timeout, rate_limited, http_error,
other) and report latency statistics.

Without arguments the newest narrator_shadow_*.jsonl in the shadow logs
directory is used.

Examples:
  askgate shadow summarize
  askgate shadow summarize logs/narrator_shadow/narrator_shadow_2026-05-01.jsonl --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 {
			newest, err := shadow.NewestLog(flagOr(shadowLogsDir, cfg.Paths.ShadowLogsDir))
			if err != nil {
				return err
			}
			paths = []string{newest}
		}

		summary, err := shadow.Summarize(paths)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if shadowJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}
		summary.Render(out)
		return nil
	},
}

func init() {
	shadowRunCmd.Flags().StringVar(&shadowBaseURL, "base-url", "", "Ask service base URL (default ask.base_url)")
	shadowRunCmd.Flags().StringVar(&shadowOutDir, "out-dir", "", "Run log directory (default paths.runs_dir)")
	shadowRunCmd.Flags().BoolVar(&shadowNoHistory, "no-history", false, "Do not record the run in the history database")

	shadowSummarizeCmd.Flags().StringVar(&shadowLogsDir, "logs-dir", "", "Directory searched for the newest log (default paths.shadow_logs_dir)")
	shadowSummarizeCmd.Flags().BoolVar(&shadowJSON, "json", false, "Print the summary as JSON")

	shadowCmd.AddCommand(shadowRunCmd)
	shadowCmd.AddCommand(shadowSummarizeCmd)
}
