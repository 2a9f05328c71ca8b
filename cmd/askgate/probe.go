package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/askgate/internal/ask"
	"github.com/ShayCichocki/askgate/internal/config"
	"github.com/ShayCichocki/askgate/internal/history"
	"github.com/ShayCichocki/askgate/internal/suite"
	"github.com/ShayCichocki/askgate/pkg/models"
)

// ProbeLogPrefix names probe run logs: probe_<utc>_<run8>.jsonl.
const ProbeLogPrefix = "probe"

var (
	probeQuestions     []string
	probeQuestionsFile string
	probeSuitePath     string
	probeSuiteDir      string
	probeSuiteGlob     string

	probeBaseURL        string
	probeConversationID string
	probeClientID       string
	probeNickname       string
	probeTypeUser       string
	probeTimeout        time.Duration
	probeTimeoutS       float64
	probeRoutingOnly    bool
	probeNoExplain      bool

	probeOutDir     string
	probeNoCSV      bool
	probeNoHistory  bool
	probeFailOnMiss bool
	probeLabel      string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Send questions to the Ask service and grade the routing",
	Long: `Send every question to POST <base>/ask, one request at a time and in
input order, and grade each answer against the suite expectations:

  PASS   both expectations present and matched
  FAIL   the service answered but the routing differs
  SKIP   the payload carries no expectation
  ERROR  transport failure or non-2xx response

Failures never stop the batch. Rows are streamed to
<out-dir>/probe_<utc>_<run8>.jsonl and .csv (skip the CSV with --no-csv)
and the run is recorded in the history database unless --no-history is set.

Question sources (combinable, in this order):
  --question           repeatable, no expectations
  --questions-file     one question per line, '#' comments
  --suite-path         one suite file (JSON, or YAML by extension)
  --suite-dir          every suite in a directory (with --suite-glob)

Examples:
  askgate probe --question "qual o dividend yield do HGLG11?"
  askgate probe --suite-path data/ops/quality/payloads/fiis_suite.json --timeout-s 45
  askgate probe --suite-dir data/ops/quality/payloads --fail-on-miss`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, args []string) (err error) {
	payloads, err := probePayloads()
	if err != nil {
		return err
	}

	baseURL := flagOr(probeBaseURL, cfg.Ask.BaseURL)
	client, err := ask.NewClient(ask.Options{
		BaseURL:     baseURL,
		Token:       config.GetToken(cfg),
		Timeout:     durationOr(probeRequestTimeout(), cfg.Ask.Timeout),
		Explain:     cfg.Ask.Explain && !probeNoExplain,
		RoutingOnly: cfg.Ask.RoutingOnly || probeRoutingOnly,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	started := time.Now()
	runLog, err := ask.CreateRunLog(flagOr(probeOutDir, cfg.Paths.RunsDir), ProbeLogPrefix, runID, started, !probeNoCSV)
	if err != nil {
		return err
	}
	defer runLog.Close()

	var store *history.DB
	if !probeNoHistory {
		store, err = history.OpenAndMigrate(cfg.Paths.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.CreateRun(&history.Run{
			ID:        runID,
			Kind:      history.KindProbe,
			Label:     probeLabel,
			BaseURL:   baseURL,
			StartedAt: started,
		}); err != nil {
			return err
		}
		defer abortRun(store, runID, &err)
	}

	logger.Info("probe run started",
		zap.String("run_id", runID),
		zap.String("endpoint", client.Endpoint()),
		zap.Int("payloads", len(payloads)),
	)

	runner := ask.NewRunner(client, probeIdentity(), runLog, logger)
	rows, runErr := runner.Run(cmd.Context(), payloads)
	summary := ask.Summarize(rows)

	if store != nil {
		if err := store.InsertRows(runID, rows); err != nil {
			return err
		}
		if err := store.FinishRun(runID, time.Now(), summary.Total, summary.Pass, summary.Fail, summary.Skip, summary.Error); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	renderProbeRows(out, rows)
	renderProbeSummary(out, summary)
	fmt.Fprintf(out, "run %s\n  %s\n", runID, runLog.JSONLPath())
	if p := runLog.CSVPath(); p != "" {
		fmt.Fprintf(out, "  %s\n", p)
	}

	if runErr != nil {
		return fmt.Errorf("probe run interrupted after %d of %d payloads: %w", len(rows), len(payloads), runErr)
	}
	if probeFailOnMiss && summary.Failed() {
		return exitCode(1)
	}
	return nil
}

// probePayloads gathers payloads from every question source in flag order.
func probePayloads() ([]models.Payload, error) {
	var payloads []models.Payload
	for _, q := range probeQuestions {
		payloads = append(payloads, models.Payload{Question: q})
	}
	if probeQuestionsFile != "" {
		qs, err := ask.ReadQuestions(probeQuestionsFile)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, qs...)
	}
	if probeSuitePath != "" {
		s, err := suite.LoadSuiteLenient(probeSuitePath)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, s.Payloads...)
	}
	if probeSuiteDir != "" {
		suites, err := suite.LoadDir(probeSuiteDir, flagOr(probeSuiteGlob, cfg.Paths.SuiteGlob))
		if err != nil {
			return nil, err
		}
		for _, s := range suites {
			payloads = append(payloads, s.Payloads...)
		}
	}
	if len(payloads) == 0 {
		return nil, errors.New("no questions: use --question, --questions-file, --suite-path or --suite-dir")
	}
	return payloads, nil
}

func probeIdentity() ask.Identity {
	return ask.Identity{
		ConversationID: flagOr(probeConversationID, cfg.Ask.ConversationID),
		ClientID:       flagOr(probeClientID, cfg.Ask.ClientID),
		Nickname:       flagOr(probeNickname, cfg.Ask.Nickname),
		TypeUser:       flagOr(probeTypeUser, cfg.Ask.TypeUser),
	}
}

// probeRequestTimeout prefers --timeout-s over --timeout.
func probeRequestTimeout() time.Duration {
	if probeTimeoutS > 0 {
		return time.Duration(probeTimeoutS * float64(time.Second))
	}
	return probeTimeout
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

const maxQuestionWidth = 60

func renderProbeRows(w io.Writer, rows []models.ProbeRow) {
	if len(rows) == 0 {
		return
	}
	t := newTable("#", "status", "question", "expected", "chosen", "latency")
	for _, r := range rows {
		t.Row(
			strconv.Itoa(r.Idx),
			colorStatus(r.SuiteStatus),
			truncate(r.Question, maxQuestionWidth),
			orDash(r.ExpectedIntent)+" / "+orDash(r.ExpectedEntity),
			routeCell(r),
			fmt.Sprintf("%.0fms", r.LatencyMS),
		)
	}
	fmt.Fprintln(w, t.Render())
}

// routeCell shows the chosen route, or the failure for ERROR rows.
func routeCell(r models.ProbeRow) string {
	if r.RequestError != nil {
		return *r.RequestError
	}
	if r.SuiteStatus == models.StatusError && r.HTTPStatus != nil {
		return "http_" + strconv.Itoa(*r.HTTPStatus)
	}
	return orDash(r.ChosenIntent) + " / " + orDash(r.ChosenEntity)
}

func renderProbeSummary(w io.Writer, s ask.Summary) {
	t := newTable("total", colorStatus(models.StatusPass), colorStatus(models.StatusFail),
		colorStatus(models.StatusSkip), colorStatus(models.StatusError))
	t.Row(strconv.Itoa(s.Total), strconv.Itoa(s.Pass), strconv.Itoa(s.Fail), strconv.Itoa(s.Skip), strconv.Itoa(s.Error))
	fmt.Fprintln(w, t.Render())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	f := probeCmd.Flags()
	f.StringArrayVarP(&probeQuestions, "question", "q", nil, "Question to send (repeatable)")
	f.StringVar(&probeQuestionsFile, "questions-file", "", "File with one question per line")
	f.StringVar(&probeSuitePath, "suite-path", "", "Suite file (JSON or YAML)")
	f.StringVar(&probeSuiteDir, "suite-dir", "", "Directory of *_suite.json files")
	f.StringVar(&probeSuiteGlob, "suite-glob", "", "Suite file glob (default paths.suite_glob)")

	f.StringVar(&probeBaseURL, "base-url", "", "Ask service base URL (default ask.base_url)")
	f.StringVar(&probeConversationID, "conversation-id", "", "Conversation id (default ask.conversation_id)")
	f.StringVar(&probeClientID, "client-id", "", "Client id (default ask.client_id)")
	f.StringVar(&probeNickname, "nickname", "", "Nickname (default ask.nickname)")
	f.StringVar(&probeTypeUser, "type-user", "", "type_user sent with every question")
	f.DurationVar(&probeTimeout, "timeout", 0, "Per-request timeout (default ask.timeout)")
	f.Float64Var(&probeTimeoutS, "timeout-s", 0, "Per-request timeout in seconds")
	f.BoolVar(&probeRoutingOnly, "routing-only", false, "Send the routing-only header")
	f.BoolVar(&probeNoExplain, "no-explain", false, "Do not request planner explain data")

	f.StringVar(&probeOutDir, "out-dir", "", "Run log directory (default paths.runs_dir)")
	f.BoolVar(&probeNoCSV, "no-csv", false, "Do not write the CSV run log")
	f.BoolVar(&probeNoHistory, "no-history", false, "Do not record the run in the history database")
	f.BoolVar(&probeFailOnMiss, "fail-on-miss", false, "Exit 1 when any row is FAIL or ERROR")
	f.StringVar(&probeLabel, "label", "", "Free-form label stored with the run")
	probeCmd.MarkFlagsMutuallyExclusive("timeout", "timeout-s")
}
