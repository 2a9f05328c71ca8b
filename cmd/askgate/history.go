package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/askgate/internal/history"
	"github.com/ShayCichocki/askgate/pkg/models"
)

var (
	historyStatus string
	historyLimit  int
	historyPurge  time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs or the rows of one run",
	Long: `Read the local run history.

Without arguments, lists the most recent runs. With a run id, lists the
stored rows of that run, optionally filtered by suite status.

Examples:
  askgate history
  askgate history 3f2a9c1e-... --status FAIL
  askgate history --purge-older-than 720h`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.OpenAndMigrate(cfg.Paths.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if historyPurge > 0 {
			n, err := store.PurgeOlderThan(historyPurge)
			if err != nil {
				return err
			}
			printOK(out, fmt.Sprintf("purged %d run(s) older than %s", n, historyPurge))
			return nil
		}

		if len(args) == 0 {
			runs, err := store.ListRuns(historyLimit)
			if err != nil {
				return err
			}
			renderRuns(out, runs)
			return nil
		}

		run, err := store.GetRun(args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found", args[0])
		}

		var status *models.SuiteStatus
		if historyStatus != "" {
			s := models.SuiteStatus(strings.ToUpper(historyStatus))
			if !s.Valid() {
				return fmt.Errorf("unknown status %q (want PASS, FAIL, SKIP or ERROR)", historyStatus)
			}
			status = &s
		}
		rows, err := store.ListRows(run.ID, status)
		if err != nil {
			return err
		}
		renderRun(out, run, rows)
		return nil
	},
}

func renderRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	t := newTable("run", "kind", "label", "started", "total", "pass", "fail", "skip", "error", "pass rate")
	for _, r := range runs {
		t.Row(
			shortID(r.ID),
			string(r.Kind),
			r.Label,
			humanize.Time(r.StartedAt),
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Pass),
			strconv.Itoa(r.Fail),
			strconv.Itoa(r.Skip),
			strconv.Itoa(r.Error),
			fmt.Sprintf("%.1f%%", r.PassRate()*100),
		)
	}
	fmt.Fprintln(w, t.Render())
}

func renderRun(w io.Writer, run *history.Run, rows []history.Row) {
	finished := "unfinished"
	if run.FinishedAt != nil {
		finished = "took " + run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
	}
	if run.Failure != nil {
		finished = "aborted: " + *run.Failure
	}
	fmt.Fprintf(w, "run %s (%s) %s against %s, %s\n", run.ID, run.Kind, humanize.Time(run.StartedAt), run.BaseURL, finished)
	fmt.Fprintf(w, "total %d  pass %d  fail %d  skip %d  error %d\n", run.Total, run.Pass, run.Fail, run.Skip, run.Error)
	if len(rows) == 0 {
		return
	}

	t := newTable("#", "status", "question", "chosen", "http", "latency")
	for _, r := range rows {
		chosen := orDash(r.ChosenIntent) + " / " + orDash(r.ChosenEntity)
		if r.RequestError != nil {
			chosen = *r.RequestError
		}
		httpStatus := "-"
		if r.HTTPStatus != nil {
			httpStatus = strconv.Itoa(*r.HTTPStatus)
		}
		t.Row(strconv.Itoa(r.Idx), colorStatus(r.SuiteStatus), truncate(r.Question, maxQuestionWidth),
			chosen, httpStatus, fmt.Sprintf("%.0fms", r.LatencyMS))
	}
	fmt.Fprintln(w, t.Render())
}

// abortRun records *errp as the failure of runID. Bare exit codes are
// gate verdicts, not failures.
func abortRun(store *history.DB, runID string, errp *error) {
	if store == nil || *errp == nil {
		return
	}
	var ee *exitError
	if errors.As(*errp, &ee) && ee.err == nil {
		return
	}
	if err := store.AbortRun(runID, time.Now(), (*errp).Error()); err != nil {
		logger.Warn("could not record aborted run", zap.String("run_id", runID), zap.Error(err))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Only rows with this suite status")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Runs listed")
	historyCmd.Flags().DurationVar(&historyPurge, "purge-older-than", 0, "Delete runs started more than this long ago")
}
