package ask

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/askgate/internal/fileutil"
	"github.com/ShayCichocki/askgate/internal/logging"
	"github.com/ShayCichocki/askgate/pkg/models"
)

// RowSink receives probe rows as they are produced.
type RowSink interface {
	WriteRow(row models.ProbeRow) error
}

// Runner probes payloads strictly in input order, one request at a time.
type Runner struct {
	client   Asker
	identity Identity
	sink     RowSink
	logger   *zap.Logger
}

// NewRunner builds a Runner. sink may be nil.
func NewRunner(client Asker, identity Identity, sink RowSink, logger *zap.Logger) *Runner {
	return &Runner{client: client, identity: identity, sink: sink, logger: logging.OrNop(logger)}
}

// Run probes every payload. Transport and HTTP failures are recorded in the
// rows and do not stop the batch. Cancelling ctx stops between probes and
// returns the rows produced so far with ctx.Err().
func (r *Runner) Run(ctx context.Context, payloads []models.Payload) ([]models.ProbeRow, error) {
	rows := make([]models.ProbeRow, 0, len(payloads))
	for i, p := range payloads {
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		res := r.client.Ask(ctx, p.Question, r.identity)
		row := BuildRow(i, p, res)
		rows = append(rows, row)

		r.logger.Info("probe",
			zap.Int("idx", i),
			zap.String("status", string(row.SuiteStatus)),
			zap.Float64("latency_ms", row.LatencyMS),
		)

		if r.sink != nil {
			if err := r.sink.WriteRow(row); err != nil {
				return rows, fmt.Errorf("write probe row %d: %w", i, err)
			}
		}
	}
	return rows, nil
}

// BuildRow turns a request result into a run log row.
func BuildRow(idx int, p models.Payload, res Result) models.ProbeRow {
	d := ExtractDecision(res.Body)
	row := models.ProbeRow{
		Idx:            idx,
		Question:       p.Question,
		ExpectedIntent: optional(p.ExpectedIntent),
		ExpectedEntity: optional(p.ExpectedEntity),

		HTTPStatus:   res.HTTPStatus,
		RequestError: res.RequestError,
		StatusReason: d.StatusReason,

		ChosenIntent: d.Intent,
		ChosenEntity: d.Entity,
		PlannerScore: d.Score,

		GateAccepted:     d.GateAccepted,
		GateSource:       d.GateSource,
		GateReason:       d.GateReason,
		GateMinScore:     d.GateMinScore,
		GateMinGap:       d.GateMinGap,
		GateGap:          d.GateGap,
		GateScoreForGate: d.GateScoreForGate,

		IntentTop2GapBase:  d.IntentTop2GapBase,
		IntentTop2GapFinal: d.IntentTop2GapFinal,

		RowsTotal: d.RowsTotal,
		ResultKey: d.ResultKey,

		CacheHit:   d.CacheHit,
		CacheLayer: d.CacheLayer,
		CacheTTL:   d.CacheTTL,
		CacheKey:   d.CacheKey,

		RagUsed:    d.RagUsed,
		FusionUsed: d.FusionUsed,

		ElapsedMS: d.ElapsedMS,
		LatencyMS: roundMS(res.Latency),

		NarratorUsed:      d.NarratorUsed,
		NarratorLatencyMS: d.NarratorLatencyMS,
		NarratorError:     d.NarratorError,
	}
	row.SuiteStatus = Classify(res.HTTPStatus, res.RequestError, p, d.Route())
	return row
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// roundMS converts to milliseconds with microsecond precision.
func roundMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Summary counts rows per status.
type Summary struct {
	Total int
	Pass  int
	Fail  int
	Skip  int
	Error int
}

// Summarize tallies rows.
func Summarize(rows []models.ProbeRow) Summary {
	s := Summary{Total: len(rows)}
	for _, r := range rows {
		switch r.SuiteStatus {
		case models.StatusPass:
			s.Pass++
		case models.StatusFail:
			s.Fail++
		case models.StatusSkip:
			s.Skip++
		case models.StatusError:
			s.Error++
		}
	}
	return s
}

// Failed reports whether any row failed or errored.
func (s Summary) Failed() bool {
	return s.Fail > 0 || s.Error > 0
}

// ReadQuestions reads one question per line, skipping blanks and lines
// starting with '#'.
func ReadQuestions(path string) ([]models.Payload, error) {
	var payloads []models.Payload
	err := fileutil.EachLineInFile(path, func(_ int, line []byte) error {
		q := strings.TrimSpace(string(line))
		if strings.HasPrefix(q, "#") {
			return nil
		}
		payloads = append(payloads, models.Payload{Question: q})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payloads, nil
}
