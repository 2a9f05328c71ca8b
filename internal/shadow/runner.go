package shadow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/askgate/internal/ask"
	"github.com/ShayCichocki/askgate/internal/logging"
)

// LogPrefix is the file name prefix of runner output.
const LogPrefix = "shadow_run"

// Request is the identity and question of one record.
type Request struct {
	FlowID         string `json:"flow_id"`
	ClientID       string `json:"client_id"`
	ConversationID string `json:"conversation_id"`
	Nickname       string `json:"nickname"`
	Question       string `json:"question"`
}

// Narrator is the narrator section read back from the response.
type Narrator struct {
	Used      *bool    `json:"used"`
	Strategy  *string  `json:"strategy"`
	LatencyMS *float64 `json:"latency_ms"`
	Error     *string  `json:"error"`
}

// Record is one line of a shadow run log.
type Record struct {
	RunID      string    `json:"run_id"`
	Experiment string    `json:"experiment"`
	Turn       int       `json:"turn"`
	TS         time.Time `json:"ts"`
	Request    Request   `json:"request"`
	HTTPStatus *int      `json:"http_status"`
	Error      *string   `json:"error"`
	LatencyMS  float64   `json:"latency_ms"`
	Intent     *string   `json:"intent"`
	Entity     *string   `json:"entity"`
	Narrator   Narrator  `json:"narrator"`
}

// RecordSink receives records as they are produced.
type RecordSink interface {
	WriteRecord(v any) error
}

// RunReport totals one experiment run.
type RunReport struct {
	RunID     string
	Flows     int
	Questions int
	Failures  int
}

// Runner sends every flow of an experiment in order.
type Runner struct {
	Client ask.Asker
	Sink   RecordSink
	RunID  string
	Logger *zap.Logger
	// Sleep pauses after a failure; nil uses time.Sleep bounded by ctx.
	Sleep func(ctx context.Context, d time.Duration)
	// Now stamps records; nil uses time.Now.
	Now func() time.Time
}

// Run replays exp. Failed questions are recorded and followed by the
// experiment's sleep; they never stop the run. Cancelling ctx stops
// between questions.
func (r *Runner) Run(ctx context.Context, exp *Experiment) (*RunReport, error) {
	logger := logging.OrNop(r.Logger)
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}

	report := &RunReport{RunID: r.RunID, Flows: len(exp.Flows)}
	for _, flow := range exp.Flows {
		id := flow.Identity()
		for turn, q := range flow.Questions {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			res := r.Client.Ask(ctx, q, id)
			rec := buildRecord(r.RunID, exp.Name, flow, turn, q, res, now())
			report.Questions++

			fields := []zap.Field{
				zap.String("flow", flow.ID),
				zap.Int("turn", turn),
				zap.Float64("latency_ms", rec.LatencyMS),
			}
			if rec.Error != nil {
				fields = append(fields, zap.String("error", *rec.Error))
			}
			logger.Info("shadow question", fields...)

			if r.Sink != nil {
				if err := r.Sink.WriteRecord(rec); err != nil {
					return report, fmt.Errorf("write shadow record: %w", err)
				}
			}
			if rec.Error != nil {
				report.Failures++
				sleep(ctx, exp.Sleep())
			}
		}
	}
	return report, nil
}

func buildRecord(runID, experiment string, flow Flow, turn int, q string, res ask.Result, ts time.Time) Record {
	d := ask.ExtractDecision(res.Body)
	rec := Record{
		RunID:      runID,
		Experiment: experiment,
		Turn:       turn,
		TS:         ts.UTC(),
		Request: Request{
			FlowID:         flow.ID,
			ClientID:       flow.ClientID,
			ConversationID: flow.ConversationID,
			Nickname:       flow.Nickname,
			Question:       q,
		},
		HTTPStatus: res.HTTPStatus,
		Error:      res.RequestError,
		LatencyMS:  float64(res.Latency.Microseconds()) / 1000,
		Intent:     d.Intent,
		Entity:     d.Entity,
		Narrator: Narrator{
			Used:      d.NarratorUsed,
			Strategy:  d.NarratorStrategy,
			LatencyMS: d.NarratorLatencyMS,
			Error:     d.NarratorError,
		},
	}
	if rec.Error == nil && !res.OK() && res.HTTPStatus != nil {
		msg := fmt.Sprintf("http_%d", *res.HTTPStatus)
		rec.Error = &msg
	}
	return rec
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
