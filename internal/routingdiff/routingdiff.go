// Package routingdiff replays the routing sample file against the Ask
// service and records every routing miss for offline analysis.
package routingdiff

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/askgate/internal/ask"
	"github.com/ShayCichocki/askgate/internal/fileutil"
	"github.com/ShayCichocki/askgate/internal/logging"
	"github.com/ShayCichocki/askgate/pkg/models"
)

// ReasonRequestError marks misses caused by a transport failure other
// than a timeout.
const ReasonRequestError = "request_error"

// Report is the persisted miss list.
type Report struct {
	GeneratedAt string        `json:"generated_at"`
	Total       int           `json:"total"`
	Matched     int           `json:"matched"`
	Misses      []models.Miss `json:"misses"`
}

// Options configures Run.
type Options struct {
	Identity ask.Identity
	// Limit bounds the number of probes; zero means all payloads.
	Limit  int
	Now    func() time.Time
	Logger *zap.Logger
}

// Run probes every payload of set in order and collects misses. A payload
// matches when every expectation it declares equals the chosen route.
// Cancelling ctx returns the partial report with ctx.Err().
func Run(ctx context.Context, client ask.Asker, set *models.RoutingSampleSet, opts Options) (*Report, error) {
	log := logging.OrNop(opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	payloads := set.Payloads
	if opts.Limit > 0 && opts.Limit < len(payloads) {
		payloads = payloads[:opts.Limit]
	}

	report := &Report{Misses: []models.Miss{}}
	var runErr error
	for i, p := range payloads {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		res := client.Ask(ctx, p.Question, opts.Identity)
		report.Total++

		miss, ok := Compare(p, res)
		if ok {
			report.Matched++
			continue
		}
		log.Debug("routing miss",
			zap.Int("idx", i),
			zap.String("reason", miss.Status.Reason),
			zap.Stringp("got_entity", miss.Got.Entity),
		)
		report.Misses = append(report.Misses, miss)
	}

	report.GeneratedAt = now().UTC().Format(time.RFC3339)
	log.Info("routing diff finished",
		zap.Int("total", report.Total),
		zap.Int("matched", report.Matched),
		zap.Int("misses", len(report.Misses)),
	)
	return report, runErr
}

// Compare returns the miss for one probe, or ok=true when it matched.
func Compare(p models.Payload, res ask.Result) (models.Miss, bool) {
	d := ask.ExtractDecision(res.Body)
	got := d.Route()
	if res.OK() && ask.RouteMatches(p, got) {
		return models.Miss{}, true
	}

	miss := models.Miss{
		Question:   p.Question,
		Expected:   models.Route{Intent: optional(p.ExpectedIntent), Entity: optional(p.ExpectedEntity)},
		Got:        got,
		Score:      d.Score,
		HTTPStatus: res.HTTPStatus,
		Status:     missStatus(res, d),
		Explain:    ask.ExtractExplain(res.Body),
	}
	return miss, false
}

func missStatus(res ask.Result, d ask.Decision) models.MissStatus {
	switch {
	case res.RequestError != nil && *res.RequestError == ask.ErrReadTimeout:
		return models.MissStatus{Reason: ask.ErrReadTimeout}
	case res.RequestError != nil:
		return models.MissStatus{Reason: ReasonRequestError, Message: *res.RequestError}
	case res.HTTPStatus == nil:
		return models.MissStatus{Reason: ReasonRequestError}
	case *res.HTTPStatus < 200 || *res.HTTPStatus >= 300:
		return models.MissStatus{Reason: "http_" + strconv.Itoa(*res.HTTPStatus), Message: deref(d.StatusMessage)}
	}
	reason := models.ReasonOK
	if d.StatusReason != nil {
		reason = *d.StatusReason
	}
	return models.MissStatus{Reason: reason, Message: deref(d.StatusMessage)}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Write persists the report atomically.
func Write(path string, report *Report) error {
	if err := fileutil.WriteJSON(path, report); err != nil {
		return fmt.Errorf("write routing misses: %w", err)
	}
	return nil
}
