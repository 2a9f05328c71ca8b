package routingdiff

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ShayCichocki/askgate/internal/ask"
	"github.com/ShayCichocki/askgate/internal/fileutil"
	"github.com/ShayCichocki/askgate/pkg/models"
)

// fakeAsker answers from a table keyed by question.
type fakeAsker struct {
	answers map[string]ask.Result
	asked   []string
}

func (f *fakeAsker) Ask(_ context.Context, question string, _ ask.Identity) ask.Result {
	f.asked = append(f.asked, question)
	return f.answers[question]
}

func ok(body map[string]any) ask.Result {
	status := 200
	return ask.Result{HTTPStatus: &status, Body: body}
}

func routed(intent, entity string) map[string]any {
	return map[string]any{
		"status": map[string]any{"reason": "ok"},
		"meta": map[string]any{
			"planner": map[string]any{
				"chosen": map[string]any{"intent": intent, "entity": entity, "score": 0.4},
				"explain": map[string]any{
					"normalized":         "norm",
					"tokens":             []any{"a", "b"},
					"intent_scores":      map[string]any{intent: 0.4},
					"thresholds_applied": map[string]any{"min_score": 0.5},
				},
			},
		},
	}
}

func TestRun_CollectsMisses(t *testing.T) {
	timeout := ask.ErrReadTimeout
	status502 := 502
	fake := &fakeAsker{answers: map[string]ask.Result{
		"match":    ok(routed("cadastro", "fiis_cadastro")),
		"wrong":    ok(routed("cadastro", "acoes_cadastro")),
		"intent":   ok(routed("cadastro", "anything")),
		"timeout":  {RequestError: &timeout},
		"bad_gate": {HTTPStatus: &status502, Body: map[string]any{"status": map[string]any{"message": "upstream"}}},
	}}
	set := &models.RoutingSampleSet{Type: "routing", Payloads: []models.Payload{
		{Question: "match", ExpectedIntent: "cadastro", ExpectedEntity: "fiis_cadastro"},
		{Question: "wrong", ExpectedIntent: "cadastro", ExpectedEntity: "fiis_cadastro"},
		{Question: "intent", ExpectedIntent: "cadastro"},
		{Question: "timeout", ExpectedIntent: "cadastro"},
		{Question: "bad_gate", ExpectedIntent: "cadastro"},
	}}

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	report, err := Run(context.Background(), fake, set, Options{Now: func() time.Time { return fixed }})
	require.NoError(t, err)

	assert.Equal(t, []string{"match", "wrong", "intent", "timeout", "bad_gate"}, fake.asked)
	assert.Equal(t, "2026-01-02T03:04:05Z", report.GeneratedAt)
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 2, report.Matched)
	require.Len(t, report.Misses, 3)

	wrong := report.Misses[0]
	assert.Equal(t, "wrong", wrong.Question)
	assert.Equal(t, "acoes_cadastro", *wrong.Got.Entity)
	assert.Equal(t, "fiis_cadastro", *wrong.Expected.Entity)
	assert.Equal(t, models.ReasonOK, wrong.Status.Reason)
	assert.InDelta(t, 0.4, *wrong.Score, 1e-9)
	require.NotNil(t, wrong.Explain)
	assert.Equal(t, "norm", wrong.Explain.Normalized)
	assert.Equal(t, map[string]any{"min_score": 0.5}, wrong.Explain.ThresholdsApplied)

	assert.Equal(t, ask.ErrReadTimeout, report.Misses[1].Status.Reason)
	assert.Nil(t, report.Misses[1].Expected.Entity)

	assert.Equal(t, "http_502", report.Misses[2].Status.Reason)
	assert.Equal(t, "upstream", report.Misses[2].Status.Message)
}

func TestRun_Limit(t *testing.T) {
	fake := &fakeAsker{answers: map[string]ask.Result{}}
	set := &models.RoutingSampleSet{Payloads: []models.Payload{{Question: "a"}, {Question: "b"}, {Question: "c"}}}

	report, err := Run(context.Background(), fake, set, Options{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Len(t, fake.asked, 2)
}

func TestRun_StringStatusReason(t *testing.T) {
	fake := &fakeAsker{answers: map[string]ask.Result{
		"q": ok(map[string]any{"status": "no_data", "meta": map[string]any{"intent": "x"}}),
	}}
	set := &models.RoutingSampleSet{Payloads: []models.Payload{{Question: "q", ExpectedIntent: "y"}}}

	report, err := Run(context.Background(), fake, set, Options{})
	require.NoError(t, err)
	require.Len(t, report.Misses, 1)
	assert.Equal(t, "no_data", report.Misses[0].Status.Reason)
	assert.True(t, report.Misses[0].Technical())
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "misses.json")
	report := &Report{GeneratedAt: "2026-01-01T00:00:00Z", Total: 1, Misses: []models.Miss{}}
	require.NoError(t, Write(path, report))

	var back map[string]any
	require.NoError(t, fileutil.ReadJSON(path, &back))
	assert.Equal(t, []any{}, back["misses"])
	assert.EqualValues(t, 1, back["total"])
}

func TestRun_LogsMissesAndTotals(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fake := &fakeAsker{answers: map[string]ask.Result{
		"match": ok(routed("cadastro", "fiis_cadastro")),
		"wrong": ok(routed("cadastro", "acoes_cadastro")),
	}}
	set := &models.RoutingSampleSet{Type: "routing", Payloads: []models.Payload{
		{Question: "match", ExpectedEntity: "fiis_cadastro"},
		{Question: "wrong", ExpectedEntity: "fiis_cadastro"},
	}}

	_, err := Run(context.Background(), fake, set, Options{Logger: zap.New(core)})
	require.NoError(t, err)

	misses := logs.FilterMessage("routing miss").All()
	require.Len(t, misses, 1)
	assert.Equal(t, int64(1), misses[0].ContextMap()["idx"])

	done := logs.FilterMessage("routing diff finished").All()
	require.Len(t, done, 1)
	assert.Equal(t, zapcore.InfoLevel, done[0].Level)
	assert.Equal(t, map[string]any{"total": int64(2), "matched": int64(1), "misses": int64(1)}, done[0].ContextMap())
}
