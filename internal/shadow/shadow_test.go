package shadow

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/askgate/internal/ask"
)

const experimentYAML = `
name: narrator-ab
sleep_ms: 250
timeout: 45s
flows:
  - id: fii-followup
    client_id: c1
    conversation_id: conv-1
    nickname: shadow
    questions:
      - "  qual o dividend yield do HGLG11?  "
      - e do KNRI11?
  - id: acoes
    client_id: c2
    conversation_id: conv-2
    nickname: shadow
    questions: [preco da PETR4]
`

func TestParseExperiment(t *testing.T) {
	exp, err := ParseExperiment("exp.yaml", []byte(experimentYAML))
	require.NoError(t, err)
	assert.Equal(t, "narrator-ab", exp.Name)
	assert.Equal(t, 250*time.Millisecond, exp.Sleep())
	assert.Equal(t, 45*time.Second, exp.TimeoutDuration())
	assert.Equal(t, 3, exp.Questions())
	assert.Equal(t, "qual o dividend yield do HGLG11?", exp.Flows[0].Questions[0])
	assert.Equal(t, ask.Identity{ConversationID: "conv-1", ClientID: "c1", Nickname: "shadow"}, exp.Flows[0].Identity())
}

func TestParseExperiment_Defaults(t *testing.T) {
	exp, err := ParseExperiment("exp.yaml", []byte("flows:\n  - id: a\n    questions: [q]\n"))
	require.NoError(t, err)
	assert.Equal(t, "shadow", exp.Name)
	assert.Equal(t, DefaultSleep, exp.Sleep())
	assert.Zero(t, exp.TimeoutDuration())
}

func TestParseExperiment_Invalid(t *testing.T) {
	src := `
sleep_ms: -1
timeout: soon
flows:
  - questions: [q]
  - id: a
    questions: ["  "]
  - id: a
    questions: [q]
`
	_, err := ParseExperiment("exp.yaml", []byte(src))
	require.Error(t, err)
	for _, want := range []string{
		"sleep_ms must not be negative",
		`timeout "soon"`,
		"flows[0]: id is required",
		"flows[1]: questions must not be empty",
		`flows[2]: duplicate id "a"`,
	} {
		assert.Contains(t, err.Error(), want)
	}

	_, err = ParseExperiment("exp.yaml", []byte("name: x\n"))
	assert.ErrorContains(t, err, "at least one flow")
}

type call struct {
	question string
	id       ask.Identity
}

type scriptedAsker struct {
	calls   []call
	results []ask.Result
}

func (s *scriptedAsker) Ask(_ context.Context, q string, id ask.Identity) ask.Result {
	s.calls = append(s.calls, call{q, id})
	res := s.results[(len(s.calls)-1)%len(s.results)]
	return res
}

type memorySink struct{ records []Record }

func (m *memorySink) WriteRecord(v any) error {
	m.records = append(m.records, v.(Record))
	return nil
}

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func okResult(strategy string) ask.Result {
	return ask.Result{
		HTTPStatus: intp(200),
		Body: map[string]any{
			"meta": map[string]any{
				"intent":   "dividendos",
				"entity":   "fiis_dividendos",
				"narrator": map[string]any{"used": true, "strategy": strategy, "latency_ms": 812.0},
			},
		},
		Latency: 900 * time.Millisecond,
	}
}

func TestRunner_OrderIdentityAndSleep(t *testing.T) {
	exp, err := ParseExperiment("exp.yaml", []byte(experimentYAML))
	require.NoError(t, err)

	asker := &scriptedAsker{results: []ask.Result{
		okResult("llm"),
		{RequestError: strp(ask.ErrReadTimeout)},
		{HTTPStatus: intp(503), Body: map[string]any{}},
	}}
	sink := &memorySink{}
	var slept []time.Duration
	r := &Runner{
		Client: asker,
		Sink:   sink,
		RunID:  "run-1",
		Sleep:  func(_ context.Context, d time.Duration) { slept = append(slept, d) },
		Now:    func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	report, err := r.Run(context.Background(), exp)
	require.NoError(t, err)

	assert.Equal(t, &RunReport{RunID: "run-1", Flows: 2, Questions: 3, Failures: 2}, report)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, slept)

	wantCalls := []call{
		{"qual o dividend yield do HGLG11?", exp.Flows[0].Identity()},
		{"e do KNRI11?", exp.Flows[0].Identity()},
		{"preco da PETR4", exp.Flows[1].Identity()},
	}
	if diff := cmp.Diff(wantCalls, asker.calls, cmp.AllowUnexported(call{})); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, sink.records, 3)
	first := sink.records[0]
	assert.Equal(t, "fii-followup", first.Request.FlowID)
	assert.Equal(t, 0, first.Turn)
	assert.Equal(t, "llm", *first.Narrator.Strategy)
	assert.Equal(t, 900.0, first.LatencyMS)
	assert.Nil(t, first.Error)
	assert.Equal(t, 1, sink.records[1].Turn)
	assert.Equal(t, ask.ErrReadTimeout, *sink.records[1].Error)
	assert.Equal(t, "http_503", *sink.records[2].Error)
}

func TestRunner_CancelBetweenQuestions(t *testing.T) {
	exp, err := ParseExperiment("exp.yaml", []byte(experimentYAML))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	asker := &scriptedAsker{results: []ask.Result{okResult("template")}}
	r := &Runner{Client: &cancelAfterFirst{asker: asker, cancel: cancel}}

	report, err := r.Run(ctx, exp)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Questions)
}

type cancelAfterFirst struct {
	asker  *scriptedAsker
	cancel context.CancelFunc
}

func (c *cancelAfterFirst) Ask(ctx context.Context, q string, id ask.Identity) ask.Result {
	defer c.cancel()
	return c.asker.Ask(ctx, q, id)
}

func TestRunner_WritesRunLog(t *testing.T) {
	exp, err := ParseExperiment("exp.yaml", []byte(experimentYAML))
	require.NoError(t, err)
	dir := t.TempDir()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	log, err := ask.CreateRunLog(dir, LogPrefix, "0f1e2d3c-aaaa-bbbb-cccc-000000000000", now, false)
	require.NoError(t, err)

	r := &Runner{Client: &scriptedAsker{results: []ask.Result{okResult("llm")}}, Sink: log}
	_, err = r.Run(context.Background(), exp)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	assert.Equal(t, filepath.Join(dir, "shadow_run_20260102T030405Z_0f1e2d3c.jsonl"), log.JSONLPath())
	s, err := Summarize([]string{log.JSONLPath()})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Records)
	assert.Equal(t, map[string]int{"llm": 3}, s.Strategies)
}

func writeLog(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func TestSummarize(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "narrator_shadow_a.jsonl",
		`{"request":{"client_id":"c1","conversation_id":"v1","question":"q1"},"narrator":{"strategy":"llm","latency_ms":100}}`,
		`{"request":{"client_id":"c1","conversation_id":"v1","question":"q2"},"narrator":{"strategy":"llm","latency_ms":300}}`,
		`{"request":{"client_id":"c1","conversation_id":"v2","question":"q3"},"strategy":"template","latency_ms":200,"error":"ReadTimeout: timed out"}`,
		`{"request":{"client_id":"c2","conversation_id":"v3","question":"q4"},"error":"429 Too Many Requests"}`,
		`{"request":{"client_id":"c2","conversation_id":"v3","question":"q5"},"http_status":502}`,
		`{"request":{"client_id":"c2","conversation_id":"v3","question":"q6"},"error":"boom"}`,
		`{"request":{"client_id":"c3"}}`,
		``,
		`{"unrelated":true}`,
	)

	s, err := Summarize([]string{path})
	require.NoError(t, err)

	assert.Equal(t, 6, s.Records)
	assert.Equal(t, 2, s.Skipped)
	assert.Equal(t, 4, s.Errors)
	assert.Equal(t, map[string]int{"llm": 2, "template": 1, "<none>": 3}, s.Strategies)
	assert.Equal(t, map[string]int{
		ErrKindTimeout:     1,
		ErrKindRateLimited: 1,
		ErrKindHTTP:        1,
		ErrKindOther:       1,
	}, s.ErrorKinds)
	assert.Equal(t, []ClientSummary{
		{ClientID: "c1", Records: 3, Conversations: 2, Errors: 1},
		{ClientID: "c2", Records: 3, Conversations: 1, Errors: 3},
	}, s.Clients)
	require.Len(t, s.Conversations, 3)
	assert.Equal(t, ConversationSummary{ClientID: "c1", ConversationID: "v2", Records: 1, Errors: 1}, s.Conversations[1])
	assert.Equal(t, LatencyStats{Count: 2, Min: 100, Max: 300, Avg: 200, P50: 100, P95: 300}, s.NarratorLatency)
	assert.Equal(t, LatencyStats{Count: 1, Min: 200, Max: 200, Avg: 200, P50: 200, P95: 200}, s.TotalLatency)

	var buf bytes.Buffer
	s.Render(&buf)
	out := buf.String()
	assert.Contains(t, out, "records: 6 (skipped 2, errors 4)")
	assert.Contains(t, out, "narrator_latency_ms: count=2 ")
	assert.Contains(t, out, "total_latency_ms: count=1 ")
	assert.True(t, strings.Index(out, "<none>") < strings.Index(out, "llm"))
}

func TestSummarize_BadLine(t *testing.T) {
	path := writeLog(t, t.TempDir(), "x.jsonl", `{"request":`)
	_, err := Summarize([]string{path})
	assert.ErrorContains(t, err, "line 1")
}

func TestNewestLog(t *testing.T) {
	dir := t.TempDir()
	old := writeLog(t, dir, "narrator_shadow_old.jsonl", `{}`)
	recent := writeLog(t, dir, "narrator_shadow_new.jsonl", `{}`)
	writeLog(t, dir, "other.jsonl", `{}`)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	got, err := NewestLog(dir)
	require.NoError(t, err)
	assert.Equal(t, recent, got)

	require.NoError(t, os.Chtimes(recent, past.Add(-time.Hour), past.Add(-time.Hour)))
	got, err = NewestLog(dir)
	require.NoError(t, err)
	assert.Equal(t, old, got)

	_, err = NewestLog(t.TempDir())
	assert.Error(t, err)
}

func TestRecordJSONShape(t *testing.T) {
	rec := buildRecord("r", "e", Flow{ID: "f", ClientID: "c", ConversationID: "v"}, 0, "q", okResult("llm"), time.Unix(0, 0))
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "c", m["request"].(map[string]any)["client_id"])
	assert.Equal(t, "1970-01-01T00:00:00Z", m["ts"])
}
