package ask

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ShayCichocki/askgate/pkg/models"
)

func ptr[T any](v T) *T { return &v }

const fullResponse = `{
  "status": {"reason": "ok", "message": "done"},
  "answer": "...",
  "meta": {
    "intent": "fallback_intent",
    "entity": "fallback_entity",
    "planner": {
      "chosen": {"intent": "cadastro", "entity": "fiis_cadastro", "score": 0.91},
      "gate": {"accepted": true, "source": "planner", "reason": "score", "min_score": 0.5, "min_gap": 0.1, "gap": 0.3, "score_for_gate": 0.91},
      "explain": {
        "normalized": "cadastro hglg11",
        "tokens": ["cadastro", "hglg11"],
        "intent_scores": {"cadastro": 0.91},
        "scoring": {"intent_top2_gap_base": 0.2, "intent_top2_gap_final": 0.3, "thresholds_applied": {"min_score": 0.5}},
        "rag": {"used": false},
        "fusion": {"used": true}
      }
    },
    "rows_total": 3,
    "result_key": "fiis_cadastro",
    "cache": {"hit": true, "layer": "redis", "ttl": 300, "key": "k1"},
    "elapsed_ms": 42.5,
    "narrator": {"used": true, "latency_ms": 120, "error": null, "strategy": "template"}
  }
}`

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return m
}

func TestExtractDecision_Full(t *testing.T) {
	got := ExtractDecision(decode(t, fullResponse))
	want := Decision{
		Intent:             ptr("cadastro"),
		Entity:             ptr("fiis_cadastro"),
		Score:              ptr(0.91),
		GateAccepted:       ptr(true),
		GateSource:         ptr("planner"),
		GateReason:         ptr("score"),
		GateMinScore:       ptr(0.5),
		GateMinGap:         ptr(0.1),
		GateGap:            ptr(0.3),
		GateScoreForGate:   ptr(0.91),
		IntentTop2GapBase:  ptr(0.2),
		IntentTop2GapFinal: ptr(0.3),
		RowsTotal:          ptr(3),
		ResultKey:          ptr("fiis_cadastro"),
		CacheHit:           ptr(true),
		CacheLayer:         ptr("redis"),
		CacheTTL:           ptr(300.0),
		CacheKey:           ptr("k1"),
		RagUsed:            ptr(false),
		FusionUsed:         ptr(true),
		ElapsedMS:          ptr(42.5),
		NarratorUsed:       ptr(true),
		NarratorLatencyMS:  ptr(120.0),
		NarratorStrategy:   ptr("template"),
		StatusReason:       ptr("ok"),
		StatusMessage:      ptr("done"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractDecision_FallbacksAndMissing(t *testing.T) {
	got := ExtractDecision(decode(t, `{"status": "rate_limited", "meta": {"intent": "i1", "entity": "e1"}}`))
	if got.Intent == nil || *got.Intent != "i1" || got.Entity == nil || *got.Entity != "e1" {
		t.Errorf("expected meta.intent/entity fallback, got %+v", got.Route())
	}
	if got.StatusReason == nil || *got.StatusReason != "rate_limited" {
		t.Errorf("expected string status as reason, got %v", got.StatusReason)
	}
	if got.Score != nil || got.GateAccepted != nil || got.CacheHit != nil {
		t.Error("missing branches must stay nil")
	}

	empty := ExtractDecision(nil)
	if diff := cmp.Diff(Decision{}, empty); diff != "" {
		t.Errorf("nil body should yield empty decision:\n%s", diff)
	}
}

func TestExtractDecision_GateUnderExplain(t *testing.T) {
	got := ExtractDecision(decode(t, `{"meta": {"planner": {"explain": {"gate": {"accepted": false, "reason": "low_gap"}}}}}`))
	if got.GateAccepted == nil || *got.GateAccepted {
		t.Errorf("expected gate accepted=false, got %v", got.GateAccepted)
	}
	if got.GateReason == nil || *got.GateReason != "low_gap" {
		t.Errorf("expected gate reason, got %v", got.GateReason)
	}
}

func TestExtractExplain(t *testing.T) {
	got := ExtractExplain(decode(t, fullResponse))
	if got == nil {
		t.Fatal("expected explain snapshot")
	}
	if got.Normalized != "cadastro hglg11" {
		t.Errorf("normalized = %v", got.Normalized)
	}
	if diff := cmp.Diff(map[string]any{"min_score": 0.5}, got.ThresholdsApplied); diff != "" {
		t.Errorf("thresholds_applied from scoring fallback:\n%s", diff)
	}
	if ExtractExplain(decode(t, `{"meta": {}}`)) != nil {
		t.Error("expected nil without explain")
	}
}

func TestClassify_TruthTable(t *testing.T) {
	route := models.Route{Intent: ptr("i1"), Entity: ptr("e1")}
	both := models.Payload{ExpectedIntent: "i1", ExpectedEntity: "e1"}

	tests := []struct {
		name     string
		status   *int
		reqErr   *string
		expected models.Payload
		got      models.Route
		want     models.SuiteStatus
	}{
		{"200 both match", ptr(200), nil, both, route, models.StatusPass},
		{"200 partial match", ptr(200), nil, models.Payload{ExpectedIntent: "i1", ExpectedEntity: "e2"}, route, models.StatusFail},
		{"200 no match", ptr(200), nil, models.Payload{ExpectedIntent: "x", ExpectedEntity: "y"}, route, models.StatusFail},
		{"200 only intent expected", ptr(200), nil, models.Payload{ExpectedIntent: "i1"}, route, models.StatusFail},
		{"200 nothing chosen", ptr(200), nil, both, models.Route{}, models.StatusFail},
		{"200 no expectations", ptr(200), nil, models.Payload{}, route, models.StatusSkip},
		{"500 any", ptr(500), nil, both, route, models.StatusError},
		{"404 no expectations", ptr(404), nil, models.Payload{}, route, models.StatusError},
		{"timeout", nil, ptr("timeout"), both, route, models.StatusError},
		{"2xx with request error", ptr(200), ptr("invalid_json: x"), both, route, models.StatusError},
		{"whitespace tolerant", ptr(201), nil, models.Payload{ExpectedIntent: " i1 ", ExpectedEntity: "e1"}, models.Route{Intent: ptr("i1 "), Entity: ptr("e1")}, models.StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.status, tt.reqErr, tt.expected, tt.got); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRouteMatches(t *testing.T) {
	got := models.Route{Intent: ptr("i1"), Entity: ptr("e1")}
	if !RouteMatches(models.Payload{ExpectedIntent: "i1"}, got) {
		t.Error("intent-only expectation should match")
	}
	if RouteMatches(models.Payload{ExpectedEntity: "e2"}, got) {
		t.Error("entity mismatch should not match")
	}
	if !RouteMatches(models.Payload{}, models.Route{}) {
		t.Error("no expectations always match")
	}
}
