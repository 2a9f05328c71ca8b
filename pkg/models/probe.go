package models

// ProbeRow is one line of a probe run log.
//
// Every field is always serialized (nil becomes JSON null) so that the CSV
// header derived from the first row covers every later row as well.
type ProbeRow struct {
	Idx            int     `json:"idx"`
	Question       string  `json:"question"`
	ExpectedIntent *string `json:"expected_intent"`
	ExpectedEntity *string `json:"expected_entity"`

	HTTPStatus   *int    `json:"http_status"`
	RequestError *string `json:"request_error"`
	StatusReason *string `json:"status_reason"`

	ChosenIntent *string  `json:"chosen_intent"`
	ChosenEntity *string  `json:"chosen_entity"`
	PlannerScore *float64 `json:"planner_score"`

	GateAccepted     *bool    `json:"gate_accepted"`
	GateSource       *string  `json:"gate_source"`
	GateReason       *string  `json:"gate_reason"`
	GateMinScore     *float64 `json:"gate_min_score"`
	GateMinGap       *float64 `json:"gate_min_gap"`
	GateGap          *float64 `json:"gate_gap"`
	GateScoreForGate *float64 `json:"gate_score_for_gate"`

	IntentTop2GapBase  *float64 `json:"intent_top2_gap_base"`
	IntentTop2GapFinal *float64 `json:"intent_top2_gap_final"`

	RowsTotal *int    `json:"rows_total"`
	ResultKey *string `json:"result_key"`

	CacheHit   *bool    `json:"cache_hit"`
	CacheLayer *string  `json:"cache_layer"`
	CacheTTL   *float64 `json:"cache_ttl"`
	CacheKey   *string  `json:"cache_key"`

	RagUsed    *bool `json:"rag_used"`
	FusionUsed *bool `json:"fusion_used"`

	ElapsedMS *float64 `json:"elapsed_ms"`
	LatencyMS float64  `json:"latency_ms"`

	NarratorUsed      *bool    `json:"narrator_used"`
	NarratorLatencyMS *float64 `json:"narrator_latency_ms"`
	NarratorError     *string  `json:"narrator_error"`

	SuiteStatus SuiteStatus `json:"suite_status"`
}
