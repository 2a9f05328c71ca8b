package models

// Route is an (intent, entity) routing decision. Nil means absent.
type Route struct {
	Intent *string `json:"intent"`
	Entity *string `json:"entity"`
}

// MissStatus mirrors the service's status block, or the transport failure
// that prevented one from being read.
type MissStatus struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// ReasonOK is the status reason of a technically healthy response.
const ReasonOK = "ok"

// PlannerExplain is the subset of meta.planner.explain kept for offline analysis.
type PlannerExplain struct {
	Normalized        any `json:"normalized"`
	Tokens            any `json:"tokens"`
	IntentScores      any `json:"intent_scores"`
	ThresholdsApplied any `json:"thresholds_applied"`
}

// Miss is a probe whose routing disagreed with the golden expectation.
type Miss struct {
	Question   string          `json:"question"`
	Expected   Route           `json:"expected"`
	Got        Route           `json:"got"`
	Score      *float64        `json:"score"`
	HTTPStatus *int            `json:"http_status"`
	Status     MissStatus      `json:"status"`
	Explain    *PlannerExplain `json:"explain,omitempty"`
}

// Technical reports whether the miss is a service or transport failure
// rather than a routing disagreement. A missing reason counts as ok.
func (m Miss) Technical() bool {
	return m.Status.Reason != "" && m.Status.Reason != ReasonOK
}
