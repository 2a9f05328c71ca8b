package ask

import (
	"github.com/ShayCichocki/askgate/internal/walk"
	"github.com/ShayCichocki/askgate/pkg/models"
)

// The explain schema is not stable across service versions; every field
// below is read from each of its known spellings in order.
var (
	intentPaths = []string{"meta.planner.chosen.intent", "meta.intent"}
	entityPaths = []string{"meta.planner.chosen.entity", "meta.entity"}
	scorePaths  = []string{"meta.planner.chosen.score", "meta.planner.chosen.final_score", "meta.score"}

	gatePrefixes = []string{"meta.gate", "meta.planner.gate", "meta.planner.explain.gate"}
)

// Decision is everything a probe reads from one Ask response.
type Decision struct {
	Intent *string
	Entity *string
	Score  *float64

	GateAccepted     *bool
	GateSource       *string
	GateReason       *string
	GateMinScore     *float64
	GateMinGap       *float64
	GateGap          *float64
	GateScoreForGate *float64

	IntentTop2GapBase  *float64
	IntentTop2GapFinal *float64

	RowsTotal *int
	ResultKey *string

	CacheHit   *bool
	CacheLayer *string
	CacheTTL   *float64
	CacheKey   *string

	RagUsed    *bool
	FusionUsed *bool

	ElapsedMS *float64

	NarratorUsed      *bool
	NarratorLatencyMS *float64
	NarratorError     *string
	NarratorStrategy  *string

	StatusReason  *string
	StatusMessage *string
}

// Route returns the chosen (intent, entity).
func (d Decision) Route() models.Route {
	return models.Route{Intent: d.Intent, Entity: d.Entity}
}

// ExtractDecision reads the decision fields of a response body. Missing
// branches leave fields nil.
func ExtractDecision(body map[string]any) Decision {
	var root any = body
	d := Decision{
		Intent: walk.String(root, intentPaths...),
		Entity: walk.String(root, entityPaths...),
		Score:  walk.Float(root, scorePaths...),

		GateAccepted:     walk.Bool(root, gatePaths("accepted")...),
		GateSource:       walk.String(root, gatePaths("source")...),
		GateReason:       walk.String(root, gatePaths("reason")...),
		GateMinScore:     walk.Float(root, gatePaths("min_score")...),
		GateMinGap:       walk.Float(root, gatePaths("min_gap")...),
		GateGap:          walk.Float(root, gatePaths("gap")...),
		GateScoreForGate: walk.Float(root, gatePaths("score_for_gate")...),

		IntentTop2GapBase: walk.Float(root,
			"meta.planner.explain.scoring.intent_top2_gap_base",
			"meta.planner.explain.intent_top2_gap_base"),
		IntentTop2GapFinal: walk.Float(root,
			"meta.planner.explain.scoring.intent_top2_gap_final",
			"meta.planner.explain.intent_top2_gap_final"),

		RowsTotal: walk.Int(root, "meta.rows_total"),
		ResultKey: walk.String(root, "meta.result_key"),

		CacheHit:   walk.Bool(root, "meta.cache.hit"),
		CacheLayer: walk.String(root, "meta.cache.layer"),
		CacheTTL:   walk.Float(root, "meta.cache.ttl"),
		CacheKey:   walk.String(root, "meta.cache.key"),

		RagUsed:    walk.Bool(root, "meta.planner.explain.rag.used", "meta.rag.used"),
		FusionUsed: walk.Bool(root, "meta.planner.explain.fusion.used", "meta.fusion.used"),

		ElapsedMS: walk.Float(root, "meta.elapsed_ms"),

		NarratorUsed:      walk.Bool(root, "meta.narrator.used"),
		NarratorLatencyMS: walk.Float(root, "meta.narrator.latency_ms"),
		NarratorError:     walk.String(root, "meta.narrator.error"),
		NarratorStrategy:  walk.String(root, "meta.narrator.strategy"),

		StatusMessage: walk.String(root, "status.message"),
	}

	// status is either {reason, message} or a bare string.
	if s, ok := walk.Get(root, "status").(string); ok && s != "" {
		d.StatusReason = &s
	} else {
		d.StatusReason = walk.String(root, "status.reason")
	}
	return d
}

func gatePaths(field string) []string {
	paths := make([]string, len(gatePrefixes))
	for i, p := range gatePrefixes {
		paths[i] = p + "." + field
	}
	return paths
}

// ExtractExplain returns the planner explain snapshot kept with misses, or
// nil when the response carries none.
func ExtractExplain(body map[string]any) *models.PlannerExplain {
	var root any = body
	explain := walk.Map(root, "meta.planner.explain")
	if explain == nil {
		return nil
	}
	return &models.PlannerExplain{
		Normalized:        explain["normalized"],
		Tokens:            explain["tokens"],
		IntentScores:      explain["intent_scores"],
		ThresholdsApplied: walk.First(explain, "thresholds_applied", "scoring.thresholds_applied"),
	}
}
