// Package routing merges suites into the routing sample file and checks
// that the two stay in sync.
package routing

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ShayCichocki/askgate/internal/fileutil"
	"github.com/ShayCichocki/askgate/pkg/models"
)

// DefaultDriftLimit is how many keys per side Render prints.
const DefaultDriftLimit = 20

// Key identifies a payload for deduplication and drift detection.
type Key struct {
	Intent   string
	Question string
}

func (k Key) String() string {
	intent := k.Intent
	if intent == "" {
		intent = "<none>"
	}
	return fmt.Sprintf("[%s] %s", intent, k.Question)
}

// NormalizeQuestion collapses runs of whitespace and trims.
func NormalizeQuestion(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// KeyOf returns the dedup key of a payload.
func KeyOf(p models.Payload) Key {
	return Key{Intent: strings.TrimSpace(p.ExpectedIntent), Question: NormalizeQuestion(p.Question)}
}

// Build concatenates suite payloads in suite order, keeps the first payload
// per key and stable-sorts by (intent, question).
func Build(suites []*models.Suite) models.RoutingSampleSet {
	seen := make(map[Key]bool)
	payloads := []models.Payload{}
	for _, s := range suites {
		for _, p := range s.Payloads {
			k := KeyOf(p)
			if seen[k] {
				continue
			}
			seen[k] = true
			payloads = append(payloads, p)
		}
	}
	sort.SliceStable(payloads, func(i, j int) bool {
		if payloads[i].ExpectedIntent != payloads[j].ExpectedIntent {
			return payloads[i].ExpectedIntent < payloads[j].ExpectedIntent
		}
		return payloads[i].Question < payloads[j].Question
	})
	return models.RoutingSampleSet{Type: models.RoutingSampleType, Payloads: payloads}
}

// WriteSampleSet writes set as canonical JSON, atomically.
func WriteSampleSet(path string, set models.RoutingSampleSet) error {
	return fileutil.WriteJSON(path, set)
}

// LoadSampleSet reads a routing sample file.
func LoadSampleSet(path string) (*models.RoutingSampleSet, error) {
	var set models.RoutingSampleSet
	if err := fileutil.ReadJSON(path, &set); err != nil {
		return nil, err
	}
	if set.Type != "" && set.Type != models.RoutingSampleType {
		return nil, fmt.Errorf("%s: unexpected type %q, want %q", path, set.Type, models.RoutingSampleType)
	}
	return &set, nil
}

// DriftReport is the symmetric difference between the suites and the
// routing sample file.
type DriftReport struct {
	SuiteKeys          int
	RoutingKeys        int
	MissingFromRouting []Key
	ExtraInRouting     []Key
}

// Clean reports whether both key sets are equal.
func (r *DriftReport) Clean() bool {
	return len(r.MissingFromRouting) == 0 && len(r.ExtraInRouting) == 0
}

// ValidateDrift compares the key set of suites with the key set of set.
func ValidateDrift(suites []*models.Suite, set *models.RoutingSampleSet) *DriftReport {
	want := make(map[Key]bool)
	for _, s := range suites {
		for _, p := range s.Payloads {
			want[KeyOf(p)] = true
		}
	}
	have := make(map[Key]bool)
	for _, p := range set.Payloads {
		have[KeyOf(p)] = true
	}

	report := &DriftReport{SuiteKeys: len(want), RoutingKeys: len(have)}
	for k := range want {
		if !have[k] {
			report.MissingFromRouting = append(report.MissingFromRouting, k)
		}
	}
	for k := range have {
		if !want[k] {
			report.ExtraInRouting = append(report.ExtraInRouting, k)
		}
	}
	sortKeys(report.MissingFromRouting)
	sortKeys(report.ExtraInRouting)
	return report
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Intent != keys[j].Intent {
			return keys[i].Intent < keys[j].Intent
		}
		return keys[i].Question < keys[j].Question
	})
}

// Render prints the report with at most limit keys per side.
func (r *DriftReport) Render(w io.Writer, limit int) {
	if limit <= 0 {
		limit = DefaultDriftLimit
	}
	if r.Clean() {
		fmt.Fprintf(w, "routing samples in sync (%d keys)\n", r.SuiteKeys)
		return
	}
	fmt.Fprintf(w, "routing samples drifted: suites=%d routing=%d\n", r.SuiteKeys, r.RoutingKeys)
	renderSide(w, "missing from routing samples", r.MissingFromRouting, limit)
	renderSide(w, "extra in routing samples", r.ExtraInRouting, limit)
}

func renderSide(w io.Writer, title string, keys []Key, limit int) {
	if len(keys) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d):\n", title, len(keys))
	for i, k := range keys {
		if i == limit {
			fmt.Fprintf(w, "  ... and %d more\n", len(keys)-limit)
			break
		}
		fmt.Fprintf(w, "  - %s\n", k)
	}
}
