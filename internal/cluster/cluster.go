// Package cluster groups routing misses so the biggest confusions surface
// first.
package cluster

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ShayCichocki/askgate/internal/fileutil"
	"github.com/ShayCichocki/askgate/pkg/models"
)

// NoneKey stands in for an absent entity.
const NoneKey = "<none>"

// ExportVersion tags the JSON export format.
const ExportVersion = "1"

// DefaultMaxExamples bounds the examples kept per cluster.
const DefaultMaxExamples = 3

// Example is one miss kept as a cluster sample.
type Example struct {
	Question       string   `json:"question"`
	ExpectedIntent *string  `json:"expected_intent"`
	GotIntent      *string  `json:"got_intent"`
	Score          *float64 `json:"score"`
}

// ScoreStats summarizes the populated scores of a cluster.
type ScoreStats struct {
	Count int      `json:"count"`
	Avg   *float64 `json:"avg"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
}

// Cluster groups routing misses with the same (expected, got) entity pair.
type Cluster struct {
	ExpectedEntity string     `json:"expected_entity"`
	GotEntity      string     `json:"got_entity"`
	Count          int        `json:"count"`
	Scores         ScoreStats `json:"scores"`
	Examples       []Example  `json:"examples"`
}

// Key renders the cluster key.
func (c Cluster) Key() string {
	return c.ExpectedEntity + " -> " + c.GotEntity
}

// Technical groups service or transport failures by status reason.
type Technical struct {
	Reason   string   `json:"reason"`
	Count    int      `json:"count"`
	Examples []string `json:"examples"`
}

// Result is the outcome of Build.
type Result struct {
	Total     int         `json:"total"`
	Routing   []Cluster   `json:"routing_clusters"`
	Technical []Technical `json:"technical"`
}

// Options configures Build.
type Options struct {
	MaxExamples int
}

type pairKey struct{ expected, got string }

// Build partitions misses into technical and routing buckets. Both lists
// are ordered by count descending, then key.
func Build(misses []models.Miss, opts Options) *Result {
	maxExamples := opts.MaxExamples
	if maxExamples <= 0 {
		maxExamples = DefaultMaxExamples
	}

	routing := make(map[pairKey]*Cluster)
	var routingOrder []pairKey
	technical := make(map[string]*Technical)
	var technicalOrder []string
	scores := make(map[pairKey][]float64)

	for _, m := range misses {
		if m.Technical() {
			reason := m.Status.Reason
			t, ok := technical[reason]
			if !ok {
				t = &Technical{Reason: reason, Examples: []string{}}
				technical[reason] = t
				technicalOrder = append(technicalOrder, reason)
			}
			t.Count++
			if len(t.Examples) < maxExamples {
				t.Examples = append(t.Examples, m.Question)
			}
			continue
		}

		k := pairKey{expected: orNone(m.Expected.Entity), got: orNone(m.Got.Entity)}
		c, ok := routing[k]
		if !ok {
			c = &Cluster{ExpectedEntity: k.expected, GotEntity: k.got, Examples: []Example{}}
			routing[k] = c
			routingOrder = append(routingOrder, k)
		}
		c.Count++
		if m.Score != nil {
			scores[k] = append(scores[k], *m.Score)
		}
		if len(c.Examples) < maxExamples {
			c.Examples = append(c.Examples, Example{
				Question:       m.Question,
				ExpectedIntent: m.Expected.Intent,
				GotIntent:      m.Got.Intent,
				Score:          m.Score,
			})
		}
	}

	res := &Result{Total: len(misses), Routing: []Cluster{}, Technical: []Technical{}}
	for _, k := range routingOrder {
		c := routing[k]
		c.Scores = stats(scores[k])
		res.Routing = append(res.Routing, *c)
	}
	for _, r := range technicalOrder {
		res.Technical = append(res.Technical, *technical[r])
	}

	sort.SliceStable(res.Routing, func(i, j int) bool {
		a, b := res.Routing[i], res.Routing[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.ExpectedEntity != b.ExpectedEntity {
			return a.ExpectedEntity < b.ExpectedEntity
		}
		return a.GotEntity < b.GotEntity
	})
	sort.SliceStable(res.Technical, func(i, j int) bool {
		a, b := res.Technical[i], res.Technical[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Reason < b.Reason
	})
	return res
}

func orNone(s *string) string {
	if s == nil || *s == "" {
		return NoneKey
	}
	return *s
}

func stats(values []float64) ScoreStats {
	s := ScoreStats{Count: len(values)}
	if len(values) == 0 {
		return s
	}
	lo, hi, sum := values[0], values[0], 0.0
	for _, v := range values {
		sum += v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	avg := sum / float64(len(values))
	s.Avg, s.Min, s.Max = &avg, &lo, &hi
	return s
}

// Export is the machine-readable cluster report.
type Export struct {
	Version     string `json:"version"`
	GeneratedAt string `json:"generated_at"`
	*Result
}

// MarshalExport renders the JSON export with a UTC timestamp.
func MarshalExport(res *Result, now time.Time) ([]byte, error) {
	return fileutil.MarshalJSON(Export{
		Version:     ExportVersion,
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Result:      res,
	})
}

// WriteExport writes the JSON export atomically.
func WriteExport(path string, res *Result, now time.Time) error {
	data, err := MarshalExport(res, now)
	if err != nil {
		return fmt.Errorf("encode cluster export: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0644)
}

// LoadMisses reads a routing diff report ({misses: [...]}) or a bare list
// of misses.
func LoadMisses(path string) ([]models.Miss, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read misses %s: %w", path, err)
	}

	var list []models.Miss
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc struct {
		Misses []models.Miss `json:"misses"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse misses %s: %w", path, err)
	}
	return doc.Misses, nil
}
