package shadow

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ShayCichocki/askgate/internal/fileutil"
	"github.com/ShayCichocki/askgate/internal/walk"
)

// NarratorLogGlob matches the narrator shadow logs the service writes.
const NarratorLogGlob = "narrator_shadow_*.jsonl"

// Error kinds.
const (
	ErrKindTimeout     = "timeout"
	ErrKindRateLimited = "rate_limited"
	ErrKindHTTP        = "http_error"
	ErrKindOther       = "other"
)

// Shadow logs are free-form apart from request.*; each value is read from
// its known spellings in order.
var (
	strategyPaths        = []string{"narrator.strategy", "strategy", "response.meta.narrator.strategy", "meta.narrator.strategy"}
	narratorLatencyPaths = []string{"narrator.latency_ms", "response.meta.narrator.latency_ms", "meta.narrator.latency_ms"}
	totalLatencyPaths    = []string{"latency_ms", "response.latency_ms"}
	errorPaths           = []string{"error", "narrator.error", "response.meta.narrator.error", "meta.narrator.error"}
	statusPaths          = []string{"http_status", "response.http_status", "status_code"}
)

// LatencyStats summarizes latencies in milliseconds. Percentiles use the
// nearest-rank method.
type LatencyStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
}

// ClientSummary totals one client.
type ClientSummary struct {
	ClientID      string `json:"client_id"`
	Records       int    `json:"records"`
	Conversations int    `json:"conversations"`
	Errors        int    `json:"errors"`
}

// ConversationSummary totals one (client, conversation) pair.
type ConversationSummary struct {
	ClientID       string `json:"client_id"`
	ConversationID string `json:"conversation_id"`
	Records        int    `json:"records"`
	Errors         int    `json:"errors"`
}

// Summary aggregates one or more shadow logs.
type Summary struct {
	Files         []string              `json:"files"`
	Records       int                   `json:"records"`
	Skipped       int                   `json:"skipped"`
	Errors        int                   `json:"errors"`
	Clients       []ClientSummary       `json:"clients"`
	Conversations []ConversationSummary `json:"conversations"`
	Strategies    map[string]int        `json:"strategies"`
	ErrorKinds    map[string]int        `json:"error_kinds"`
	// NarratorLatency is the narrator step alone; TotalLatency is the whole
	// request as seen by the caller.
	NarratorLatency LatencyStats `json:"narrator_latency_ms"`
	TotalLatency    LatencyStats `json:"total_latency_ms"`
}

type convKey struct{ client, conversation string }

// Summarize reads every JSONL log in paths. Lines without
// request.{client_id, conversation_id, question} are counted as skipped;
// lines that are not JSON objects are an error.
func Summarize(paths []string) (*Summary, error) {
	s := &Summary{
		Files:      paths,
		Strategies: make(map[string]int),
		ErrorKinds: make(map[string]int),
	}
	clients := make(map[string]*ClientSummary)
	convs := make(map[convKey]*ConversationSummary)
	var narratorLatencies, totalLatencies []float64

	for _, path := range paths {
		err := fileutil.EachLineInFile(path, func(lineNo int, line []byte) error {
			var rec map[string]any
			if err := json.Unmarshal(line, &rec); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			client := walk.String(rec, "request.client_id")
			conv := walk.String(rec, "request.conversation_id")
			question := walk.String(rec, "request.question")
			if client == nil || conv == nil || question == nil {
				s.Skipped++
				return nil
			}
			s.Records++

			c := clients[*client]
			if c == nil {
				c = &ClientSummary{ClientID: *client}
				clients[*client] = c
			}
			c.Records++
			k := convKey{*client, *conv}
			cv := convs[k]
			if cv == nil {
				cv = &ConversationSummary{ClientID: *client, ConversationID: *conv}
				convs[k] = cv
				c.Conversations++
			}
			cv.Records++

			strategy := "<none>"
			if v := walk.String(rec, strategyPaths...); v != nil && *v != "" {
				strategy = *v
			}
			s.Strategies[strategy]++

			if lat := walk.Float(rec, narratorLatencyPaths...); lat != nil {
				narratorLatencies = append(narratorLatencies, *lat)
			}
			if lat := walk.Float(rec, totalLatencyPaths...); lat != nil {
				totalLatencies = append(totalLatencies, *lat)
			}

			if kind := classifyError(walk.String(rec, errorPaths...), walk.Int(rec, statusPaths...)); kind != "" {
				s.Errors++
				s.ErrorKinds[kind]++
				c.Errors++
				cv.Errors++
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	for _, c := range clients {
		s.Clients = append(s.Clients, *c)
	}
	sort.Slice(s.Clients, func(i, j int) bool { return s.Clients[i].ClientID < s.Clients[j].ClientID })
	for _, cv := range convs {
		s.Conversations = append(s.Conversations, *cv)
	}
	sort.Slice(s.Conversations, func(i, j int) bool {
		a, b := s.Conversations[i], s.Conversations[j]
		if a.ClientID != b.ClientID {
			return a.ClientID < b.ClientID
		}
		return a.ConversationID < b.ConversationID
	})
	s.NarratorLatency = latencyStats(narratorLatencies)
	s.TotalLatency = latencyStats(totalLatencies)
	return s, nil
}

// classifyError returns the error kind of a record, or "" when it
// succeeded.
func classifyError(msg *string, status *int) string {
	if msg == nil || *msg == "" {
		switch {
		case status == nil || *status < 400:
			return ""
		case *status == 429:
			return ErrKindRateLimited
		default:
			return ErrKindHTTP
		}
	}
	m := strings.ToLower(*msg)
	switch {
	case strings.Contains(m, "timeout") || strings.Contains(m, "timed out"):
		return ErrKindTimeout
	case strings.Contains(m, "429") || strings.Contains(m, "rate limit") || strings.Contains(m, "rate_limit"):
		return ErrKindRateLimited
	case strings.HasPrefix(m, "http") || (status != nil && *status >= 400):
		return ErrKindHTTP
	default:
		return ErrKindOther
	}
}

func latencyStats(values []float64) LatencyStats {
	if len(values) == 0 {
		return LatencyStats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return LatencyStats{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Avg:   sum / float64(len(sorted)),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
	}
}

func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// NewestLog returns the most recently modified narrator shadow log in dir.
func NewestLog(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, NarratorLogGlob))
	if err != nil {
		return "", err
	}
	var newest string
	var newestMod int64
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		mod := info.ModTime().UnixNano()
		if newest == "" || mod > newestMod || (mod == newestMod && m > newest) {
			newest, newestMod = m, mod
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no %s files in %s", NarratorLogGlob, dir)
	}
	return newest, nil
}

// Render prints the summary as plain text.
func (s *Summary) Render(w io.Writer) {
	fmt.Fprintf(w, "files: %s\n", strings.Join(s.Files, ", "))
	fmt.Fprintf(w, "records: %d (skipped %d, errors %d)\n", s.Records, s.Skipped, s.Errors)

	fmt.Fprintln(w, "\nclients:")
	for _, c := range s.Clients {
		fmt.Fprintf(w, "  %-24s records=%d conversations=%d errors=%d\n", c.ClientID, c.Records, c.Conversations, c.Errors)
	}
	fmt.Fprintln(w, "\nconversations:")
	for _, cv := range s.Conversations {
		fmt.Fprintf(w, "  %s / %s  records=%d errors=%d\n", cv.ClientID, cv.ConversationID, cv.Records, cv.Errors)
	}
	fmt.Fprintln(w, "\nstrategies:")
	for _, k := range sortedByCount(s.Strategies) {
		fmt.Fprintf(w, "  %-24s %d\n", k, s.Strategies[k])
	}
	if len(s.ErrorKinds) > 0 {
		fmt.Fprintln(w, "\nerrors:")
		for _, k := range sortedByCount(s.ErrorKinds) {
			fmt.Fprintf(w, "  %-24s %d\n", k, s.ErrorKinds[k])
		}
	}
	fmt.Fprintln(w)
	renderLatency(w, "narrator_latency_ms", s.NarratorLatency)
	renderLatency(w, "total_latency_ms", s.TotalLatency)
}

func renderLatency(w io.Writer, name string, l LatencyStats) {
	fmt.Fprintf(w, "%s: count=%d min=%.1f p50=%.1f p95=%.1f max=%.1f avg=%.1f\n",
		name, l.Count, l.Min, l.P50, l.P95, l.Max, l.Avg)
}

func sortedByCount(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
