// Package embhealth checks an embeddings store against its manifest.
package embhealth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ShayCichocki/askgate/internal/fileutil"
	"github.com/ShayCichocki/askgate/internal/walk"
)

// MaxExamples bounds the line numbers kept per failing check.
const MaxExamples = 5

var vectorPaths = []string{"embedding", "vector", "values"}

// Manifest is the part of the embeddings manifest the check reads.
type Manifest struct {
	VectorDimension int `json:"vector_dimension"`
	Docs            []struct {
		ID     string `json:"id"`
		Chunks *int   `json:"chunks"`
	} `json:"docs"`
}

// ExpectedTotal sums docs[*].chunks. ok is false when no doc declares
// chunks.
func (m *Manifest) ExpectedTotal() (total int, ok bool) {
	for _, d := range m.Docs {
		if d.Chunks != nil {
			total += *d.Chunks
			ok = true
		}
	}
	return total, ok
}

// Report is the outcome of Check.
type Report struct {
	Manifest      string `json:"manifest"`
	Store         string `json:"store"`
	Total         int    `json:"total"`
	DimExpected   int    `json:"dim_expected"`
	WrongDim      int    `json:"wrong_dim"`
	ZeroOrNaN     int    `json:"zero_or_nan"`
	ExpectedTotal *int   `json:"expected_total,omitempty"`

	WrongDimLines  []int `json:"wrong_dim_lines,omitempty"`
	ZeroOrNaNLines []int `json:"zero_or_nan_lines,omitempty"`
}

// Failures lists every failed check.
func (r *Report) Failures() []string {
	var out []string
	if r.WrongDim > 0 {
		out = append(out, fmt.Sprintf("%s vectors with dimension != %d (lines %s)",
			humanize.Comma(int64(r.WrongDim)), r.DimExpected, joinInts(r.WrongDimLines)))
	}
	if r.ZeroOrNaN > 0 {
		out = append(out, fmt.Sprintf("%s vectors empty, all zero or non-numeric (lines %s)",
			humanize.Comma(int64(r.ZeroOrNaN)), joinInts(r.ZeroOrNaNLines)))
	}
	if r.ExpectedTotal != nil && *r.ExpectedTotal != r.Total {
		out = append(out, fmt.Sprintf("store has %s vectors, manifest declares %s chunks",
			humanize.Comma(int64(r.Total)), humanize.Comma(int64(*r.ExpectedTotal))))
	}
	return out
}

// OK reports whether every check passed.
func (r *Report) OK() bool { return len(r.Failures()) == 0 }

// Render prints the counters and any failures.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "store:        %s\n", r.Store)
	fmt.Fprintf(w, "total:        %s\n", humanize.Comma(int64(r.Total)))
	fmt.Fprintf(w, "dim_expected: %d\n", r.DimExpected)
	fmt.Fprintf(w, "wrong_dim:    %s\n", humanize.Comma(int64(r.WrongDim)))
	fmt.Fprintf(w, "zero_or_nan:  %s\n", humanize.Comma(int64(r.ZeroOrNaN)))
	if r.ExpectedTotal != nil {
		fmt.Fprintf(w, "expected:     %s\n", humanize.Comma(int64(*r.ExpectedTotal)))
	}
	for _, f := range r.Failures() {
		fmt.Fprintf(w, "FAIL: %s\n", f)
	}
}

// LoadManifest reads the JSON manifest.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if err := fileutil.ReadJSON(path, &m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if m.VectorDimension <= 0 {
		return nil, fmt.Errorf("manifest %s: vector_dimension must be positive, got %d", path, m.VectorDimension)
	}
	return &m, nil
}

// Check validates every vector of the JSONL store at storePath. Lines that
// are not JSON objects abort the check.
func Check(manifestPath, storePath string) (*Report, error) {
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	r := &Report{Manifest: manifestPath, Store: storePath, DimExpected: m.VectorDimension}
	if total, ok := m.ExpectedTotal(); ok {
		r.ExpectedTotal = &total
	}

	err = fileutil.EachLineInFile(storePath, func(lineNo int, line []byte) error {
		var rec map[string]any
		if err := json.Unmarshal(sanitizeNonFinite(line), &rec); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		r.Total++

		vec, _ := walk.First(rec, vectorPaths...).([]any)
		if len(vec) > 0 && len(vec) != r.DimExpected {
			r.WrongDim++
			r.WrongDimLines = appendExample(r.WrongDimLines, lineNo)
		}
		if !healthy(vec) {
			r.ZeroOrNaN++
			r.ZeroOrNaNLines = appendExample(r.ZeroOrNaNLines, lineNo)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// healthy reports whether vec is non-empty, finite, numeric and not all
// zero.
func healthy(vec []any) bool {
	if len(vec) == 0 {
		return false
	}
	nonZero := false
	for _, v := range vec {
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return false
			}
			f = parsed
		default:
			return false
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		if f != 0 {
			nonZero = true
		}
	}
	return nonZero
}

var nonFinite = [][]byte{[]byte("-Infinity"), []byte("Infinity"), []byte("NaN")}

// sanitizeNonFinite replaces bare NaN and Infinity tokens, which some
// writers emit but JSON forbids, with null outside of strings.
func sanitizeNonFinite(line []byte) []byte {
	if !bytes.Contains(line, []byte("NaN")) && !bytes.Contains(line, []byte("Infinity")) {
		return line
	}
	out := make([]byte, 0, len(line))
	inString := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inString {
			out = append(out, c)
			if c == '\\' && i+1 < len(line) {
				i++
				out = append(out, line[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		replaced := false
		for _, tok := range nonFinite {
			if bytes.HasPrefix(line[i:], tok) {
				out = append(out, "null"...)
				i += len(tok) - 1
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, c)
		}
	}
	return out
}

func appendExample(lines []int, n int) []int {
	if len(lines) < MaxExamples {
		lines = append(lines, n)
	}
	return lines
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}
