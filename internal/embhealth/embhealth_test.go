package embhealth

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheck_Healthy(t *testing.T) {
	dir := t.TempDir()
	manifest := write(t, dir, "manifest.json", `{"vector_dimension": 3, "docs": [{"id": "a", "chunks": 1}, {"id": "b", "chunks": 2}]}`)
	store := write(t, dir, "store.jsonl", strings.Join([]string{
		`{"id": "a#0", "embedding": [0.1, 0.2, 0.3]}`,
		``,
		`{"id": "b#0", "vector": [1, 0, 0]}`,
		`{"id": "b#1", "embedding": ["0.5", "-0.5", "0"]}`,
	}, "\n"))

	r, err := Check(manifest, store)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !r.OK() {
		t.Errorf("expected OK, failures: %v", r.Failures())
	}
	if r.Total != 3 || r.DimExpected != 3 || *r.ExpectedTotal != 3 {
		t.Errorf("report = %+v", r)
	}
}

func TestCheck_Failures(t *testing.T) {
	dir := t.TempDir()
	manifest := write(t, dir, "manifest.json", `{"vector_dimension": 3, "docs": [{"chunks": 10}]}`)
	store := write(t, dir, "store.jsonl", strings.Join([]string{
		`{"embedding": [0.1, 0.2]}`,
		`{"embedding": [0, 0, 0]}`,
		`{"embedding": []}`,
		`{"id": "no vector"}`,
		`{"embedding": [0.1, NaN, 0.3]}`,
		`{"embedding": [0.1, "abc", 0.3], "note": "NaN inside a string"}`,
		`{"embedding": [Infinity, 1, -Infinity]}`,
		`{"embedding": [0.1, 0.2, 0.3]}`,
	}, "\n"))

	r, err := Check(manifest, store)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if r.Total != 8 {
		t.Errorf("Total = %d, want 8", r.Total)
	}
	if r.WrongDim != 1 {
		t.Errorf("WrongDim = %d, want 1", r.WrongDim)
	}
	if r.ZeroOrNaN != 6 {
		t.Errorf("ZeroOrNaN = %d, want 6", r.ZeroOrNaN)
	}
	if len(r.ZeroOrNaNLines) != MaxExamples {
		t.Errorf("ZeroOrNaNLines = %v", r.ZeroOrNaNLines)
	}
	failures := r.Failures()
	if len(failures) != 3 {
		t.Fatalf("failures = %v", failures)
	}
	if !strings.Contains(failures[2], "store has 8 vectors, manifest declares 10 chunks") {
		t.Errorf("count failure = %q", failures[2])
	}

	var buf bytes.Buffer
	r.Render(&buf)
	if !strings.Contains(buf.String(), "FAIL: 1 vectors with dimension != 3 (lines 1)") {
		t.Errorf("render = %s", buf.String())
	}
}

func TestCheck_NoChunksDeclared(t *testing.T) {
	dir := t.TempDir()
	manifest := write(t, dir, "manifest.json", `{"vector_dimension": 2}`)
	store := write(t, dir, "store.jsonl", `{"embedding": [1, 2]}`+"\n")
	r, err := Check(manifest, store)
	if err != nil {
		t.Fatal(err)
	}
	if r.ExpectedTotal != nil || !r.OK() {
		t.Errorf("report = %+v", r)
	}
}

func TestCheck_LoaderErrors(t *testing.T) {
	dir := t.TempDir()
	good := write(t, dir, "manifest.json", `{"vector_dimension": 2}`)
	tests := []struct {
		name     string
		manifest string
		store    string
		want     string
	}{
		{"bad dimension", write(t, dir, "m0.json", `{"vector_dimension": 0}`), "", "vector_dimension must be positive"},
		{"missing manifest", filepath.Join(dir, "nope.json"), "", "manifest"},
		{"bad line", good, write(t, dir, "s.jsonl", "{\"embedding\": [1, 2]}\nnot json\n"), "line 2"},
		{"missing store", good, filepath.Join(dir, "nope.jsonl"), "open"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Check(tt.manifest, tt.store)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestSanitizeNonFinite(t *testing.T) {
	tests := []struct{ in, want string }{
		{`[1, 2]`, `[1, 2]`},
		{`[NaN, -Infinity, Infinity]`, `[null, null, null]`},
		{`{"s": "NaN \" Infinity", "v": [NaN]}`, `{"s": "NaN \" Infinity", "v": [null]}`},
	}
	for _, tt := range tests {
		if got := string(sanitizeNonFinite([]byte(tt.in))); got != tt.want {
			t.Errorf("sanitizeNonFinite(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
