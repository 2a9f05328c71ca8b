package suite

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ShayCichocki/askgate/pkg/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadSuite_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fiis_suite.json", `{
  "suite": "fiis",
  "description": "  fund questions ",
  "payloads": [
    {"question": " cadastro do HGLG11 ", "expected_intent": "cadastro", "expected_entity": "fiis_cadastro"},
    {"question": "oi"}
  ]
}`)

	got, err := LoadSuite(path)
	if err != nil {
		t.Fatalf("LoadSuite failed: %v", err)
	}

	want := &models.Suite{
		Suite:       "fiis",
		Description: "fund questions",
		Payloads: []models.Payload{
			{Question: "cadastro do HGLG11", ExpectedIntent: "cadastro", ExpectedEntity: "fiis_cadastro"},
			{Question: "oi"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("suite mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSuite_ContractViolations(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		contains string
	}{
		{
			name:     "root is a list",
			file:     "a_suite.json",
			content:  `[{"question": "x"}]`,
			contains: "root must be a JSON object",
		},
		{
			name:     "legacy samples key",
			file:     "a_suite.json",
			content:  `{"suite": "a", "samples": [{"question": "x"}]}`,
			contains: `legacy key "samples"`,
		},
		{
			name:     "suite name mismatch",
			file:     "a_suite.json",
			content:  `{"suite": "b", "payloads": [{"question": "x"}]}`,
			contains: `must match file name "a"`,
		},
		{
			name:     "missing suite",
			file:     "a_suite.json",
			content:  `{"payloads": [{"question": "x"}]}`,
			contains: "suite",
		},
		{
			name:     "empty payloads",
			file:     "a_suite.json",
			content:  `{"suite": "a", "payloads": []}`,
			contains: "/payloads",
		},
		{
			name:     "payloads not a list",
			file:     "a_suite.json",
			content:  `{"suite": "a", "payloads": {"question": "x"}}`,
			contains: "/payloads",
		},
		{
			name:     "blank question",
			file:     "a_suite.json",
			content:  `{"suite": "a", "payloads": [{"question": "   "}]}`,
			contains: "/payloads/0/question",
		},
		{
			name:     "expectation wrong type",
			file:     "a_suite.json",
			content:  `{"suite": "a", "payloads": [{"question": "x", "expected_intent": 3}]}`,
			contains: "/payloads/0/expected_intent",
		},
		{
			name:     "invalid json",
			file:     "a_suite.json",
			content:  `{"suite":`,
			contains: "invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)
			_, err := LoadSuite(path)
			if err == nil {
				t.Fatal("expected contract error")
			}
			if !IsContractError(err) {
				t.Fatalf("expected *ContractError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not mention %q", err, tt.contains)
			}
		})
	}
}

func TestViolations_Sorted(t *testing.T) {
	raw := map[string]any{
		"suite":    "wrong",
		"samples":  []any{},
		"payloads": []any{map[string]any{"question": ""}},
	}
	got := Violations("x_suite.json", raw)
	if len(got) < 3 {
		t.Fatalf("expected at least 3 violations, got %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] > got[i] {
			t.Errorf("violations not sorted: %v", got)
		}
	}
}

func TestName(t *testing.T) {
	tests := map[string]string{
		"data/fiis_suite.json": "fiis",
		"acoes_suite.json":     "acoes",
		"plain.json":           "plain",
		"golden.yaml":          "golden",
	}
	for in, want := range tests {
		if got := Name(in); got != want {
			t.Errorf("Name(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_suite.json", `{"suite": "a", "payloads": [{"question": "x"}]}`)
	writeFile(t, dir, "b_suite.json", `{"suite": "nope", "payloads": [{"question": "y"}]}`)
	writeFile(t, dir, "notes.json", `{}`)

	report, err := ValidateAll(dir, "")
	if err != nil {
		t.Fatalf("ValidateAll failed: %v", err)
	}
	if len(report.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(report.Files))
	}
	if report.OK() {
		t.Error("expected report to fail")
	}
	if report.Files[0].Suite != "a" || len(report.Files[0].Violations) != 0 {
		t.Errorf("unexpected first result: %+v", report.Files[0])
	}
	if len(report.Files[1].Violations) != 1 {
		t.Errorf("expected one violation for b, got %v", report.Files[1].Violations)
	}
}

func TestValidateAll_NoFiles(t *testing.T) {
	if _, err := ValidateAll(t.TempDir(), ""); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestLoadDir_Order(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "zeta_suite.json", `{"suite": "zeta", "payloads": [{"question": "z"}]}`)
	writeFile(t, dir, "alpha_suite.json", `{"suite": "alpha", "payloads": [{"question": "a"}]}`)

	suites, err := LoadDir(dir, "")
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(suites) != 2 || suites[0].Suite != "alpha" || suites[1].Suite != "zeta" {
		t.Errorf("unexpected order: %+v", suites)
	}
}

func TestParseSuiteData_Shapes(t *testing.T) {
	want := []models.Payload{
		{Question: "q1", ExpectedIntent: "i1", ExpectedEntity: "e1"},
		{Question: "q2"},
	}

	tests := []struct {
		name     string
		raw      any
		wantName string
	}{
		{
			name: "canonical",
			raw: map[string]any{
				"suite": "named",
				"payloads": []any{
					map[string]any{"question": "q1", "expected_intent": "i1", "expected_entity": "e1"},
					map[string]any{"question": "q2"},
				},
			},
			wantName: "named",
		},
		{
			name: "typed payloads",
			raw: map[string]any{
				"type": "routing",
				"payloads": []any{
					map[string]any{"question": "q1", "expected_intent": "i1", "expected_entity": "e1"},
					map[string]any{"question": "q2"},
				},
			},
			wantName: "fallback",
		},
		{
			name: "golden samples",
			raw: map[string]any{
				"type": "routing",
				"samples": []any{
					map[string]any{"question": "q1", "expected_intent": "i1", "expected_entity": "e1"},
					map[string]any{"question": "q2"},
				},
			},
			wantName: "fallback",
		},
		{
			name: "bare list with nested expectations",
			raw: []any{
				map[string]any{"question": " q1 ", "expected": map[string]any{
					"route": map[string]any{"intent": "i1", "entity": "e1"},
				}},
				map[string]any{"question": "q2", "expected_intent": ""},
			},
			wantName: "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSuiteData(tt.raw, "fallback")
			if err != nil {
				t.Fatalf("ParseSuiteData failed: %v", err)
			}
			if got.Suite != tt.wantName {
				t.Errorf("suite = %q, want %q", got.Suite, tt.wantName)
			}
			if diff := cmp.Diff(want, got.Payloads); diff != "" {
				t.Errorf("payloads mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseSuiteData_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{"scalar", "nope"},
		{"no list", map[string]any{"suite": "x"}},
		{"non-object item", []any{"q"}},
		{"missing question", []any{map[string]any{"expected_intent": "i"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSuiteData(tt.raw, "x"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadSuiteLenient_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "legacy_suite.yaml", `type: routing
samples:
  - question: quanto rendeu
    expected:
      route:
        intent: rendimentos
        entity: fiis_rendimentos
`)
	got, err := LoadSuiteLenient(path)
	if err != nil {
		t.Fatalf("LoadSuiteLenient failed: %v", err)
	}
	if got.Suite != "legacy" {
		t.Errorf("suite = %q, want legacy", got.Suite)
	}
	if len(got.Payloads) != 1 || got.Payloads[0].ExpectedEntity != "fiis_rendimentos" {
		t.Errorf("unexpected payloads: %+v", got.Payloads)
	}
}
