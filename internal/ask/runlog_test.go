package ask

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/askgate/pkg/models"
)

func sampleRows() []models.ProbeRow {
	return []models.ProbeRow{
		{
			Idx:            0,
			Question:       `qual o "CNPJ", do HGLG11?`,
			ExpectedIntent: ptr("cadastro"),
			ExpectedEntity: ptr("fiis_cadastro"),
			HTTPStatus:     ptr(200),
			StatusReason:   ptr("ok"),
			ChosenIntent:   ptr("cadastro"),
			ChosenEntity:   ptr("fiis_cadastro"),
			PlannerScore:   ptr(0.875),
			GateAccepted:   ptr(true),
			RowsTotal:      ptr(1),
			CacheHit:       ptr(false),
			CacheTTL:       ptr(300.0),
			LatencyMS:      12.345,
			SuiteStatus:    models.StatusPass,
		},
		{
			Idx:          1,
			Question:     "123",
			RequestError: ptr(ErrReadTimeout),
			LatencyMS:    30000,
			SuiteStatus:  models.StatusError,
		},
	}
}

func TestRunLogName(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600))
	got := RunLogName("probe", "0f8e2b1c-aaaa-bbbb-cccc-000000000000", now)
	if got != "probe_20260304T040607Z_0f8e2b1c" {
		t.Errorf("RunLogName = %q", got)
	}
}

func TestRunLog_WritesJSONLAndCSV(t *testing.T) {
	dir := t.TempDir()
	log, err := CreateRunLog(dir, "probe", "abcdef123456", time.Now(), true)
	if err != nil {
		t.Fatalf("CreateRunLog failed: %v", err)
	}
	for _, r := range sampleRows() {
		if err := log.WriteRow(r); err != nil {
			t.Fatalf("WriteRow failed: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	jsonl, err := os.ReadFile(log.JSONLPath())
	if err != nil {
		t.Fatal(err)
	}
	if n := bytes.Count(jsonl, []byte("\n")); n != 2 {
		t.Errorf("expected 2 jsonl lines, got %d", n)
	}
	if !strings.HasPrefix(string(jsonl), `{"idx":0,"question":`) {
		t.Errorf("unexpected jsonl start: %s", jsonl[:40])
	}

	csvData, err := os.ReadFile(log.CSVPath())
	if err != nil {
		t.Fatal(err)
	}
	header := strings.SplitN(string(csvData), "\n", 2)[0]
	if !strings.HasPrefix(header, "idx,question,expected_intent,expected_entity,http_status") {
		t.Errorf("unexpected csv header: %s", header)
	}
	if filepath.Dir(log.CSVPath()) != dir {
		t.Errorf("csv written outside run dir: %s", log.CSVPath())
	}

	// The CSV written alongside must equal a conversion of the JSONL.
	var converted bytes.Buffer
	if err := JSONLToCSV(bytes.NewReader(jsonl), &converted); err != nil {
		t.Fatalf("JSONLToCSV failed: %v", err)
	}
	if converted.String() != string(csvData) {
		t.Errorf("csv mismatch:\nwritten:\n%s\nconverted:\n%s", csvData, converted.String())
	}
}

func TestJSONLCSVRoundTrip(t *testing.T) {
	var jsonl bytes.Buffer
	for _, r := range sampleRows() {
		line, err := encodeLine(r)
		if err != nil {
			t.Fatal(err)
		}
		jsonl.Write(line)
	}

	var csvOut bytes.Buffer
	if err := JSONLToCSV(bytes.NewReader(jsonl.Bytes()), &csvOut); err != nil {
		t.Fatalf("JSONLToCSV failed: %v", err)
	}

	var back bytes.Buffer
	if err := CSVToJSONL(bytes.NewReader(csvOut.Bytes()), &back); err != nil {
		t.Fatalf("CSVToJSONL failed: %v", err)
	}
	if back.String() != jsonl.String() {
		t.Errorf("jsonl round trip mismatch:\nwant:\n%s\ngot:\n%s", jsonl.String(), back.String())
	}

	var csvAgain bytes.Buffer
	if err := JSONLToCSV(bytes.NewReader(back.Bytes()), &csvAgain); err != nil {
		t.Fatalf("JSONLToCSV failed: %v", err)
	}
	if csvAgain.String() != csvOut.String() {
		t.Errorf("csv round trip mismatch:\nwant:\n%s\ngot:\n%s", csvOut.String(), csvAgain.String())
	}
}

func TestJSONLCSVRoundTrip_EmptyAndQuotedStrings(t *testing.T) {
	empty := ""
	rows := []models.ProbeRow{
		{Idx: 0, Question: "", ChosenIntent: &empty, SuiteStatus: models.StatusSkip},
		{Idx: 1, Question: `"quoted" question`, SuiteStatus: models.StatusSkip},
	}
	var jsonl bytes.Buffer
	for _, r := range rows {
		line, err := encodeLine(r)
		if err != nil {
			t.Fatal(err)
		}
		jsonl.Write(line)
	}

	var csvOut bytes.Buffer
	if err := JSONLToCSV(bytes.NewReader(jsonl.Bytes()), &csvOut); err != nil {
		t.Fatalf("JSONLToCSV failed: %v", err)
	}
	var back bytes.Buffer
	if err := CSVToJSONL(bytes.NewReader(csvOut.Bytes()), &back); err != nil {
		t.Fatalf("CSVToJSONL failed: %v", err)
	}
	if back.String() != jsonl.String() {
		t.Errorf("jsonl round trip mismatch:\nwant:\n%s\ngot:\n%s", jsonl.String(), back.String())
	}

	var decoded models.ProbeRow
	if err := json.Unmarshal(bytes.SplitN(back.Bytes(), []byte("\n"), 2)[0], &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.ChosenIntent == nil || *decoded.ChosenIntent != "" {
		t.Errorf("empty chosen_intent decoded as %v", decoded.ChosenIntent)
	}
	if decoded.ChosenEntity != nil {
		t.Errorf("null chosen_entity decoded as %q", *decoded.ChosenEntity)
	}
}

func TestCSVToJSONL_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := CSVToJSONL(strings.NewReader(""), &out); err != nil {
		t.Fatalf("CSVToJSONL failed: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %q", out.String())
	}
}

func TestReadQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.txt")
	if err := os.WriteFile(path, []byte("# header\nfirst\n\n  second  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadQuestions(path)
	if err != nil {
		t.Fatalf("ReadQuestions failed: %v", err)
	}
	if len(got) != 2 || got[0].Question != "first" || got[1].Question != "second" {
		t.Errorf("unexpected questions: %+v", got)
	}
}
