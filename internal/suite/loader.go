package suite

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/askgate/internal/walk"
	"github.com/ShayCichocki/askgate/pkg/models"
)

// DefaultGlob matches every suite file in a directory.
const DefaultGlob = "*" + FileSuffix

// Files returns the suite files in dir matching glob, sorted by name.
func Files(dir, glob string) ([]string, error) {
	if glob == "" {
		glob = DefaultGlob
	}
	matches, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", glob, err)
	}
	files := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadDir strict-loads every suite in dir, in file name order.
// The first contract failure aborts the load.
func LoadDir(dir, glob string) ([]*models.Suite, error) {
	files, err := Files(dir, glob)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no suite files matching %s in %s", globOrDefault(glob), dir)
	}
	suites := make([]*models.Suite, 0, len(files))
	for _, f := range files {
		s, err := LoadSuite(f)
		if err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}
	return suites, nil
}

// FileResult is the validation outcome of one suite file.
type FileResult struct {
	Path       string
	Suite      string
	Payloads   int
	Violations []string
}

// Report aggregates ValidateAll results.
type Report struct {
	Files []FileResult
}

// OK reports whether every file passed.
func (r *Report) OK() bool {
	return r.ViolationCount() == 0
}

// ViolationCount is the total number of violations across files.
func (r *Report) ViolationCount() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Violations)
	}
	return n
}

// ValidateAll checks every suite in dir and accumulates violations instead
// of stopping at the first invalid file.
func ValidateAll(dir, glob string) (*Report, error) {
	files, err := Files(dir, glob)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no suite files matching %s in %s", globOrDefault(glob), dir)
	}

	report := &Report{}
	for _, f := range files {
		res := FileResult{Path: f}
		s, err := LoadSuite(f)
		var ce *ContractError
		switch {
		case errors.As(err, &ce):
			res.Violations = ce.Violations
		case err != nil:
			res.Violations = []string{err.Error()}
		default:
			res.Suite = s.Suite
			res.Payloads = len(s.Payloads)
		}
		report.Files = append(report.Files, res)
	}
	return report, nil
}

// LoadSuiteLenient reads a suite in any accepted shape. Files ending in
// .yaml or .yml are decoded as YAML, everything else as JSON.
func LoadSuiteLenient(path string) (*models.Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite %s: %w", path, err)
	}

	var raw any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse suite %s: %w", path, err)
	}

	s, err := ParseSuiteData(raw, Name(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSuiteData converts a decoded suite document into the canonical form.
// Accepted shapes:
//
//	{"suite": ..., "payloads": [...]}
//	{"type": ..., "payloads": [...]}
//	{"type": ..., "samples": [...]}
//	[...]
//
// Expectations may be flat (expected_intent, expected_entity) or nested
// under expected.route.{intent,entity}. name is used when the document
// carries no suite name.
func ParseSuiteData(raw any, name string) (*models.Suite, error) {
	s := &models.Suite{Suite: name}

	var items []any
	switch doc := raw.(type) {
	case []any:
		items = doc
	case map[string]any:
		if v := walk.String(doc, "suite"); v != nil && strings.TrimSpace(*v) != "" {
			s.Suite = strings.TrimSpace(*v)
		}
		if v := walk.String(doc, "description"); v != nil {
			s.Description = strings.TrimSpace(*v)
		}
		list, ok := walk.First(doc, "payloads", LegacyKey).([]any)
		if !ok {
			return nil, errors.New("suite document has no payloads or samples list")
		}
		items = list
	default:
		return nil, fmt.Errorf("unsupported suite document of type %T", raw)
	}

	s.Payloads = make([]models.Payload, 0, len(items))
	for i, item := range items {
		p, err := parsePayload(item)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		s.Payloads = append(s.Payloads, p)
	}
	return s, nil
}

func parsePayload(item any) (models.Payload, error) {
	if _, ok := item.(map[string]any); !ok {
		return models.Payload{}, fmt.Errorf("expected an object, got %T", item)
	}
	q := walk.String(item, "question")
	if q == nil || strings.TrimSpace(*q) == "" {
		return models.Payload{}, errors.New("missing question")
	}
	p := models.Payload{Question: *q}
	if v := walk.String(item, "expected_intent", "expected.route.intent"); v != nil {
		p.ExpectedIntent = *v
	}
	if v := walk.String(item, "expected_entity", "expected.route.entity"); v != nil {
		p.ExpectedEntity = *v
	}
	return p.Trimmed(), nil
}

func globOrDefault(glob string) string {
	if glob == "" {
		return DefaultGlob
	}
	return glob
}
