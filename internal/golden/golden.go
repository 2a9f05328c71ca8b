// Package golden turns human-curated YAML golden sets into the canonical
// JSON consumed by the quality tooling.
package golden

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/askgate/internal/fileutil"
	"github.com/ShayCichocki/askgate/internal/logging"
	"github.com/ShayCichocki/askgate/pkg/models"
)

// DefaultType is used when the input does not declare one.
const DefaultType = models.RoutingSampleType

// ErrConflictingModes is returned when check and dry-run are both requested.
var ErrConflictingModes = errors.New("--check and --dry-run are mutually exclusive")

// Document is the canonical golden JSON.
type Document struct {
	Type    string           `json:"type"`
	Samples []models.Payload `json:"samples"`
}

// ValidationError lists every invalid sample of a golden set.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid golden set: " + strings.Join(e.Problems, "; ")
}

type yamlSample struct {
	Question       string `yaml:"question"`
	ExpectedIntent string `yaml:"expected_intent"`
	ExpectedEntity string `yaml:"expected_entity,omitempty"`
}

type yamlDocument struct {
	Type    string       `yaml:"type"`
	Samples []yamlSample `yaml:"samples"`
}

// Parse decodes and validates a YAML golden set. Every field is trimmed.
// The input is either {type?, samples: [...]} or a bare list of samples.
func Parse(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse golden yaml: %w", err)
	}

	doc := &Document{Type: DefaultType}
	var items []any
	switch v := raw.(type) {
	case map[string]any:
		if t, ok := v["type"].(string); ok && strings.TrimSpace(t) != "" {
			doc.Type = strings.TrimSpace(t)
		}
		list, ok := v["samples"].([]any)
		if !ok && v["samples"] != nil {
			return nil, &ValidationError{Problems: []string{"samples must be a list"}}
		}
		items = list
	case []any:
		items = v
	case nil:
	default:
		return nil, &ValidationError{Problems: []string{"golden root must be a mapping or a list"}}
	}

	var problems []string
	doc.Samples = make([]models.Payload, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			problems = append(problems, fmt.Sprintf("samples[%d]: must be a mapping", i))
			continue
		}
		p := models.Payload{
			Question:       scalar(m["question"]),
			ExpectedIntent: scalar(m["expected_intent"]),
			ExpectedEntity: scalar(m["expected_entity"]),
		}.Trimmed()
		if p.Question == "" {
			problems = append(problems, fmt.Sprintf("samples[%d].question: required", i))
		}
		if p.ExpectedIntent == "" {
			problems = append(problems, fmt.Sprintf("samples[%d].expected_intent: required", i))
		}
		doc.Samples = append(doc.Samples, p)
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return doc, nil
}

func scalar(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// Sort orders samples by case-folded (intent, entity, question), keeping
// input order for ties. Original casing is preserved.
func Sort(samples []models.Payload) {
	fold := cases.Fold()
	type key struct{ intent, entity, question string }
	type entry struct {
		key     key
		payload models.Payload
	}
	entries := make([]entry, len(samples))
	for i, p := range samples {
		entries[i] = entry{
			key: key{
				intent:   fold.String(p.ExpectedIntent),
				entity:   fold.String(p.ExpectedEntity),
				question: fold.String(p.Question),
			},
			payload: p,
		}
	}
	sort.SliceStable(entries, func(a, b int) bool {
		ka, kb := entries[a].key, entries[b].key
		if ka.intent != kb.intent {
			return ka.intent < kb.intent
		}
		if ka.entity != kb.entity {
			return ka.entity < kb.entity
		}
		return ka.question < kb.question
	})
	for i, e := range entries {
		samples[i] = e.payload
	}
}

// Normalize runs the whole pipeline on YAML input and returns the canonical
// JSON bytes.
func Normalize(data []byte) ([]byte, error) {
	_, out, err := render(data)
	return out, err
}

func render(data []byte) (*Document, []byte, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}
	Sort(doc.Samples)
	out, err := fileutil.MarshalJSON(doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, out, nil
}

// ToYAML renders canonical golden JSON back to YAML. Normalizing the result
// yields the original JSON.
func ToYAML(jsonData []byte) ([]byte, error) {
	var doc Document
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("parse golden json: %w", err)
	}
	out := yamlDocument{Type: doc.Type, Samples: make([]yamlSample, 0, len(doc.Samples))}
	for _, s := range doc.Samples {
		out.Samples = append(out.Samples, yamlSample{
			Question:       s.Question,
			ExpectedIntent: s.ExpectedIntent,
			ExpectedEntity: s.ExpectedEntity,
		})
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode golden yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Options configures Run.
type Options struct {
	In     string
	Out    string
	Check  bool
	DryRun bool
	// Diff receives the unified diff in dry-run mode.
	Diff   io.Writer
	Logger *zap.Logger
}

// Result describes what Run did.
type Result struct {
	Samples  int
	UpToDate bool
	Written  bool
}

// Run normalizes opts.In and writes, checks or diffs opts.Out.
func Run(opts Options) (*Result, error) {
	if opts.Check && opts.DryRun {
		return nil, ErrConflictingModes
	}
	log := logging.OrNop(opts.Logger)

	input, err := os.ReadFile(opts.In)
	if err != nil {
		return nil, fmt.Errorf("read golden %s: %w", opts.In, err)
	}
	doc, rendered, err := render(input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.In, err)
	}

	current, err := os.ReadFile(opts.Out)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", opts.Out, err)
	}

	res := &Result{Samples: len(doc.Samples), UpToDate: bytes.Equal(current, rendered)}

	switch {
	case opts.Check:
		log.Debug("golden check", zap.String("out", opts.Out), zap.Bool("up_to_date", res.UpToDate))
		return res, nil
	case opts.DryRun:
		if opts.Diff != nil && !res.UpToDate {
			diff, err := UnifiedDiff(opts.Out, current, rendered)
			if err != nil {
				return nil, err
			}
			if _, err := io.WriteString(opts.Diff, diff); err != nil {
				return nil, err
			}
		}
		return res, nil
	}

	if err := fileutil.WriteFileAtomic(opts.Out, rendered, 0644); err != nil {
		return nil, err
	}
	res.Written = true
	log.Info("golden written", zap.String("out", opts.Out), zap.Int("samples", res.Samples))
	return res, nil
}

// UnifiedDiff renders the change from current to rendered for path.
func UnifiedDiff(path string, current, rendered []byte) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(current)),
		B:        difflib.SplitLines(string(rendered)),
		FromFile: path,
		ToFile:   path + " (normalized)",
		Context:  3,
	})
}
