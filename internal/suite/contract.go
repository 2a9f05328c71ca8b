// Package suite loads and validates quality suites.
//
// Suites are written in exactly one shape (contract v2, enforced by
// LoadSuite) but read permissively from older fixtures (ParseSuiteData).
package suite

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ShayCichocki/askgate/pkg/models"
)

// FileSuffix is the file name suffix of every suite file.
const FileSuffix = "_suite.json"

// LegacyKey is the pre-v2 payload list key, rejected by the contract.
const LegacyKey = "samples"

//go:embed suite.v2.schema.json
var schemaSource string

const schemaURL = "https://askgate.dev/schemas/suite.v2.schema.json"

var contractSchema = jsonschema.MustCompileString(schemaURL, schemaSource)

// ContractError lists every contract violation found in one suite file.
type ContractError struct {
	Path       string
	Violations []string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: invalid suite contract: %s", e.Path, strings.Join(e.Violations, "; "))
}

// IsContractError reports whether err wraps a *ContractError.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// Name returns the suite name implied by a file path: the base name
// without extension and without the "_suite" suffix.
func Name(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, "_suite")
}

// LoadSuite reads a suite file and enforces the v2 contract.
func LoadSuite(path string) (*models.Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite %s: %w", path, err)
	}
	return ParseSuite(path, data)
}

// ParseSuite enforces the v2 contract on raw suite bytes. path is used for
// the stem check and in errors.
func ParseSuite(path string, data []byte) (*models.Suite, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, &ContractError{Path: path, Violations: []string{"invalid JSON: " + err.Error()}}
	}

	if violations := Violations(path, raw); len(violations) > 0 {
		return nil, &ContractError{Path: path, Violations: violations}
	}

	var s models.Suite
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode suite %s: %w", path, err)
	}
	s.Suite = strings.TrimSpace(s.Suite)
	s.Description = strings.TrimSpace(s.Description)
	for i := range s.Payloads {
		s.Payloads[i] = s.Payloads[i].Trimmed()
	}
	return &s, nil
}

// Violations returns every contract violation of a decoded suite document,
// sorted. An empty result means the document is valid.
func Violations(path string, raw any) []string {
	root, ok := raw.(map[string]any)
	if !ok {
		return []string{"root must be a JSON object"}
	}

	var violations []string
	if _, legacy := root[LegacyKey]; legacy {
		violations = append(violations, fmt.Sprintf("legacy key %q is not allowed, use \"payloads\"", LegacyKey))
	}
	if name, ok := root["suite"].(string); ok && strings.TrimSpace(name) != "" {
		if want := Name(path); strings.TrimSpace(name) != want {
			violations = append(violations, fmt.Sprintf("suite %q must match file name %q", name, want))
		}
	}

	if err := contractSchema.Validate(raw); err != nil {
		violations = append(violations, schemaViolations(err)...)
	}

	sort.Strings(violations)
	return dedupe(violations)
}

// schemaViolations flattens a validation error tree into one line per leaf.
func schemaViolations(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var out []string
	var visit func(e *jsonschema.ValidationError)
	visit = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			visit(c)
		}
	}
	visit(ve)
	return out
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i > 0 && s == sorted[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
