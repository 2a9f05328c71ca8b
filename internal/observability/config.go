// Package observability renders Grafana dashboards and Prometheus rules
// from the single observability config.
package observability

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Required top-level sections of the config.
var RequiredSections = []string{"bindings", "labels", "thresholds", "alerts"}

// Alert is one entry of the alerts section.
type Alert struct {
	Name        string `yaml:"name"`
	Severity    string `yaml:"severity"`
	For         string `yaml:"for,omitempty"`
	Summary     string `yaml:"summary,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Config is the observability source of truth.
type Config struct {
	// Bindings map logical metric keys to Prometheus metric names.
	Bindings map[string]string `yaml:"bindings"`
	// Labels map logical label keys to Prometheus label names.
	Labels map[string]string `yaml:"labels"`
	// Thresholds is a tree of numeric constants.
	Thresholds map[string]any `yaml:"thresholds"`
	Alerts     []Alert        `yaml:"alerts"`
}

// InvalidConfigError reports missing sections and malformed entries.
type InvalidConfigError struct {
	Path     string
	Missing  []string
	Problems []string
}

func (e *InvalidConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing sections: "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return fmt.Sprintf("%s: invalid observability config: %s", e.Path, strings.Join(parts, "; "))
}

// LoadConfig reads and validates the config at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read observability config: %w", err)
	}
	return ParseConfig(path, data)
}

// ParseConfig validates raw config bytes. path is used in errors.
func ParseConfig(path string, data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: parse observability config: %w", path, err)
	}

	invalid := &InvalidConfigError{Path: path}
	for _, section := range RequiredSections {
		if v, ok := raw[section]; !ok || v == nil {
			invalid.Missing = append(invalid.Missing, section)
		}
	}
	if len(invalid.Missing) > 0 {
		return nil, invalid
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		invalid.Problems = append(invalid.Problems, err.Error())
		return nil, invalid
	}

	for _, key := range sortedKeys(cfg.Bindings) {
		if strings.TrimSpace(cfg.Bindings[key]) == "" {
			invalid.Problems = append(invalid.Problems, fmt.Sprintf("bindings.%s: empty metric name", key))
		}
	}
	for _, key := range sortedKeys(cfg.Labels) {
		if strings.TrimSpace(cfg.Labels[key]) == "" {
			invalid.Problems = append(invalid.Problems, fmt.Sprintf("labels.%s: empty label name", key))
		}
	}
	invalid.Problems = append(invalid.Problems, checkThresholds("thresholds", cfg.Thresholds)...)

	seen := make(map[string]bool)
	for i, a := range cfg.Alerts {
		switch {
		case strings.TrimSpace(a.Name) == "":
			invalid.Problems = append(invalid.Problems, fmt.Sprintf("alerts[%d]: name is required", i))
		case seen[a.Name]:
			invalid.Problems = append(invalid.Problems, fmt.Sprintf("alerts[%d]: duplicate name %q", i, a.Name))
		}
		seen[a.Name] = true
		if strings.TrimSpace(a.Severity) == "" {
			invalid.Problems = append(invalid.Problems, fmt.Sprintf("alerts[%d]: severity is required", i))
		}
	}

	if len(invalid.Problems) > 0 {
		return nil, invalid
	}
	return &cfg, nil
}

func checkThresholds(prefix string, node map[string]any) []string {
	var problems []string
	for _, key := range sortedKeys(node) {
		path := prefix + "." + key
		switch v := node[key].(type) {
		case map[string]any:
			problems = append(problems, checkThresholds(path, v)...)
		case int, float64:
		default:
			problems = append(problems, fmt.Sprintf("%s: threshold must be numeric, got %T", path, v))
		}
	}
	return problems
}

// FlattenThresholds returns every threshold leaf by dotted key
// (without the "thresholds." prefix).
func (c *Config) FlattenThresholds() map[string]float64 {
	out := make(map[string]float64)
	flatten("", c.Thresholds, out)
	return out
}

func flatten(prefix string, node map[string]any, out map[string]float64) {
	for key, v := range node {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch n := v.(type) {
		case map[string]any:
			flatten(path, n, out)
		case int:
			out[path] = float64(n)
		case float64:
			out[path] = n
		}
	}
}

// ThresholdKeys returns the flattened threshold keys, sorted.
func (c *Config) ThresholdKeys() []string {
	return sortedKeys(c.FlattenThresholds())
}

// ValueForms lists the textual forms a threshold value may take once
// rendered: integer, %g, shortest float and one decimal.
func ValueForms(v float64) []string {
	forms := []string{
		fmt.Sprintf("%g", v),
		strings.TrimSuffix(fmt.Sprintf("%v", v), ".0"),
		fmt.Sprintf("%.1f", v),
	}
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		forms = append([]string{fmt.Sprintf("%d", int64(v))}, forms...)
	}
	seen := make(map[string]bool)
	out := forms[:0]
	for _, f := range forms {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// AlertNames returns the configured alert names in config order.
func (c *Config) AlertNames() []string {
	names := make([]string, 0, len(c.Alerts))
	for _, a := range c.Alerts {
		names = append(names, a.Name)
	}
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
