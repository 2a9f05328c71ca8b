package observability

import "strings"

// Namespace is the data every template is rendered against.
type Namespace map[string]any

// NewNamespace builds the template namespace:
//
//	bindings   logical key -> metric name
//	labels     logical key -> label name
//	thresholds nested numeric tree
//	variables  logical label key -> dashboard variable name
//	alerts     alert name -> {name, severity, for, summary, description}
func NewNamespace(cfg *Config) Namespace {
	bindings := make(map[string]any, len(cfg.Bindings))
	for k, v := range cfg.Bindings {
		bindings[k] = v
	}
	labels := make(map[string]any, len(cfg.Labels))
	variables := make(map[string]any, len(cfg.Labels))
	for k, v := range cfg.Labels {
		labels[k] = v
		variables[k] = variableName(k)
	}
	alerts := make(map[string]any, len(cfg.Alerts))
	for _, a := range cfg.Alerts {
		alerts[a.Name] = map[string]any{
			"name":        a.Name,
			"severity":    a.Severity,
			"for":         a.For,
			"summary":     a.Summary,
			"description": a.Description,
		}
	}
	thresholds := cfg.Thresholds
	if thresholds == nil {
		thresholds = map[string]any{}
	}
	return Namespace{
		"bindings":   bindings,
		"labels":     labels,
		"thresholds": thresholds,
		"variables":  variables,
		"alerts":     alerts,
	}
}

// variableName derives the Grafana variable for a label key.
func variableName(key string) string {
	return strings.ReplaceAll(key, "-", "_")
}

// PromQLFilter returns the promql_filter template function bound to cfg.
// Each key is mapped through labels to `label=~'$variable'`; unknown keys
// are skipped and no known key yields "{}".
func PromQLFilter(cfg *Config) func(keys ...string) string {
	return func(keys ...string) string {
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			label, ok := cfg.Labels[k]
			if !ok {
				continue
			}
			parts = append(parts, label+"=~'$"+variableName(k)+"'")
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
}
