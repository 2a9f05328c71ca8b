// Package obsaudit checks the generated dashboards and Prometheus rules
// against the observability config they were rendered from.
package obsaudit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/askgate/internal/logging"
	"github.com/ShayCichocki/askgate/internal/observability"
)

// Check names the rule a finding violates.
type Check string

// Checks, in report order.
const (
	CheckMissing     Check = "missing"
	CheckConfig      Check = "config"
	CheckStale       Check = "stale"
	CheckPlaceholder Check = "placeholder"
	CheckParse       Check = "parse"
	CheckBinding     Check = "binding"
	CheckThreshold   Check = "threshold"
	CheckRuleRef     Check = "rule_ref"
)

var checkOrder = map[Check]int{
	CheckMissing:     0,
	CheckConfig:      1,
	CheckStale:       2,
	CheckPlaceholder: 3,
	CheckParse:       4,
	CheckBinding:     5,
	CheckThreshold:   6,
	CheckRuleRef:     7,
}

// PlaceholderTokens must never appear in a generated artefact.
var PlaceholderTokens = []string{"__PLACEHOLDER__", "TODO", "RENAME_ME"}

var unrenderedToken = regexp.MustCompile(`\{\{-?\s*\.?(bindings|thresholds|labels|variables|alerts|promql_filter)\b`)

// recordingRef matches metric identifiers that follow the level:metric:ops
// recording rule naming convention.
var recordingRef = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(?::[A-Za-z0-9_]+)+`)

// rangeOrString matches range and subquery selectors and quoted strings,
// none of which can hold a metric name.
var rangeOrString = regexp.MustCompile("\\[[^\\]]*\\]|\"(?:[^\"\\\\]|\\\\.)*\"|'(?:[^'\\\\]|\\\\.)*'|`[^`]*`")

// recordingRefs returns the recording rule names an expression reads.
func recordingRefs(expr string) []string {
	expr = rangeOrString.ReplaceAllStringFunc(expr, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
	var refs []string
	for _, loc := range recordingRef.FindAllStringIndex(expr, -1) {
		if loc[0] > 0 && isWordByte(expr[loc[0]-1]) {
			continue
		}
		refs = append(refs, expr[loc[0]:loc[1]])
	}
	return refs
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Finding is one audit failure.
type Finding struct {
	Check   Check  `json:"check"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Check, f.Path, f.Message)
}

// Options configures Audit.
type Options struct {
	ConfigPath    string
	DashboardsDir string
	RulesDir      string
	Logger        *zap.Logger
}

// Report is the audit outcome.
type Report struct {
	ConfigPath string    `json:"config"`
	Artefacts  []string  `json:"artefacts"`
	Findings   []Finding `json:"findings"`
}

// OK reports whether the audit found nothing.
func (r *Report) OK() bool { return len(r.Findings) == 0 }

// Render prints the findings, one per line, followed by a verdict.
func (r *Report) Render(w io.Writer) {
	for _, f := range r.Findings {
		fmt.Fprintf(w, "  %s\n", f)
	}
	if r.OK() {
		fmt.Fprintf(w, "observability artefacts in sync with %s (%d files)\n", r.ConfigPath, len(r.Artefacts))
		return
	}
	fmt.Fprintf(w, "%d finding(s)\n", len(r.Findings))
}

type artefact struct {
	path      string
	dashboard bool
	data      []byte
}

type auditor struct {
	opts     Options
	logger   *zap.Logger
	findings []Finding
}

func (a *auditor) add(check Check, path, format string, args ...any) {
	a.findings = append(a.findings, Finding{Check: check, Path: path, Message: fmt.Sprintf(format, args...)})
}

// Audit runs every check and returns the deduplicated, sorted findings.
// Checks that need the config or an artefact's content are skipped for
// files that could not be read; the missing file is itself a finding.
func Audit(opts Options) *Report {
	if opts.ConfigPath == "" {
		opts.ConfigPath = observability.DefaultConfigPath
	}
	if opts.DashboardsDir == "" {
		opts.DashboardsDir = observability.DefaultDashboardsDir
	}
	if opts.RulesDir == "" {
		opts.RulesDir = observability.DefaultRulesDir
	}
	a := &auditor{opts: opts, logger: logging.OrNop(opts.Logger)}
	report := &Report{ConfigPath: opts.ConfigPath}

	configInfo, err := os.Stat(opts.ConfigPath)
	if err != nil {
		a.add(CheckMissing, opts.ConfigPath, "observability config is missing")
	}

	var artefacts []artefact
	for _, t := range observability.Targets {
		path := t.Path(opts.DashboardsDir, opts.RulesDir)
		report.Artefacts = append(report.Artefacts, path)
		info, err := os.Stat(path)
		if err != nil {
			a.add(CheckMissing, path, "required artefact is missing; run `askgate obs generate`")
			continue
		}
		if configInfo != nil && info.ModTime().Before(configInfo.ModTime()) {
			a.add(CheckStale, path, "older than %s; regenerate with `askgate obs generate`", opts.ConfigPath)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			a.add(CheckMissing, path, "unreadable: %v", err)
			continue
		}
		artefacts = append(artefacts, artefact{path: path, dashboard: t.Kind == observability.KindDashboard, data: data})
	}

	for _, art := range artefacts {
		a.checkTokens(art)
		a.checkParse(art)
	}

	if configInfo != nil {
		cfg, err := observability.LoadConfig(opts.ConfigPath)
		if err != nil {
			a.add(CheckConfig, opts.ConfigPath, "%v", err)
		} else {
			a.checkBindings(cfg, artefacts)
			a.checkThresholds(cfg, artefacts)
			a.checkRules(cfg, artefacts)
		}
	}

	report.Findings = normalize(a.findings)
	a.logger.Debug("observability audit finished",
		zap.Int("artefacts", len(artefacts)),
		zap.Int("findings", len(report.Findings)))
	return report
}

func (a *auditor) checkTokens(art artefact) {
	text := string(art.data)
	for _, tok := range PlaceholderTokens {
		if strings.Contains(text, tok) {
			a.add(CheckPlaceholder, art.path, "contains placeholder token %q", tok)
		}
	}
	for _, m := range unrenderedToken.FindAllString(text, -1) {
		a.add(CheckPlaceholder, art.path, "contains unrendered template token %q", m)
	}
}

func (a *auditor) checkParse(art artefact) {
	var v any
	if art.dashboard {
		if err := json.Unmarshal(art.data, &v); err != nil {
			a.add(CheckParse, art.path, "invalid JSON: %v", err)
		}
		return
	}
	if err := yaml.Unmarshal(art.data, &v); err != nil {
		a.add(CheckParse, art.path, "invalid YAML: %v", err)
	}
}

func (a *auditor) checkBindings(cfg *observability.Config, artefacts []artefact) {
	keys := make([]string, 0, len(cfg.Bindings))
	for k := range cfg.Bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !anyContains(artefacts, cfg.Bindings[key]) {
			a.add(CheckBinding, a.opts.ConfigPath, "bindings.%s (%s) is not referenced by any dashboard or rule", key, cfg.Bindings[key])
		}
	}
}

func (a *auditor) checkThresholds(cfg *observability.Config, artefacts []artefact) {
	values := cfg.FlattenThresholds()
	for _, key := range cfg.ThresholdKeys() {
		if anyContains(artefacts, key) {
			continue
		}
		found := false
		for _, form := range observability.ValueForms(values[key]) {
			if anyContains(artefacts, form) {
				found = true
				break
			}
		}
		if !found {
			a.add(CheckThreshold, a.opts.ConfigPath, "thresholds.%s (%v) does not appear in any dashboard or rule", key, values[key])
		}
	}
}

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Record string `yaml:"record"`
			Alert  string `yaml:"alert"`
			Expr   string `yaml:"expr"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

// checkRules verifies that every recording rule an alert reads is defined
// and that every configured alert is emitted.
func (a *auditor) checkRules(cfg *observability.Config, artefacts []artefact) {
	records := make(map[string]bool)
	alerts := make(map[string]bool)
	type alertExpr struct{ path, name, expr string }
	var exprs []alertExpr
	sawRules := false

	for _, art := range artefacts {
		if art.dashboard {
			continue
		}
		var rf ruleFile
		if err := yaml.Unmarshal(art.data, &rf); err != nil {
			continue
		}
		sawRules = true
		for _, g := range rf.Groups {
			for _, r := range g.Rules {
				if r.Record != "" {
					records[r.Record] = true
				}
				if r.Alert != "" {
					alerts[r.Alert] = true
					exprs = append(exprs, alertExpr{path: art.path, name: r.Alert, expr: r.Expr})
				}
			}
		}
	}
	if !sawRules {
		return
	}

	for _, e := range exprs {
		for _, ref := range recordingRefs(e.expr) {
			if !records[ref] {
				a.add(CheckRuleRef, e.path, "alert %s reads undefined recording rule %s", e.name, ref)
			}
		}
	}
	alertPath := observability.Target{Name: "alerting_rules", Kind: observability.KindRules}.Path(a.opts.DashboardsDir, a.opts.RulesDir)
	for _, name := range cfg.AlertNames() {
		if !alerts[name] {
			a.add(CheckRuleRef, alertPath, "configured alert %s is not defined", name)
		}
	}
}

func anyContains(artefacts []artefact, needle string) bool {
	for _, art := range artefacts {
		if strings.Contains(string(art.data), needle) {
			return true
		}
	}
	return false
}

func normalize(findings []Finding) []Finding {
	seen := make(map[Finding]bool, len(findings))
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Check != out[j].Check {
			return checkOrder[out[i].Check] < checkOrder[out[j].Check]
		}
		if out[i].Path != out[j].Path {
			return filepath.ToSlash(out[i].Path) < filepath.ToSlash(out[j].Path)
		}
		return out[i].Message < out[j].Message
	})
	return out
}
