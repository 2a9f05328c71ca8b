package observability

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/askgate/internal/fileutil"
	"github.com/ShayCichocki/askgate/internal/logging"
)

//go:embed templates
var embedded embed.FS

// Default output locations, relative to the working directory.
const (
	DefaultConfigPath    = "data/ops/observability.yaml"
	DefaultDashboardsDir = "grafana/dashboards"
	DefaultRulesDir      = "prometheus"
)

// Kind is the artefact format.
type Kind string

const (
	KindDashboard Kind = "dashboard"
	KindRules     Kind = "rules"
)

// Target is one template and the artefact it renders to.
type Target struct {
	Name     string
	Kind     Kind
	Template string
}

// Targets lists every generated artefact in generation order.
var Targets = []Target{
	{Name: "ask_overview", Kind: KindDashboard, Template: "dashboards/ask_overview.json.tmpl"},
	{Name: "planner_routing", Kind: KindDashboard, Template: "dashboards/planner_routing.json.tmpl"},
	{Name: "cache_rag", Kind: KindDashboard, Template: "dashboards/cache_rag.json.tmpl"},
	{Name: "narrator", Kind: KindDashboard, Template: "dashboards/narrator.json.tmpl"},
	{Name: "recording_rules", Kind: KindRules, Template: "rules/recording_rules.yml.tmpl"},
	{Name: "alerting_rules", Kind: KindRules, Template: "rules/alerting_rules.yml.tmpl"},
}

// Path returns where t is written.
func (t Target) Path(dashboardsDir, rulesDir string) string {
	if t.Kind == KindDashboard {
		return filepath.Join(dashboardsDir, t.Name+".json")
	}
	return filepath.Join(rulesDir, t.Name+".yml")
}

// ArtefactPaths returns the path of every generated artefact.
func ArtefactPaths(dashboardsDir, rulesDir string) []string {
	paths := make([]string, 0, len(Targets))
	for _, t := range Targets {
		paths = append(paths, t.Path(dashboardsDir, rulesDir))
	}
	return paths
}

// GenerateOptions configures Generate.
type GenerateOptions struct {
	ConfigPath    string
	DashboardsDir string
	RulesDir      string
	// TemplatesDir replaces the embedded templates. It must have the same
	// dashboards/ and rules/ layout.
	TemplatesDir string
	Engine       Engine
	Logger       *zap.Logger
}

func (o *GenerateOptions) withDefaults() {
	if o.ConfigPath == "" {
		o.ConfigPath = DefaultConfigPath
	}
	if o.DashboardsDir == "" {
		o.DashboardsDir = DefaultDashboardsDir
	}
	if o.RulesDir == "" {
		o.RulesDir = DefaultRulesDir
	}
	if o.Engine == "" {
		o.Engine = EngineTemplate
	}
}

// Artefact is one written file.
type Artefact struct {
	Target Target
	Path   string
	Bytes  int
}

// Generate renders every target against the config and writes them. All
// targets are rendered and validated before the first write, so a broken
// template leaves the previous artefacts untouched.
func Generate(opts GenerateOptions) ([]Artefact, error) {
	opts.withDefaults()
	logger := logging.OrNop(opts.Logger)

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	templates, err := templateFS(opts.TemplatesDir)
	if err != nil {
		return nil, err
	}

	renderer := NewRenderer(cfg, opts.Engine)
	rendered := make([][]byte, len(Targets))
	for i, t := range Targets {
		src, err := fs.ReadFile(templates, t.Template)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", t.Template, err)
		}
		out, err := renderer.Render(t.Template, string(src))
		if err != nil {
			return nil, err
		}
		data := []byte(strings.TrimRight(out, "\n") + "\n")
		if err := validateArtefact(t, data); err != nil {
			return nil, err
		}
		rendered[i] = data
	}

	artefacts := make([]Artefact, 0, len(Targets))
	for i, t := range Targets {
		path := t.Path(opts.DashboardsDir, opts.RulesDir)
		if err := fileutil.WriteFileAtomic(path, rendered[i], 0644); err != nil {
			return artefacts, err
		}
		logger.Debug("wrote artefact", zap.String("path", path), zap.Int("bytes", len(rendered[i])))
		artefacts = append(artefacts, Artefact{Target: t, Path: path, Bytes: len(rendered[i])})
	}
	logger.Info("observability artefacts generated",
		zap.String("config", opts.ConfigPath),
		zap.String("engine", string(opts.Engine)),
		zap.Int("count", len(artefacts)))
	return artefacts, nil
}

func templateFS(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "templates")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("templates dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("templates dir %s is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

func validateArtefact(t Target, data []byte) error {
	switch t.Kind {
	case KindDashboard:
		if !json.Valid(data) {
			var v any
			err := json.Unmarshal(data, &v)
			return fmt.Errorf("rendered %s is not valid JSON: %w", t.Name, err)
		}
	case KindRules:
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("rendered %s is not valid YAML: %w", t.Name, err)
		}
	}
	return nil
}
