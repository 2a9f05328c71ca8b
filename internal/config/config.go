// Package config handles configuration loading for askgate.
// It supports XDG config paths, project-level overrides, environment
// variables and an explicit --config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectConfigName is the per-repository override file searched upwards from cwd.
const ProjectConfigName = ".askgate.yaml"

// EnvPrefix prefixes every environment override (ASKGATE_ASK_BASE_URL -> ask.base_url).
const EnvPrefix = "ASKGATE"

// Config holds all configuration for askgate.
type Config struct {
	Ask   AskConfig   `mapstructure:"ask"`
	Paths PathsConfig `mapstructure:"paths"`
	Log   LogConfig   `mapstructure:"log"`
}

// AskConfig holds the target service and the identity used for probes.
type AskConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ConversationID string        `mapstructure:"conversation_id"`
	ClientID       string        `mapstructure:"client_id"`
	Nickname       string        `mapstructure:"nickname"`
	TypeUser       string        `mapstructure:"type_user"`
	Token          string        `mapstructure:"token"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Explain        bool          `mapstructure:"explain"`
	RoutingOnly    bool          `mapstructure:"routing_only"`
}

// PathsConfig holds the repository locations of inputs and derived artefacts.
type PathsConfig struct {
	SuiteDir            string `mapstructure:"suite_dir"`
	SuiteGlob           string `mapstructure:"suite_glob"`
	RoutingSamples      string `mapstructure:"routing_samples"`
	Misses              string `mapstructure:"misses"`
	ObservabilityConfig string `mapstructure:"observability_config"`
	DashboardsDir       string `mapstructure:"dashboards_dir"`
	RulesDir            string `mapstructure:"rules_dir"`
	RunsDir             string `mapstructure:"runs_dir"`
	HistoryDB           string `mapstructure:"history_db"`
	ShadowLogsDir       string `mapstructure:"shadow_logs_dir"`
	EntitiesDir         string `mapstructure:"entities_dir"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration with this precedence (highest to lowest):
// 1. explicitPath, when non-empty
// 2. Environment variables (ASKGATE_*, ASKGATE_TOKEN)
// 3. Project config (.askgate.yaml in current directory or parent)
// 4. User config (~/.config/askgate/config.yaml)
// 5. Built-in defaults
func Load(explicitPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		if err := mergeFile(v, projectConfig); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("ask.token", EnvPrefix+"_TOKEN", EnvPrefix+"_ASK_TOKEN")

	if explicitPath != "" {
		if err := overrideFile(v, explicitPath); err != nil {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path on top of the
// defaults only (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func readFile(path string) (*viper.Viper, error) {
	fileViper := viper.New()
	fileViper.SetConfigFile(path)
	if err := fileViper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return fileViper, nil
}

func mergeFile(v *viper.Viper, path string) error {
	fileViper, err := readFile(path)
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(fileViper.AllSettings()); err != nil {
		return fmt.Errorf("merging config %s: %w", path, err)
	}
	return nil
}

// overrideFile applies every key of path as an override, above env.
func overrideFile(v *viper.Viper, path string) error {
	fileViper, err := readFile(path)
	if err != nil {
		return err
	}
	for _, key := range fileViper.AllKeys() {
		v.Set(key, fileViper.Get(key))
	}
	return nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Ask.Token = expandEnv(cfg.Ask.Token)
	cfg.Ask.BaseURL = expandEnv(cfg.Ask.BaseURL)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("ask.base_url", d.Ask.BaseURL)
	v.SetDefault("ask.conversation_id", d.Ask.ConversationID)
	v.SetDefault("ask.client_id", d.Ask.ClientID)
	v.SetDefault("ask.nickname", d.Ask.Nickname)
	v.SetDefault("ask.type_user", d.Ask.TypeUser)
	v.SetDefault("ask.token", d.Ask.Token)
	v.SetDefault("ask.timeout", d.Ask.Timeout.String())
	v.SetDefault("ask.explain", d.Ask.Explain)
	v.SetDefault("ask.routing_only", d.Ask.RoutingOnly)

	v.SetDefault("paths.suite_dir", d.Paths.SuiteDir)
	v.SetDefault("paths.suite_glob", d.Paths.SuiteGlob)
	v.SetDefault("paths.routing_samples", d.Paths.RoutingSamples)
	v.SetDefault("paths.misses", d.Paths.Misses)
	v.SetDefault("paths.observability_config", d.Paths.ObservabilityConfig)
	v.SetDefault("paths.dashboards_dir", d.Paths.DashboardsDir)
	v.SetDefault("paths.rules_dir", d.Paths.RulesDir)
	v.SetDefault("paths.runs_dir", d.Paths.RunsDir)
	v.SetDefault("paths.history_db", d.Paths.HistoryDB)
	v.SetDefault("paths.shadow_logs_dir", d.Paths.ShadowLogsDir)
	v.SetDefault("paths.entities_dir", d.Paths.EntitiesDir)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// getUserConfigDir returns the XDG config directory for askgate.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "askgate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "askgate")
	}
	return filepath.Join(home, ".config", "askgate")
}

// findProjectConfig searches for .askgate.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Ask: AskConfig{
			BaseURL:        "http://localhost:8000",
			ConversationID: "askgate-quality",
			ClientID:       "askgate",
			Nickname:       "askgate",
			Timeout:        30 * time.Second,
			Explain:        true,
		},
		Paths: PathsConfig{
			SuiteDir:            filepath.Join("data", "ops", "quality", "payloads"),
			SuiteGlob:           "*_suite.json",
			RoutingSamples:      filepath.Join("data", "ops", "quality", "routing_samples.json"),
			Misses:              filepath.Join("data", "ops", "quality_experimental", "routing_misses_via_ask.json"),
			ObservabilityConfig: filepath.Join("data", "ops", "observability.yaml"),
			DashboardsDir:       filepath.Join("grafana", "dashboards"),
			RulesDir:            "prometheus",
			RunsDir:             filepath.Join("out", "quality", "runs"),
			HistoryDB:           filepath.Join(".askgate", "history.db"),
			ShadowLogsDir:       filepath.Join("logs", "narrator_shadow"),
			EntitiesDir:         filepath.Join("data", "entities"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
