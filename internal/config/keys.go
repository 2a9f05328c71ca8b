package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownKey is returned by Value for keys that are not part of Config.
var ErrUnknownKey = errors.New("unknown configuration key")

// GetToken returns the bearer token for the Ask service.
// It checks in order: environment variable, config file.
func GetToken(cfg *Config) string {
	if key := os.Getenv(EnvPrefix + "_TOKEN"); key != "" {
		return key
	}
	if cfg != nil && cfg.Ask.Token != "" {
		token := os.ExpandEnv(cfg.Ask.Token)
		if !strings.HasPrefix(token, "${") {
			return token
		}
	}
	return ""
}

// MaskToken returns a masked version of the token for display.
// Shows the first 4 and last 4 characters.
func MaskToken(token string) string {
	if token == "" {
		return "(not set)"
	}

	if len(token) <= 12 {
		return "***"
	}

	return token[:4] + "..." + token[len(token)-4:]
}

// Values returns every configuration value by dot-notation key, with the
// token masked.
func Values(cfg *Config) map[string]string {
	return map[string]string{
		"ask.base_url":               cfg.Ask.BaseURL,
		"ask.conversation_id":        cfg.Ask.ConversationID,
		"ask.client_id":              cfg.Ask.ClientID,
		"ask.nickname":               cfg.Ask.Nickname,
		"ask.type_user":              cfg.Ask.TypeUser,
		"ask.token":                  MaskToken(cfg.Ask.Token),
		"ask.timeout":                cfg.Ask.Timeout.String(),
		"ask.explain":                strconv.FormatBool(cfg.Ask.Explain),
		"ask.routing_only":           strconv.FormatBool(cfg.Ask.RoutingOnly),
		"paths.suite_dir":            cfg.Paths.SuiteDir,
		"paths.suite_glob":           cfg.Paths.SuiteGlob,
		"paths.routing_samples":      cfg.Paths.RoutingSamples,
		"paths.misses":               cfg.Paths.Misses,
		"paths.observability_config": cfg.Paths.ObservabilityConfig,
		"paths.dashboards_dir":       cfg.Paths.DashboardsDir,
		"paths.rules_dir":            cfg.Paths.RulesDir,
		"paths.runs_dir":             cfg.Paths.RunsDir,
		"paths.history_db":           cfg.Paths.HistoryDB,
		"paths.shadow_logs_dir":      cfg.Paths.ShadowLogsDir,
		"paths.entities_dir":         cfg.Paths.EntitiesDir,
		"log.level":                  cfg.Log.Level,
		"log.format":                 cfg.Log.Format,
	}
}

// Keys returns the dot-notation keys in sorted order.
func Keys(cfg *Config) []string {
	values := Values(cfg)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value retrieves a configuration value by dot-notation key.
func Value(cfg *Config, key string) (string, error) {
	v, ok := Values(cfg)[strings.ToLower(key)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return v, nil
}
