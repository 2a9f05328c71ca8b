package config

import (
	"errors"
	"testing"
)

func TestGetToken(t *testing.T) {
	t.Run("from environment variable", func(t *testing.T) {
		t.Setenv("ASKGATE_TOKEN", "env-token")

		if got := GetToken(&Config{}); got != "env-token" {
			t.Errorf("expected 'env-token', got %q", got)
		}
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("ASKGATE_TOKEN", "")

		cfg := &Config{Ask: AskConfig{Token: "config-token"}}
		if got := GetToken(cfg); got != "config-token" {
			t.Errorf("expected 'config-token', got %q", got)
		}
	})

	t.Run("no token configured", func(t *testing.T) {
		t.Setenv("ASKGATE_TOKEN", "")

		if got := GetToken(&Config{}); got != "" {
			t.Errorf("expected empty token, got %q", got)
		}
	})
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"abcd-0123456789-wxyz", "abcd...wxyz"},
	}
	for _, tt := range tests {
		if got := MaskToken(tt.token); got != tt.want {
			t.Errorf("MaskToken(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}

func TestValue(t *testing.T) {
	cfg := Default()
	cfg.Ask.Token = "abcd-0123456789-wxyz"

	got, err := Value(cfg, "ask.timeout")
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != "30s" {
		t.Errorf("ask.timeout = %q, want 30s", got)
	}

	got, err = Value(cfg, "ASK.TOKEN")
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != "abcd...wxyz" {
		t.Errorf("token should be masked, got %q", got)
	}

	if _, err := Value(cfg, "nope.key"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("expected ErrUnknownKey, got %v", err)
	}
}

func TestKeys_Sorted(t *testing.T) {
	keys := Keys(Default())
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %q before %q", keys[i-1], keys[i])
		}
	}
}
