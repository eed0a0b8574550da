package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("propublica.api_key", "pp-key")
	configViper.Set("anthropic.api_key", "anthropic-key")
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Fatalf("expected sqlite driver default, got %q", cfg.DatabaseDriver)
	}
	if cfg.Congress != defaultCongress {
		t.Fatalf("expected default congress %d, got %d", defaultCongress, cfg.Congress)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("expected 1s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.Timezone == nil || cfg.Timezone.String() != "UTC" {
		t.Fatalf("expected UTC timezone, got %v", cfg.Timezone)
	}
	if cfg.TokenTTL != time.Hour {
		t.Fatalf("expected 60 minute token ttl, got %s", cfg.TokenTTL)
	}
}

func TestLoadRejectsMissingAPIKeys(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]string
		wantErr string
	}{
		{
			name:    "missing propublica key",
			values:  map[string]string{"anthropic.api_key": "a", "auth.signing_secret": "s"},
			wantErr: "propublica.api_key",
		},
		{
			name:    "missing anthropic key",
			values:  map[string]string{"propublica.api_key": "p", "auth.signing_secret": "s"},
			wantErr: "anthropic.api_key",
		},
		{
			name:    "unsupported driver",
			values:  map[string]string{"propublica.api_key": "p", "anthropic.api_key": "a", "auth.signing_secret": "s", "database.driver": "mysql"},
			wantErr: "database.driver",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range tt.values {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}
