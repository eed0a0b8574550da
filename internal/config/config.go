package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "BREAKDOWN"
	defaultHTTPAddress       = "0.0.0.0:8090"
	defaultDatabaseDriver    = "sqlite"
	defaultDatabaseDSN       = "breakdown.db"
	defaultLogLevel          = "info"
	defaultPropublicaBaseURL = "https://api.propublica.org/congress/v1"
	defaultCongress          = 118
	defaultGovInfoBaseURL    = "https://www.govinfo.gov/content/pkg"
	defaultAnthropicModel    = "claude-3-5-haiku-latest"
	defaultSearchURL         = "http://localhost:7700"
	defaultPollInterval      = time.Second
	defaultTimezone          = "UTC"
	defaultTokenTTLMinutes   = 60
)

// AppConfig captures runtime configuration for the sync worker.
type AppConfig struct {
	HTTPAddress       string
	DatabaseDriver    string
	DatabaseDSN       string
	LogLevel          string
	LogFile           string
	PropublicaAPIKey  string
	PropublicaBaseURL string
	Congress          int
	GovInfoBaseURL    string
	AnthropicAPIKey   string
	AnthropicModel    string
	AnthropicBaseURL  string
	SearchURL         string
	SearchAPIKey      string
	RedisURL          string
	PollInterval      time.Duration
	Timezone          *time.Location
	SigningSecret     string
	TokenTTL          time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.file", "")
	configViper.SetDefault("propublica.api_key", "")
	configViper.SetDefault("propublica.base_url", defaultPropublicaBaseURL)
	configViper.SetDefault("propublica.congress", defaultCongress)
	configViper.SetDefault("govinfo.base_url", defaultGovInfoBaseURL)
	configViper.SetDefault("anthropic.api_key", "")
	configViper.SetDefault("anthropic.model", defaultAnthropicModel)
	configViper.SetDefault("anthropic.base_url", "")
	configViper.SetDefault("search.url", defaultSearchURL)
	configViper.SetDefault("search.api_key", "")
	configViper.SetDefault("cache.redis_url", "")
	configViper.SetDefault("queue.poll_interval", defaultPollInterval)
	configViper.SetDefault("scheduler.timezone", defaultTimezone)
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	timezoneName := strings.TrimSpace(configViper.GetString("scheduler.timezone"))
	location, err := time.LoadLocation(timezoneName)
	if err != nil {
		return AppConfig{}, fmt.Errorf("scheduler.timezone %q is invalid: %w", timezoneName, err)
	}

	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabaseDriver:    strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:       configViper.GetString("database.dsn"),
		LogLevel:          configViper.GetString("log.level"),
		LogFile:           configViper.GetString("log.file"),
		PropublicaAPIKey:  configViper.GetString("propublica.api_key"),
		PropublicaBaseURL: configViper.GetString("propublica.base_url"),
		Congress:          configViper.GetInt("propublica.congress"),
		GovInfoBaseURL:    configViper.GetString("govinfo.base_url"),
		AnthropicAPIKey:   configViper.GetString("anthropic.api_key"),
		AnthropicModel:    configViper.GetString("anthropic.model"),
		AnthropicBaseURL:  configViper.GetString("anthropic.base_url"),
		SearchURL:         configViper.GetString("search.url"),
		SearchAPIKey:      configViper.GetString("search.api_key"),
		RedisURL:          configViper.GetString("cache.redis_url"),
		PollInterval:      configViper.GetDuration("queue.poll_interval"),
		Timezone:          location,
		SigningSecret:     configViper.GetString("auth.signing_secret"),
		TokenTTL:          time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.PropublicaAPIKey) == "" {
		return fmt.Errorf("propublica.api_key is required")
	}
	if strings.TrimSpace(c.AnthropicAPIKey) == "" {
		return fmt.Errorf("anthropic.api_key is required")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if c.Congress <= 0 {
		return fmt.Errorf("propublica.congress must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("queue.poll_interval must be positive")
	}
	return nil
}
