// Package config loads process configuration (ports, connection strings,
// Platform App credentials) via viper. The organization-wide policy document
// (spec §4.2) is a separate, application-level concern handled by
// internal/orgconfig — this package is ambient process config only.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the process configuration, sourced from a config file, environment
// variables (double-underscore separated, matching the Platform's ASP.NET-style
// keys, e.g. GitHubApp__AppId), and built-in defaults in that precedence order.
type Config struct {
	Port                int      `mapstructure:"port"`
	ConnectionString    string   `mapstructure:"connection_string"` // ConnectionStrings__DefaultConnection
	LogLevel            string   `mapstructure:"log_level"`         // debug | info | warn | error
	LogFormat           string   `mapstructure:"log_format"`        // json | text
	AllowedOrigins      []string `mapstructure:"allowed_origins"`
	RequestTimeoutSec   int      `mapstructure:"request_timeout_sec"`
	ShutdownTimeoutSec  int      `mapstructure:"shutdown_timeout_sec"`

	// GitHubApp__* (spec §6): Platform Client (C1) authentication.
	GitHubAppID             int64  `mapstructure:"github_app_app_id"`
	GitHubAppPrivateKey     string `mapstructure:"github_app_private_key"` // PEM, inline
	GitHubAppInstallationID int64  `mapstructure:"github_app_installation_id"`
	GitHubAppOrganization   string `mapstructure:"github_app_organization_name"`
	GitHubAppBaseURL        string `mapstructure:"github_app_base_url"` // optional override; test harnesses point at a mock server
	GitHubAppWebhookSecret  string `mapstructure:"github_app_webhook_secret"`

	// TestMode__Enabled (spec §6): bypasses C9 unconditionally. Must be false in production.
	TestModeEnabled bool   `mapstructure:"test_mode_enabled"`
	Environment     string `mapstructure:"environment"` // "production" enforces TestModeEnabled=false

	// Dev-only triggers (/verify-scan, /log-job); spec §6 says these may be omitted.
	DevRoutesEnabled bool `mapstructure:"dev_routes_enabled"`

	// Dashboard-facing read API auth: /metrics and /api/v1/* are gated by C9
	// when enabled; disabled is appropriate for a trusted internal network.
	ReadAPIAuthEnabled bool `mapstructure:"read_api_auth_enabled"`
	MetricsAuthEnabled bool `mapstructure:"metrics_auth_enabled"`

	// Tracing.
	TracingEnabled      bool    `mapstructure:"tracing_enabled"`
	TracingEndpoint     string  `mapstructure:"tracing_endpoint"`
	TracingServiceName  string  `mapstructure:"tracing_service_name"`
	TracingSamplingRate float64 `mapstructure:"tracing_sampling_rate"`

	// Job queue (C8) worker pool.
	QueueWorkerCount  int `mapstructure:"queue_worker_count"` // 0 = runtime.NumCPU()
	QueuePollInterval int `mapstructure:"queue_poll_interval_ms"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/policyengine/")
	viper.AddConfigPath("$HOME/.policyengine")
	viper.AddConfigPath(".")

	viper.SetDefault("port", 8080)
	viper.SetDefault("connection_string", "")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("allowed_origins", []string{})
	viper.SetDefault("request_timeout_sec", 30)
	viper.SetDefault("shutdown_timeout_sec", 15)

	viper.SetDefault("github_app_app_id", 0)
	viper.SetDefault("github_app_private_key", "")
	viper.SetDefault("github_app_installation_id", 0)
	viper.SetDefault("github_app_organization_name", "")
	viper.SetDefault("github_app_base_url", "")
	viper.SetDefault("github_app_webhook_secret", "")

	viper.SetDefault("test_mode_enabled", false)
	viper.SetDefault("environment", "development")
	viper.SetDefault("dev_routes_enabled", false)
	viper.SetDefault("read_api_auth_enabled", true)
	viper.SetDefault("metrics_auth_enabled", false)

	viper.SetDefault("tracing_enabled", false)
	viper.SetDefault("tracing_endpoint", "")
	viper.SetDefault("tracing_service_name", "policy-engine")
	viper.SetDefault("tracing_sampling_rate", 1.0)

	viper.SetDefault("queue_worker_count", 0)
	viper.SetDefault("queue_poll_interval_ms", 1000)

	viper.AutomaticEnv()

	// The Platform's ASP.NET-style env keys use "__" as a section separator
	// (GitHubApp__AppId, spec §6) and don't line up with viper's automatic
	// snake_case guessing, so each is bound explicitly.
	_ = viper.BindEnv("connection_string", "ConnectionStrings__DefaultConnection")
	_ = viper.BindEnv("github_app_app_id", "GitHubApp__AppId")
	_ = viper.BindEnv("github_app_private_key", "GitHubApp__PrivateKey")
	_ = viper.BindEnv("github_app_installation_id", "GitHubApp__InstallationId")
	_ = viper.BindEnv("github_app_organization_name", "GitHubApp__OrganizationName")
	_ = viper.BindEnv("github_app_base_url", "GitHubApp__BaseUrl")
	_ = viper.BindEnv("github_app_webhook_secret", "GitHubApp__WebhookSecret")
	_ = viper.BindEnv("test_mode_enabled", "TestMode__Enabled")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := viper.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalized := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	cfg.AllowedOrigins = normalized

	if !cfg.TracingEnabled && os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		cfg.TracingEnabled = true
		if cfg.TracingEndpoint == "" {
			cfg.TracingEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
	}

	if cfg.Environment == "production" && cfg.TestModeEnabled {
		return nil, fmt.Errorf("config: test_mode_enabled must be false when environment=production")
	}

	return &cfg, nil
}
