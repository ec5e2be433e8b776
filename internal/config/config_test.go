package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Port)
	assert.Empty(t, cfg.ConnectionString)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.TestModeEnabled)
	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.ReadAPIAuthEnabled)
	assert.Zero(t, cfg.GitHubAppID)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	os.Setenv("PORT", "9000")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("ConnectionStrings__DefaultConnection", "postgres://localhost/policyengine")
	os.Setenv("GitHubApp__AppId", "12345")
	os.Setenv("GitHubApp__OrganizationName", "my-org")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/policyengine", cfg.ConnectionString)
	assert.EqualValues(t, 12345, cfg.GitHubAppID)
	assert.Equal(t, "my-org", cfg.GitHubAppOrganization)
}

func TestLoad_AllowedOriginsCommaSeparated(t *testing.T) {
	os.Clearenv()
	os.Setenv("ALLOWED_ORIGINS", "http://localhost:3000,https://example.com,http://localhost:5173")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"http://localhost:3000",
		"https://example.com",
		"http://localhost:5173",
	}, cfg.AllowedOrigins)
}

func TestLoad_AllowedOriginsCommaSeparatedWithWhitespace(t *testing.T) {
	os.Clearenv()
	os.Setenv("ALLOWED_ORIGINS", " http://localhost:3000 , https://example.com , http://localhost:5173 ")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.AllowedOrigins, 3)
	assert.Contains(t, cfg.AllowedOrigins, "http://localhost:3000")
	for _, origin := range cfg.AllowedOrigins {
		assert.Equal(t, strings.TrimSpace(origin), origin, "origin should have whitespace trimmed")
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err, "Load should not error when config file is missing")
	assert.NotNil(t, cfg)
}

func TestLoad_ProductionRefusesTestMode(t *testing.T) {
	os.Clearenv()
	os.Setenv("TestMode__Enabled", "true")
	os.Setenv("ENVIRONMENT", "production")
	defer os.Clearenv()

	_, err := Load()
	assert.Error(t, err, "expected Load to reject test_mode_enabled=true with environment=production")
}

func TestLoad_TestModeAllowedOutsideProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("TestMode__Enabled", "true")
	os.Setenv("ENVIRONMENT", "development")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err, "expected test_mode_enabled to be allowed outside production")
	assert.True(t, cfg.TestModeEnabled)
}
