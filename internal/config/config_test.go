package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15, cfg.JWT.AccessTokenMinutes)
	assert.Equal(t, 7, cfg.JWT.RefreshTokenDays)
	assert.Equal(t, 15, cfg.Auth.VerificationTokenMinutes)
	assert.Equal(t, 24, cfg.Auth.ResendVerificationHours)
	assert.Equal(t, DefaultTokenGraceHours, cfg.Maintenance.TokenGraceHours)
	assert.Same(t, cfg, GlobalConfig)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
jwt:
  secret: "` + testSecret + `"
  access_token_minutes: 5
auth:
  admin_emails: ["Owner@Example.com"]
database:
  driver: memory
`)
	require.NoError(t, os.WriteFile(path, body, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.JWT.AccessTokenMinutes)
	assert.Equal(t, 7, cfg.JWT.RefreshTokenDays, "unset keys keep defaults")
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("ADMIN_EMAILS", "a@x.com, b@x.com ,")
	t.Setenv("REDIS_URL", "redis://:pw@cache:6380/2")
	t.Setenv("APP_URL", "https://print.example.com/")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, testSecret, cfg.JWT.Secret)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, cfg.Auth.AdminEmails)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, "pw", cfg.Redis.Password)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "https://print.example.com", cfg.App.FrontendURL)
}

func TestValidate_ShortSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.Secret = "too-short"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJWTSecretTooShort))
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Database.Driver = "mssql"

	assert.Error(t, cfg.Validate())
}

func TestIsAdminEmail(t *testing.T) {
	a := AuthConfig{AdminEmails: []string{"Owner@Example.com"}}

	assert.True(t, a.IsAdminEmail("owner@example.com"))
	assert.True(t, a.IsAdminEmail("  OWNER@example.com "))
	assert.False(t, a.IsAdminEmail("other@example.com"))
	assert.False(t, a.IsAdminEmail(""))
}
