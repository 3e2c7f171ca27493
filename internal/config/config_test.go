package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8787", cfg.Port)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, 100, cfg.Audio.QueueSize)
	assert.Equal(t, 5*time.Minute, cfg.Audio.Timeout)
	assert.Equal(t, int64(100), cfg.Audio.MaxUploadMB)
	assert.False(t, cfg.Audio.AutoApprove)
	assert.GreaterOrEqual(t, cfg.Audio.Workers, 1)
	assert.LessOrEqual(t, cfg.Audio.Workers, 8)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TRANSCODE_WORKERS", "3")
	t.Setenv("AUTO_APPROVE_TRACKS", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("REQUIRE_SERVICES", "redis, ffmpeg")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Audio.Workers)
	assert.True(t, cfg.Audio.AutoApprove)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.Requires("ffmpeg"))
	assert.False(t, cfg.Requires("elasticsearch"))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment: "production",
			Auth:        AuthConfig{JWTSecret: "x"},
			Storage:     StorageConfig{Driver: "local"},
			Database:    DatabaseConfig{Driver: "postgres"},
			Audio:       AudioConfig{Workers: 2, QueueSize: 10, MaxUploadMB: 50},
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.Auth.JWTSecret = ""
	assert.Error(t, c.Validate())

	c = base()
	c.Audio.Workers = -1
	assert.Error(t, c.Validate())

	c = base()
	c.Storage.Driver = "s3"
	assert.Error(t, c.Validate())

	c = base()
	c.Environment = "development"
	c.Auth.JWTSecret = ""
	require.NoError(t, c.Validate())
	assert.NotEmpty(t, c.Auth.JWTSecret)
}

func TestOAuthProviders(t *testing.T) {
	c := &Config{
		APIBaseURL: "https://api.example",
		OAuth: OAuthEnv{
			GoogleClientID:     "gid",
			GoogleClientSecret: "gsecret",
		},
	}

	providers := c.OAuthProviders()
	require.NotNil(t, providers.Google)
	assert.Nil(t, providers.Discord)
	assert.Equal(t, "https://api.example/api/v1/auth/oauth/google/callback", providers.Provider("google").RedirectURL)
	assert.Nil(t, providers.Provider("discord"))
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())

	d.URL = "postgres://x"
	assert.Equal(t, "postgres://x", d.DSN())
}
