package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9000
  env: development
database:
  host: db.internal
  user: ranker
  password: secret
  dbname: photos
  sslmode: require
  max_conns: 10
  min_conns: 1
storage:
  bucket: photos-bucket
  endpoint: https://example.r2.cloudflarestorage.com
jwt:
  secret: 0123456789abcdef0123
voting:
  guest_limit: 5
  guest_window: 12h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAndDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, 5, cfg.Voting.GuestLimit)
	assert.Equal(t, 12*time.Hour, cfg.Voting.GuestWindow)

	// untouched sections keep their defaults
	assert.Equal(t, 50, cfg.Uploads.DailyLimit)
	assert.Equal(t, 10, cfg.Uploads.MaxBatch)
	assert.Equal(t, 5*time.Minute, cfg.Storage.PresignExpiry)
	assert.Equal(t, "auto", cfg.Storage.Region)
	assert.Equal(t, "@every 1h", cfg.Jobs.PurgeSchedule)

	assert.Equal(t, "host=db.internal port=5432 user=ranker password=secret dbname=photos sslmode=require", cfg.Database.DSN())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PHOTORANK_DATABASE_HOST", "pg.prod")
	t.Setenv("PHOTORANK_VOTING_GUEST_LIMIT", "3")
	t.Setenv("PHOTORANK_VOTING_GUEST_WINDOW", "2h")
	t.Setenv("PHOTORANK_SERVER_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "pg.prod", cfg.Database.Host)
	assert.Equal(t, 3, cfg.Voting.GuestLimit)
	assert.Equal(t, 2*time.Hour, cfg.Voting.GuestWindow)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PHOTORANK_JWT_SECRET", "a-very-long-jwt-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "a-very-long-jwt-secret", cfg.JWT.Secret)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	tests := []struct {
		name string
		env  map[string]string
	}{
		{"short jwt secret", map[string]string{"PHOTORANK_JWT_SECRET": "short"}},
		{"bad log level", map[string]string{"PHOTORANK_LOG_LEVEL": "verbose"}},
		{"zero guest limit", map[string]string{"PHOTORANK_VOTING_GUEST_LIMIT": "0"}},
		{"moderator without id", map[string]string{"PHOTORANK_MODERATOR_PROVIDER": "github"}},
		{"min conns above max", map[string]string{"PHOTORANK_DATABASE_MIN_CONNS": "50"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, sampleYAML))
			assert.Error(t, err)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, err := Load(writeConfig(t, "server: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse config file")
}
