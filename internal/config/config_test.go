package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 2333, cfg.Port)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "root:password@tcp(127.0.0.1:3306)/dualpanel?charset=utf8mb4&loc=Local&parseTime=true", cfg.DSN)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, SourceSQL, cfg.Selector.Source)
	assert.Equal(t, RetainDatabase, cfg.Selector.Retain)
	assert.Equal(t, 1000, cfg.Selector.PageSize)
	assert.Equal(t, 300*time.Millisecond, cfg.Selector.Debounce)
	assert.Equal(t, 24*time.Hour, cfg.Selector.RetainTTL)
}

func TestParseOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
port: 8080
env: Production
database:
  host: db
  user: app
  password: secret
  name: forms
  params:
    timeout: 5s
redis:
  host: cache
  db: 2
mongo:
  uri: mongodb://mongo:27017
  database: records
selector:
  source: mongo
  page_size: 200
  debounce: 150ms
  idle_ttl: 10m
  open_rate_limit: 0
cors_allowed_origins: [" https://a.example ", ""]
jwt_secret: s3cret
log_dir: /var/log/dualpanel
`))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "app:secret@tcp(db:3306)/forms?charset=utf8mb4&loc=Local&parseTime=true&timeout=5s", cfg.DSN)
	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
	assert.Equal(t, RetainRedis, cfg.Selector.Retain, "redis becomes the default retention store")
	assert.Equal(t, SourceMongo, cfg.Selector.Source)
	assert.Equal(t, "records", cfg.Mongo.Database)
	assert.Equal(t, 200, cfg.Selector.PageSize)
	assert.Equal(t, 150*time.Millisecond, cfg.Selector.Debounce)
	assert.Equal(t, 10*time.Minute, cfg.Selector.IdleTTL)
	assert.Equal(t, 0, cfg.Selector.OpenRateLimit)
	assert.Equal(t, []string{"https://a.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "/var/log/dualpanel", cfg.LogDir())
}

func TestParseExplicitDSN(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("dsn: user:pw@tcp(localhost:3306)/x?parseTime=true\nredis_url: localhost:6379/1\n"))
	require.NoError(t, err)
	assert.Equal(t, "user:pw@tcp(localhost:3306)/x?parseTime=true", cfg.DSN)
	assert.Equal(t, "redis://localhost:6379/1", cfg.RedisURL)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("prot: 80\n"))
	assert.ErrorContains(t, err, "prot")
}

func TestParseReportsEveryProblem(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`
port: 70000
selector:
  source: ldap
  retain: redis
  page_size: -1
  debounce: soon
`))
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 5)
	assert.ErrorContains(t, err, "invalid port 70000")
	assert.ErrorContains(t, err, "selector.source")
	assert.ErrorContains(t, err, "selector.retain redis needs redis")
	assert.ErrorContains(t, err, "selector.page_size")
	assert.ErrorContains(t, err, "selector.debounce")
}

func TestParseMongoNeedsURI(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("selector:\n  source: mongo\n"))
	assert.ErrorContains(t, err, "mongo.uri")
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorContains(t, err, "read config file")
}
