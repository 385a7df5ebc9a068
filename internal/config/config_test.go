package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  host: localhost
  dbname: catalog
api:
  shop: demo.myshopify.com
`))
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 50, cfg.Sync.PageSize)
	assert.Equal(t, 5, cfg.Sync.StateRetry.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Jobs["incremental_sync"].Interval)
	assert.Equal(t, 24*time.Hour, cfg.Sync.Jobs["full_sync"].Interval)
	assert.Equal(t, time.Minute, cfg.Redis.LockTTL)
	assert.Equal(t, int64(3), cfg.Cache.HotThreshold)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://demo.myshopify.com/admin/api/2024-10/graphql.json", cfg.API.Endpoint())
	assert.Len(t, cfg.Sync.EnabledJobs(), 5)
}

func TestParse_ExpandsEnvAndOverrides(t *testing.T) {
	t.Setenv("CATALOG_TOKEN", "shpat_test")

	cfg, err := Parse([]byte(`
storage:
  driver: memory
api:
  base_url: http://localhost:9999/graphql
  token: ${CATALOG_TOKEN}
sync:
  page_size: 100
  batch_delay: 2s
  jobs:
    order_sync:
      disabled: true
    incremental_sync:
      interval: 1m
`))
	require.NoError(t, err)

	assert.Equal(t, "shpat_test", cfg.API.Token)
	assert.Equal(t, "http://localhost:9999/graphql", cfg.API.Endpoint())
	assert.Equal(t, 100, cfg.Sync.PageSize)
	assert.Equal(t, 2*time.Second, cfg.Sync.BatchDelay)

	jobs := cfg.Sync.EnabledJobs()
	assert.NotContains(t, jobs, "order_sync")
	assert.Equal(t, time.Minute, jobs["incremental_sync"])
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown driver", yaml: "storage: {driver: mongo}\napi: {shop: s}"},
		{name: "missing shop", yaml: "storage: {driver: memory}"},
		{name: "postgres without host", yaml: "api: {shop: s}"},
		{name: "page size too large", yaml: "storage: {driver: memory}\napi: {shop: s}\nsync: {page_size: 500}"},
		{name: "unknown job", yaml: "storage: {driver: memory}\napi: {shop: s}\nsync: {jobs: {nightly: {interval: 1h}}}"},
		{name: "negative lock ttl", yaml: "storage: {driver: memory}\napi: {shop: s}\nredis: {lock_ttl: -1s}"},
		{name: "bad log level", yaml: "storage: {driver: memory}\napi: {shop: s}\nlog_level: loud"},
		{name: "bad yaml", yaml: "storage: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: {driver: memory}\napi: {shop: s}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
