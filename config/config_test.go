package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
feeds:
  static_url: https://transit.example.com/gtfs.zip
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://transit.example.com/gtfs.zip", cfg.Feeds.StaticURL)
	assert.Equal(t, 30, cfg.Feeds.PollSeconds)
	assert.Equal(t, 5, cfg.Routing.MaxRoutes)
	assert.Equal(t, 2, cfg.Routing.MaxTransfers)
	assert.Equal(t, 10, cfg.Routing.MinTransferMinutes)
	assert.Equal(t, 500.0, cfg.Routing.MaxWalkMetres)
	assert.Equal(t, 4.5, cfg.Routing.WalkSpeedKPH)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
feeds:
  static_url: https://transit.example.com/gtfs.zip
  trip_updates_url: https://transit.example.com/rt/trips
  poll_seconds: 60
routing:
  max_routes: 3
  max_walk_metres: 800
storage:
  backend: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Feeds.PollSeconds)
	assert.Equal(t, 3, cfg.Routing.MaxRoutes)
	assert.Equal(t, 800.0, cfg.Routing.MaxWalkMetres)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	// Untouched knobs keep their defaults
	assert.Equal(t, 2, cfg.Routing.MaxTransfers)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
feeds:
  static_url: https://transit.example.com/gtfs.zip
  api_key: from-file
`)

	t.Setenv("TRANSIT_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Feeds.APIKey)
}

func TestFromEnv(t *testing.T) {
	_, err := FromEnv()
	assert.Error(t, err, "no static url anywhere")

	t.Setenv("TRANSIT_STATIC_URL", "https://transit.example.com/gtfs.zip")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://transit.example.com/gtfs.zip", cfg.Feeds.StaticURL)
	assert.Equal(t, 5, cfg.Routing.MaxRoutes)
}

func TestLoadInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"missing static url": `
routing:
  max_routes: 3
`,
		"bad static url": `
feeds:
  static_url: not-a-url
`,
		"max_routes out of range": `
feeds:
  static_url: https://transit.example.com/gtfs.zip
routing:
  max_routes: 50
`,
		"unknown backend": `
feeds:
  static_url: https://transit.example.com/gtfs.zip
storage:
  backend: cassandra
`,
		"postgres without url": `
feeds:
  static_url: https://transit.example.com/gtfs.zip
storage:
  backend: postgres
`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
