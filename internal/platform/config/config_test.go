package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Resolution.MaxDepth)
	assert.Equal(t, "scope", cfg.Documents.ScopeKey)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docket.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  dsn: postgres://docket@localhost/docket
retention:
  policies:
    short:
      obsolete_after: 24h
      delete_after: 72h
      allow_delete: true
  type_defaults:
    work-item: short
resolution:
  max_depth: 5
  workflows:
    story:
      - var: prd
        ref: "@doc:docs/prd.md"
      - ref: "@checklist:definition-of-done"
  tables:
    owners:
      - team: core
        lead: ana
`), 0o600))

	t.Setenv("DOCKET_ADDR", ":9090")
	t.Setenv("DOCKET_KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("DOCKET_MAX_DEPTH", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 4, cfg.Resolution.MaxDepth)
	assert.Equal(t, 72*time.Hour, cfg.Retention.Policies["short"].DeleteAfter)
	assert.Contains(t, cfg.Retention.Policies, "standard")
	require.Len(t, cfg.Resolution.Workflows["story"], 2)
	assert.Equal(t, "prd", cfg.Resolution.Workflows["story"][0].Var)
	require.Len(t, cfg.Resolution.Tables["owners"], 1)
	assert.Equal(t, "ana", cfg.Resolution.Tables["owners"][0]["lead"])
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown driver":        func(c *Config) { c.Database.Driver = "mysql" },
		"zero depth":            func(c *Config) { c.Resolution.MaxDepth = 0 },
		"zero row cap":          func(c *Config) { c.Resolution.QueryRowCap = 0 },
		"documents table":       func(c *Config) { c.Resolution.Tables = map[string][]map[string]any{"documents": nil} },
		"delete without window": func(c *Config) { c.Retention.Policies["bad"] = Policy{AllowDelete: true} },
		"unknown default":       func(c *Config) { c.Retention.Default = "missing" },
		"unknown type default":  func(c *Config) { c.Retention.TypeDefaults = map[string]string{"generic": "missing"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBadEnvDuration(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(key string) (string, bool) {
		if key == "DOCKET_SWEEP_INTERVAL" {
			return "soon", true
		}
		return "", false
	})
	assert.Error(t, err)
}
