// Package config loads docket configuration: built-in defaults, then an
// optional YAML file, then DOCKET_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	strutil "docket/pkg/platform/strings"
)

// Config is the complete runtime configuration.
type Config struct {
	Server     Server      `yaml:"server"`
	Database   Database    `yaml:"database"`
	Content    Content     `yaml:"content"`
	Documents  Documents   `yaml:"documents"`
	Retention  Retention   `yaml:"retention"`
	Resolution Resolution  `yaml:"resolution"`
	Redis      RedisConfig `yaml:"redis"`
	Kafka      Kafka       `yaml:"kafka"`
	Log        Log         `yaml:"log"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

type Database struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN string `yaml:"dsn"`
}

type Content struct {
	Root        string `yaml:"root"`
	ArchiveRoot string `yaml:"archive_root"`
}

type Documents struct {
	Types         []string `yaml:"types"`
	ScopeKey      string   `yaml:"scope_key"`
	ExcerptLength int      `yaml:"excerpt_length"`
}

// Policy is one named retention policy.
type Policy struct {
	ObsoleteAfter time.Duration `yaml:"obsolete_after"`
	DeleteAfter   time.Duration `yaml:"delete_after"`
	AllowDelete   bool          `yaml:"allow_delete"`
}

type Retention struct {
	Policies     map[string]Policy `yaml:"policies"`
	TypeDefaults map[string]string `yaml:"type_defaults"`
	Default      string            `yaml:"default"`
	BlockingTags []string          `yaml:"blocking_tags"`
	// SweepInterval schedules sweeps inside serve; zero disables them.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// InjectionEntry adds one reference to a workflow's variables.
type InjectionEntry struct {
	Var string `yaml:"var"`
	Ref string `yaml:"ref"`
}

type Resolution struct {
	MaxDepth     int                         `yaml:"max_depth"`
	ContextTTL   time.Duration               `yaml:"context_ttl"`
	ContextSize  int                         `yaml:"context_size"`
	QueryRowCap  int                         `yaml:"query_row_cap"`
	ChecklistDir string                      `yaml:"checklist_dir"`
	Workflows    map[string][]InjectionEntry `yaml:"workflows"`
	// Context holds static @context: values.
	Context map[string]string `yaml:"context"`
	// ContextDocumentType makes @context:<key> fall back to metadata[key]
	// of the newest active document of this type.
	ContextDocumentType string `yaml:"context_document_type"`
	// Tables are static row sets queryable with @query:<name>.
	Tables map[string][]map[string]any `yaml:"tables"`
}

// RedisConfig configures the optional shared @context: cache.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	Prefix       string        `yaml:"prefix"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	// Buffer sizes the async publish queue.
	Buffer int `yaml:"buffer"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Database: Database{Driver: "sqlite", DSN: ".docket/docket.db"},
		Content:  Content{Root: ".", ArchiveRoot: "_archive"},
		Documents: Documents{
			Types: []string{
				"requirements-doc",
				"architecture-doc",
				"planning-epic",
				"work-item",
				"quality-report",
				"generic",
			},
			ScopeKey:      "scope",
			ExcerptLength: 280,
		},
		Retention: Retention{
			Policies: map[string]Policy{
				"standard": {ObsoleteAfter: 30 * 24 * time.Hour, DeleteAfter: 365 * 24 * time.Hour},
			},
			Default:      "standard",
			BlockingTags: []string{"legal-hold", "retain"},
		},
		Resolution: Resolution{
			MaxDepth:     3,
			ContextTTL:   15 * time.Minute,
			ContextSize:  1024,
			QueryRowCap:  50,
			ChecklistDir: "checklists",
		},
		Redis: RedisConfig{
			Prefix:       "docket:context:",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{Topic: "docket.document.lifecycle", Buffer: 256},
		Log:   Log{Level: "info", Format: "text"},
	}
}

// Load reads path (when non-empty) over the defaults and applies
// environment overrides. DOCKET_CONFIG names the file when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("DOCKET_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"DOCKET_ADDR":         &c.Server.Addr,
		"DOCKET_DB_DRIVER":    &c.Database.Driver,
		"DOCKET_DB_DSN":       &c.Database.DSN,
		"DOCKET_CONTENT_ROOT": &c.Content.Root,
		"DOCKET_ARCHIVE_ROOT": &c.Content.ArchiveRoot,
		"DOCKET_REDIS_URL":    &c.Redis.URL,
		"DOCKET_KAFKA_TOPIC":  &c.Kafka.Topic,
		"DOCKET_LOG_LEVEL":    &c.Log.Level,
		"DOCKET_LOG_FORMAT":   &c.Log.Format,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup("DOCKET_KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = strutil.SplitList(v)
	}
	if v, ok := lookup("DOCKET_MAX_DEPTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DOCKET_MAX_DEPTH: %w", err)
		}
		c.Resolution.MaxDepth = n
	}
	if v, ok := lookup("DOCKET_SWEEP_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DOCKET_SWEEP_INTERVAL: %w", err)
		}
		c.Retention.SweepInterval = d
	}
	return nil
}

// Validate rejects configurations the services cannot run with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if len(c.Documents.Types) == 0 {
		return fmt.Errorf("documents.types must not be empty")
	}
	if c.Resolution.MaxDepth < 1 {
		return fmt.Errorf("resolution.max_depth must be at least 1")
	}
	if c.Resolution.QueryRowCap < 1 {
		return fmt.Errorf("resolution.query_row_cap must be at least 1")
	}
	if _, ok := c.Resolution.Tables["documents"]; ok {
		return fmt.Errorf("resolution.tables must not redefine the documents source")
	}
	for name, p := range c.Retention.Policies {
		if p.AllowDelete && p.DeleteAfter <= 0 {
			return fmt.Errorf("retention policy %q allows deletion without delete_after", name)
		}
	}
	if c.Retention.Default != "" {
		if _, ok := c.Retention.Policies[c.Retention.Default]; !ok {
			return fmt.Errorf("retention.default names unknown policy %q", c.Retention.Default)
		}
	}
	for docType, name := range c.Retention.TypeDefaults {
		if _, ok := c.Retention.Policies[name]; !ok {
			return fmt.Errorf("retention.type_defaults[%s] names unknown policy %q", docType, name)
		}
	}
	return nil
}
