// Package config provides configuration for the metaquery engine and the
// sources it queries.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/metaquery/internal/query/data"
)

// SourceKind identifies how a source is reached.
type SourceKind string

const (
	KindSQLite     SourceKind = "sqlite"
	KindPostgres   SourceKind = "postgres"
	KindMySQL      SourceKind = "mysql"
	KindCSV        SourceKind = "csv"
	KindFixedWidth SourceKind = "fixedwidth"
	KindMemory     SourceKind = "memory"
)

// IsSQL reports whether the kind is backed by a database.
func (k SourceKind) IsSQL() bool {
	return k == KindSQLite || k == KindPostgres || k == KindMySQL
}

// IsFile reports whether the kind reads objects from storage.
func (k SourceKind) IsFile() bool {
	return k == KindCSV || k == KindFixedWidth
}

// Config holds the configuration of a metaquery process.
type Config struct {
	// DataDir is the base directory for local files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Query engine configuration
	Query QueryConfig `json:"query" yaml:"query"`

	// Pool configures database handles shared by SQL sources
	Pool PoolConfig `json:"pool" yaml:"pool"`

	// Storage configuration for file sources
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Sources are queried as one combined set of schemas
	Sources []SourceConfig `json:"sources" yaml:"sources"`

	// HTTP configures the API server started by "metaquery serve"
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// QueryConfig holds query engine configuration.
type QueryConfig struct {
	// Consistency is the default row width policy: strict or tolerant
	Consistency string `json:"consistency" yaml:"consistency"`

	// LikeCacheSize is the number of compiled LIKE patterns kept
	LikeCacheSize int `json:"like_cache_size" yaml:"like_cache_size"`

	// Timeout bounds a single query, 0 for none
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// InformationSchema adds the synthetic information schema
	InformationSchema bool `json:"information_schema" yaml:"information_schema"`
}

// PoolConfig holds database handle pool configuration.
type PoolConfig struct {
	// MaxHandles is the maximum number of distinct databases
	MaxHandles int `json:"max_handles" yaml:"max_handles"`

	// MaxOpenConns is the per-database connection limit
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	// ConnMaxIdleTime closes connections idle for this long
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`

	// CacheMaxBytes bounds the local copies of remote objects; 0 disables the cache
	CacheMaxBytes int64 `json:"cache_max_bytes" yaml:"cache_max_bytes"`

	// CacheDir holds the local copies (default: <data_dir>/cache)
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle addresses buckets by path, as most S3-compatible stores need
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// SourceConfig describes one source.
type SourceConfig struct {
	// Name labels the source; file and memory sources use it as schema name
	Name string `json:"name" yaml:"name"`

	// Kind is one of sqlite, postgres, mysql, csv, fixedwidth, memory
	Kind SourceKind `json:"kind" yaml:"kind"`

	// DSN is the driver connection string (SQL kinds)
	DSN string `json:"dsn" yaml:"dsn"`

	// Prefix is the storage prefix holding the tables (file kinds)
	Prefix string `json:"prefix" yaml:"prefix"`

	// Extension restricts file discovery, e.g. ".csv"
	Extension string `json:"extension" yaml:"extension"`

	// Header indicates the first line of each file names the columns
	Header bool `json:"header" yaml:"header"`

	// Delimiter is the CSV field separator, a single character
	Delimiter string `json:"delimiter" yaml:"delimiter"`

	// Widths are the fixed-width column widths
	Widths []int `json:"widths" yaml:"widths"`

	// Consistency overrides query.consistency for this source
	Consistency string `json:"consistency" yaml:"consistency"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// MaxRows caps the rows of one response; 0 means no cap
	MaxRows int `json:"max_rows" yaml:"max_rows"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level"`

	// Development enables the human-readable console encoder
	Development bool `json:"development" yaml:"development"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/metaquery",
		Query: QueryConfig{
			Consistency:       data.Strict.String(),
			LikeCacheSize:     256,
			InformationSchema: true,
		},
		Pool: PoolConfig{
			MaxHandles:      16,
			MaxOpenConns:    8,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		HTTP: HTTPConfig{
			Addr:         ":8081",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
			MaxRows:      10000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Resolve fills paths and per-source settings derived from other fields.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/metaquery"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Storage.CacheDir == "" {
		c.Storage.CacheDir = filepath.Join(c.DataDir, "cache")
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Kind = SourceKind(strings.ToLower(string(s.Kind)))
		if s.Consistency == "" {
			s.Consistency = c.Query.Consistency
		}
		if s.Kind == KindCSV && s.Delimiter == "" {
			s.Delimiter = ","
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if _, err := data.ParseConsistency(c.Query.Consistency); err != nil {
		return fmt.Errorf("query.consistency: %w", err)
	}
	if c.Query.LikeCacheSize <= 0 {
		return fmt.Errorf("query.like_cache_size must be positive, got %d", c.Query.LikeCacheSize)
	}
	if c.Query.Timeout < 0 {
		return fmt.Errorf("query.timeout must not be negative, got %v", c.Query.Timeout)
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}
	if c.HTTP.MaxRows < 0 {
		return fmt.Errorf("http.max_rows must not be negative, got %d", c.HTTP.MaxRows)
	}
	if c.Storage.CacheMaxBytes < 0 {
		return fmt.Errorf("storage.cache_max_bytes must not be negative, got %d", c.Storage.CacheMaxBytes)
	}

	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if err := s.validate(); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("sources[%d]: duplicate source name %q", i, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func (s SourceConfig) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch {
	case s.Kind.IsSQL():
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for %s sources", s.Kind)
		}
	case s.Kind == KindCSV:
		if s.Delimiter != "" && utf8.RuneCountInString(s.Delimiter) != 1 {
			return fmt.Errorf("delimiter must be a single character, got %q", s.Delimiter)
		}
	case s.Kind == KindFixedWidth:
		if len(s.Widths) == 0 {
			return fmt.Errorf("widths are required for fixedwidth sources")
		}
		for _, w := range s.Widths {
			if w <= 0 {
				return fmt.Errorf("widths must be positive, got %v", s.Widths)
			}
		}
	case s.Kind == KindMemory:
	default:
		return fmt.Errorf("invalid kind: %q (must be sqlite, postgres, mysql, csv, fixedwidth or memory)", s.Kind)
	}
	if s.Consistency != "" {
		if _, err := data.ParseConsistency(s.Consistency); err != nil {
			return err
		}
	}
	return nil
}

// DelimiterRune returns the CSV delimiter, or zero for the default.
func (s SourceConfig) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(s.Delimiter)
	if r == utf8.RuneError {
		return 0
	}
	return r
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies environment overrides. Environment variables use the
// METAQUERY_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("METAQUERY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Query configuration
	if v := os.Getenv("METAQUERY_CONSISTENCY"); v != "" {
		cfg.Query.Consistency = v
	}
	if v := os.Getenv("METAQUERY_LIKE_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Query.LikeCacheSize = n
		}
	}
	if v := os.Getenv("METAQUERY_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Query.Timeout = d
		}
	}

	// Storage configuration
	if v := os.Getenv("METAQUERY_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("METAQUERY_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("METAQUERY_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("METAQUERY_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("METAQUERY_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("METAQUERY_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("METAQUERY_CACHE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Storage.CacheMaxBytes = n
		}
	}

	// Logging
	if v := os.Getenv("METAQUERY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("METAQUERY_LOG_DEVELOPMENT"); v != "" {
		cfg.Log.Development = v == "true" || v == "1"
	}
}

// BuildLogger creates the process logger described by the log section.
func (l LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
