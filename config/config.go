// Package config loads the mediacache CLI configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "MEDIACACHE_CONFIG"

// ErrInvalid is returned when a configuration fails validation.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the root of the configuration file.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
	Transfer TransferConfig `yaml:"transfer"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Remote   RemoteConfig   `yaml:"remote"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// CacheConfig sizes the local tiers.
type CacheConfig struct {
	Dir              string `yaml:"dir"`
	MemoryMaxBytes   int64  `yaml:"memory_max_bytes"`
	MemoryMaxEntries int    `yaml:"memory_max_entries"`

	// DiskMaxBytes bounds the disk tier; 0 leaves it unbounded.
	DiskMaxBytes int64  `yaml:"disk_max_bytes"`
	Compression  string `yaml:"compression"` // none, zstd
}

// TransferConfig holds network limits.
type TransferConfig struct {
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	ResourceTimeout    time.Duration `yaml:"resource_timeout"`
	PublishRetries     int           `yaml:"publish_retries"`
	PreloadConcurrency int           `yaml:"preload_concurrency"`
}

// PipelineConfig controls image preparation.
type PipelineConfig struct {
	MaxDimension int     `yaml:"max_dimension"`
	Quality      float64 `yaml:"quality"`
	MaxSizeBytes int     `yaml:"max_size_bytes"`
	Format       string  `yaml:"format"` // jpeg, png
}

// RemoteConfig selects and configures the backend.
type RemoteConfig struct {
	Backend string     `yaml:"backend"` // http, s3, oci
	HTTP    HTTPConfig `yaml:"http"`
	S3      S3Config   `yaml:"s3"`
	OCI     OCIConfig  `yaml:"oci"`
}

// HTTPConfig configures the REST object backend.
type HTTPConfig struct {
	BaseURL     string            `yaml:"base_url"`
	PublicURL   string            `yaml:"public_url"`
	BearerToken string            `yaml:"bearer_token"`
	Headers     map[string]string `yaml:"headers"`
}

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	PathStyle bool   `yaml:"path_style"`
	Prefix    string `yaml:"prefix"`
	PublicURL string `yaml:"public_url"`
}

// OCIConfig configures the registry backend.
type OCIConfig struct {
	Repository   string `yaml:"repository"`
	PlainHTTP    bool   `yaml:"plain_http"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Token        string `yaml:"token"`
	DockerConfig bool   `yaml:"docker_config"`
	UserAgent    string `yaml:"user_agent"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Cache: CacheConfig{
			Dir:              filepath.Join(dir, "mediacache"),
			MemoryMaxBytes:   50 << 20,
			MemoryMaxEntries: 100,
			Compression:      "none",
		},
		Transfer: TransferConfig{
			RequestTimeout:  30 * time.Second,
			ResourceTimeout: 60 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxDimension: 1024,
			Quality:      0.8,
			MaxSizeBytes: 10 << 20,
			Format:       "jpeg",
		},
		Remote: RemoteConfig{Backend: "http"},
	}
}

// Load reads path, expands ${VAR} references, and overlays the result on
// the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve loads path, or the file named by MEDIACACHE_CONFIG when path is
// empty. With neither set it returns the defaults.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate reports every problem with c.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format %q is not one of text, json", c.Log.Format)
	}

	if c.Cache.Dir == "" {
		add("cache.dir is required")
	}
	if c.Cache.MemoryMaxBytes <= 0 {
		add("cache.memory_max_bytes must be positive")
	}
	if c.Cache.MemoryMaxEntries <= 0 {
		add("cache.memory_max_entries must be positive")
	}
	if c.Cache.DiskMaxBytes < 0 {
		add("cache.disk_max_bytes must not be negative")
	}
	switch c.Cache.Compression {
	case "none", "zstd":
	default:
		add("cache.compression %q is not one of none, zstd", c.Cache.Compression)
	}

	if c.Transfer.RequestTimeout <= 0 || c.Transfer.ResourceTimeout <= 0 {
		add("transfer timeouts must be positive")
	}
	if c.Transfer.PublishRetries < 0 {
		add("transfer.publish_retries must not be negative")
	}

	if c.Pipeline.MaxDimension <= 0 {
		add("pipeline.max_dimension must be positive")
	}
	if c.Pipeline.Quality <= 0 || c.Pipeline.Quality > 1 {
		add("pipeline.quality must be in (0, 1]")
	}
	if c.Pipeline.MaxSizeBytes <= 0 {
		add("pipeline.max_size_bytes must be positive")
	}
	switch c.Pipeline.Format {
	case "jpeg", "png":
	default:
		add("pipeline.format %q is not one of jpeg, png", c.Pipeline.Format)
	}

	switch c.Remote.Backend {
	case "http":
		if c.Remote.HTTP.BaseURL == "" {
			add("remote.http.base_url is required")
		}
	case "s3":
		if c.Remote.S3.Endpoint == "" || c.Remote.S3.Bucket == "" {
			add("remote.s3.endpoint and remote.s3.bucket are required")
		}
	case "oci":
		if c.Remote.OCI.Repository == "" {
			add("remote.oci.repository is required")
		}
	default:
		add("remote.backend %q is not one of http, s3, oci", c.Remote.Backend)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
