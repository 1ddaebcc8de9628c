// Package config holds the capresearch configuration and its defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of the capresearch binary.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   yaml:"server"   json:"server"`
	Storage  StorageConfig  `mapstructure:"storage"  yaml:"storage"  json:"storage"`
	Research ResearchConfig `mapstructure:"research" yaml:"research" json:"research"`
	Archive  ArchiveConfig  `mapstructure:"archive"  yaml:"archive"  json:"archive"`
	Events   EventsConfig   `mapstructure:"events"   yaml:"events"   json:"events"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  yaml:"metrics"  json:"metrics"`
	Log      LogConfig      `mapstructure:"log"      yaml:"log"      json:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"                yaml:"addr"                json:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"    yaml:"shutdown_timeout"    json:"shutdown_timeout"`
	// MaxUploadBytes caps research file uploads.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes" json:"max_upload_bytes"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	// Driver is one of memory, sqlite or postgres.
	Driver      string `mapstructure:"driver"       yaml:"driver"       json:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"  yaml:"sqlite_path"  json:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn" json:"postgres_dsn"`
}

// ResearchConfig holds the vendor list and status override policy.
type ResearchConfig struct {
	Vendors []string `mapstructure:"vendors" yaml:"vendors" json:"vendors"`
	// StatusOverride is recompute or sticky.
	StatusOverride string `mapstructure:"status_override" yaml:"status_override" json:"status_override"`
}

// ArchiveConfig selects where exported reports are kept.
type ArchiveConfig struct {
	// Driver is one of fs, memory or s3.
	Driver string   `mapstructure:"driver"  yaml:"driver"  json:"driver"`
	FSRoot string   `mapstructure:"fs_root" yaml:"fs_root" json:"fs_root"`
	S3     S3Config `mapstructure:"s3"      yaml:"s3"      json:"s3"`
	// URLExpiry is the lifetime of the download links listed with exports.
	URLExpiry time.Duration `mapstructure:"url_expiry" yaml:"url_expiry" json:"url_expiry"`
}

// S3Config configures the S3 or MinIO archive.
type S3Config struct {
	Region          string `mapstructure:"region"            yaml:"region"            json:"region"`
	Bucket          string `mapstructure:"bucket"            yaml:"bucket"            json:"bucket"`
	Endpoint        string `mapstructure:"endpoint"          yaml:"endpoint"          json:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"     yaml:"access_key_id"     json:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key" json:"-"`
	SessionToken    string `mapstructure:"session_token"     yaml:"session_token"     json:"-"`
	PathStyle       bool   `mapstructure:"path_style"        yaml:"path_style"        json:"path_style"`
}

// EventsConfig configures status-change publishing. An empty NATSURL disables it.
type EventsConfig struct {
	NATSURL       string        `mapstructure:"nats_url"       yaml:"nats_url"       json:"nats_url"`
	SubjectPrefix string        `mapstructure:"subject_prefix" yaml:"subject_prefix" json:"subject_prefix"`
	ClientName    string        `mapstructure:"client_name"    yaml:"client_name"    json:"client_name"`
	MaxReconnects int           `mapstructure:"max_reconnects" yaml:"max_reconnects" json:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" yaml:"reconnect_wait" json:"reconnect_wait"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"    json:"path"`
}

// LogConfig configures the slog handler of the binary.
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	// Audit logs one line per mutating service operation.
	Audit bool `mapstructure:"audit" yaml:"audit" json:"audit"`
	// Trace is a file receiving operation spans as JSON lines, or stderr.
	// Empty disables tracing.
	Trace string `mapstructure:"trace" yaml:"trace" json:"trace"`
}

// Defaults.
const (
	DefaultAddr              = ":8080"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second
	DefaultMaxUploadBytes    = 10 << 20
	DefaultStorageDriver     = "sqlite"
	DefaultSQLitePath        = "capresearch.db"
	DefaultStatusOverride    = "recompute"
	DefaultArchiveDriver     = "fs"
	DefaultArchiveRoot       = "./reports"
	DefaultArchiveURLExpiry  = 15 * time.Minute
	DefaultSubjectPrefix     = "capresearch.capability.status"
	DefaultClientName        = "capresearch"
	DefaultMaxReconnects     = 10
	DefaultReconnectWait     = 2 * time.Second
	DefaultMetricsPath       = "/metrics"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// New returns a configuration with every default applied.
func New() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset values. Booleans are left alone.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = DefaultSQLitePath
	}
	if c.Research.StatusOverride == "" {
		c.Research.StatusOverride = DefaultStatusOverride
	}
	if c.Archive.Driver == "" {
		c.Archive.Driver = DefaultArchiveDriver
	}
	if c.Archive.FSRoot == "" {
		c.Archive.FSRoot = DefaultArchiveRoot
	}
	if c.Archive.URLExpiry == 0 {
		c.Archive.URLExpiry = DefaultArchiveURLExpiry
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.Events.ClientName == "" {
		c.Events.ClientName = DefaultClientName
	}
	if c.Events.MaxReconnects == 0 {
		c.Events.MaxReconnects = DefaultMaxReconnects
	}
	if c.Events.ReconnectWait == 0 {
		c.Events.ReconnectWait = DefaultReconnectWait
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	c.Research.Vendors = cleanVendors(c.Research.Vendors)
}

// cleanVendors trims names and drops blanks and case-insensitive duplicates.
func cleanVendors(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed ...string) {
		v := strings.ToLower(strings.TrimSpace(value))
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q is not one of %s", field, value, strings.Join(allowed, ", ")))
	}
	oneOf("storage.driver", c.Storage.Driver, "memory", "sqlite", "postgres")
	oneOf("research.status_override", c.Research.StatusOverride, "recompute", "sticky")
	oneOf("archive.driver", c.Archive.Driver, "fs", "memory", "s3")
	oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error")
	oneOf("log.format", c.Log.Format, "text", "json")

	if strings.EqualFold(c.Storage.Driver, "postgres") && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn: required for the postgres driver"))
	}
	if strings.EqualFold(c.Archive.Driver, "s3") && c.Archive.S3.Bucket == "" {
		errs = append(errs, errors.New("archive.s3.bucket: required for the s3 driver"))
	}
	if c.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes: %d is negative", c.Server.MaxUploadBytes))
	}
	if c.Archive.URLExpiry < 0 {
		errs = append(errs, fmt.Errorf("archive.url_expiry: %s is negative", c.Archive.URLExpiry))
	}
	if c.Events.MaxReconnects < -1 {
		errs = append(errs, fmt.Errorf("events.max_reconnects: %d is below -1", c.Events.MaxReconnects))
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path: %q must start with /", c.Metrics.Path))
	}
	return errors.Join(errs...)
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	masked := *c
	masked.Research.Vendors = append([]string(nil), c.Research.Vendors...)
	if masked.Archive.S3.SecretAccessKey != "" {
		masked.Archive.S3.SecretAccessKey = "********"
	}
	if masked.Archive.S3.SessionToken != "" {
		masked.Archive.S3.SessionToken = "********"
	}
	if masked.Storage.PostgresDSN != "" {
		masked.Storage.PostgresDSN = maskDSN(masked.Storage.PostgresDSN)
	}
	return yaml.Marshal(&masked)
}

// maskDSN hides the password of a postgres URL DSN.
func maskDSN(dsn string) string {
	scheme := strings.Index(dsn, "://")
	at := strings.LastIndex(dsn, "@")
	if scheme < 0 || at < scheme {
		return dsn
	}
	userinfo := dsn[scheme+3 : at]
	colon := strings.Index(userinfo, ":")
	if colon < 0 {
		return dsn
	}
	return dsn[:scheme+3] + userinfo[:colon] + ":********" + dsn[at:]
}
