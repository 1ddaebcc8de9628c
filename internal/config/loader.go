package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigPath is read when no path is given and the file exists.
	DefaultConfigPath = "capresearch.yaml"

	// EnvPrefix is the prefix of environment overrides, e.g. CAPRESEARCH_STORAGE_DRIVER.
	EnvPrefix = "CAPRESEARCH"
)

// Loader reads configuration from a YAML file and the environment.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a loader with every key registered so environment
// variables override even keys missing from the file.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v, New())
	return &Loader{v: v}
}

func registerDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)
	v.SetDefault("research.vendors", []string{})
	v.SetDefault("research.status_override", d.Research.StatusOverride)
	v.SetDefault("archive.driver", d.Archive.Driver)
	v.SetDefault("archive.fs_root", d.Archive.FSRoot)
	v.SetDefault("archive.url_expiry", d.Archive.URLExpiry)
	v.SetDefault("archive.s3.region", "")
	v.SetDefault("archive.s3.bucket", "")
	v.SetDefault("archive.s3.endpoint", "")
	v.SetDefault("archive.s3.access_key_id", "")
	v.SetDefault("archive.s3.secret_access_key", "")
	v.SetDefault("archive.s3.session_token", "")
	v.SetDefault("archive.s3.path_style", false)
	v.SetDefault("events.nats_url", d.Events.NATSURL)
	v.SetDefault("events.subject_prefix", d.Events.SubjectPrefix)
	v.SetDefault("events.client_name", d.Events.ClientName)
	v.SetDefault("events.max_reconnects", d.Events.MaxReconnects)
	v.SetDefault("events.reconnect_wait", d.Events.ReconnectWait)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.audit", d.Log.Audit)
	v.SetDefault("log.trace", d.Log.Trace)
}

// Set overrides key with the highest precedence, e.g. from a command flag.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Load reads path, merges the environment, applies defaults and validates.
// An empty path reads DefaultConfigPath when present and otherwise uses
// defaults and the environment only.
func (l *Loader) Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Path: path, Message: "config file not found", Err: err}
		}
		path = ""
	}
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, &LoadError{Path: path, Message: "failed to read config file", Err: err}
		}
	}

	cfg := New()
	if err := l.v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, &LoadError{Path: path, Message: "failed to parse configuration", Err: err}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Path: path, Message: "configuration validation failed", Err: err}
	}
	return cfg, nil
}

// decodeHook lets durations be written as "15s" and lists as "a,b,c".
func decodeHook(dc *mapstructure.DecoderConfig) {
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// LoadError describes a configuration that could not be loaded.
type LoadError struct {
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	path := e.Path
	if path == "" {
		path = "<env>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", path, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", path, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Load is shorthand for NewLoader().Load(path).
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}
