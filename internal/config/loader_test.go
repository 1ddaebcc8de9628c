package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capresearch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load("nonexistent/capresearch.yaml")
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected *LoadError, got %T %v", err, err)
	}
	if loadErr.Path != "nonexistent/capresearch.yaml" || loadErr.Message != "config file not found" {
		t.Fatalf("unexpected load error %+v", loadErr)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != DefaultAddr || cfg.Storage.Driver != DefaultStorageDriver || !cfg.Metrics.Enabled {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  shutdown_timeout: 5s
storage:
  driver: memory
research:
  vendors: [Amdocs, Netcracker, Ericsson]
  status_override: sticky
archive:
  driver: s3
  s3:
    bucket: reports
    endpoint: http://minio:9000
    path_style: true
events:
  nats_url: nats://localhost:4222
metrics:
  enabled: false
log:
  level: debug
  audit: true
  trace: /var/log/capresearch/trace.jsonl
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.ShutdownTimeout != 5*time.Second || cfg.Server.ReadHeaderTimeout != DefaultReadHeaderTimeout {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if strings.Join(cfg.Research.Vendors, ",") != "Amdocs,Netcracker,Ericsson" || cfg.Research.StatusOverride != "sticky" {
		t.Fatalf("unexpected research config %+v", cfg.Research)
	}
	if cfg.Archive.S3.Bucket != "reports" || !cfg.Archive.S3.PathStyle || cfg.Archive.S3.Endpoint != "http://minio:9000" {
		t.Fatalf("unexpected archive config %+v", cfg.Archive)
	}
	if cfg.Events.NATSURL != "nats://localhost:4222" || cfg.Events.SubjectPrefix != DefaultSubjectPrefix {
		t.Fatalf("unexpected events config %+v", cfg.Events)
	}
	if cfg.Metrics.Enabled || cfg.Log.Level != "debug" || !cfg.Log.Audit || cfg.Log.Trace != "/var/log/capresearch/trace.jsonl" {
		t.Fatalf("unexpected metrics/log config %+v %+v", cfg.Metrics, cfg.Log)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: sqlite\n")
	t.Setenv("CAPRESEARCH_STORAGE_DRIVER", "memory")
	t.Setenv("CAPRESEARCH_RESEARCH_VENDORS", "Amdocs, Netcracker,,Ericsson")
	t.Setenv("CAPRESEARCH_EVENTS_RECONNECT_WAIT", "30s")
	t.Setenv("CAPRESEARCH_ARCHIVE_FS_ROOT", "/var/lib/capresearch/reports")
	t.Setenv("CAPRESEARCH_ARCHIVE_URL_EXPIRY", "1h")
	t.Setenv("CAPRESEARCH_LOG_AUDIT", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected env driver, got %s", cfg.Storage.Driver)
	}
	if strings.Join(cfg.Research.Vendors, "|") != "Amdocs|Netcracker|Ericsson" {
		t.Fatalf("unexpected vendors %q", cfg.Research.Vendors)
	}
	if !cfg.Log.Audit {
		t.Fatalf("expected audit from the environment")
	}
	if cfg.Events.ReconnectWait != 30*time.Second || cfg.Archive.FSRoot != "/var/lib/capresearch/reports" || cfg.Archive.URLExpiry != time.Hour {
		t.Fatalf("unexpected overrides %+v %+v", cfg.Events, cfg.Archive)
	}
}

func TestSetTakesPrecedence(t *testing.T) {
	t.Setenv("CAPRESEARCH_LOG_LEVEL", "warn")
	l := NewLoader()
	l.Set("log.level", "debug")
	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected flag override, got %s", cfg.Log.Level)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: oracle\n")
	_, err := Load(path)
	var loadErr *LoadError
	if !errors.As(err, &loadErr) || loadErr.Message != "configuration validation failed" {
		t.Fatalf("expected validation failure, got %v", err)
	}

	path = writeConfig(t, "server: [not, a, map\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected malformed yaml to fail")
	}
}
