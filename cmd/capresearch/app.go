package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"capresearch/internal/archive"
	"capresearch/internal/config"
	"capresearch/internal/core"
	"capresearch/internal/infra/events"
	"capresearch/internal/reports"
	"capresearch/internal/workflow"

	"github.com/prometheus/client_golang/prometheus"
)

// app holds the wired services of one process.
type app struct {
	core      *core.Service
	workflow  *workflow.Service
	reports   *reports.Service
	registry  *prometheus.Registry
	store     core.PersistentStore
	publisher *events.Publisher
	trace     io.Closer
}

// newApp opens the configured store, archive and event publisher and
// builds the services on top of them.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	policy, err := core.ParseStatusOverridePolicy(cfg.Research.StatusOverride)
	if err != nil {
		return nil, err
	}
	if len(cfg.Research.Vendors) == 0 {
		logger.Warn("no vendors configured; comprehensive research can never complete")
	}

	a := &app{registry: prometheus.NewRegistry()}
	engine := core.NewDefaultRulesEngine(cfg.Research.Vendors)
	a.store, err = core.OpenPersistentStore(ctx, core.StorageOptions{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	}, engine)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithVendors(cfg.Research.Vendors...),
		core.WithStatusOverridePolicy(policy),
	}
	if cfg.Metrics.Enabled {
		rec, err := core.NewPrometheusRecorder(a.registry)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
	}
	if cfg.Log.Audit {
		opts = append(opts, core.WithAuditRecorder(core.NewLogAuditRecorder(logger.With("component", "audit"))))
	}
	if cfg.Log.Trace != "" {
		w, err := a.openTrace(cfg.Log.Trace)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		opts = append(opts, core.WithTracer(core.NewJSONTracer(w)))
	}
	if cfg.Events.NATSURL != "" {
		a.publisher, err = events.Connect(events.Config{
			URL:           cfg.Events.NATSURL,
			SubjectPrefix: cfg.Events.SubjectPrefix,
			Name:          cfg.Events.ClientName,
			MaxReconnects: cfg.Events.MaxReconnects,
			ReconnectWait: cfg.Events.ReconnectWait,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		opts = append(opts, core.WithStatusPublisher(a.publisher))
		logger.Info("publishing status changes", "url", cfg.Events.NATSURL, "prefix", cfg.Events.SubjectPrefix)
	}
	a.core = core.NewService(a.store, opts...)

	a.workflow, err = workflow.New(a.core, workflow.WithMaxUploadBytes(cfg.Server.MaxUploadBytes))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	store, err := archive.Open(ctx, archive.Options{
		Driver: archive.Driver(cfg.Archive.Driver),
		FSRoot: cfg.Archive.FSRoot,
		S3: archive.S3Config{
			Region:          cfg.Archive.S3.Region,
			Bucket:          cfg.Archive.S3.Bucket,
			Endpoint:        cfg.Archive.S3.Endpoint,
			AccessKeyID:     cfg.Archive.S3.AccessKeyID,
			SecretAccessKey: cfg.Archive.S3.SecretAccessKey,
			SessionToken:    cfg.Archive.S3.SessionToken,
			PathStyle:       cfg.Archive.S3.PathStyle,
		},
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a.reports = reports.New(a.core, store, reports.WithURLExpiry(cfg.Archive.URLExpiry))
	return a, nil
}

// openTrace returns the span sink named by target: stderr or a file opened
// for appending.
func (a *app) openTrace(target string) (io.Writer, error) {
	if target == "stderr" {
		return os.Stderr, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	a.trace = f
	return f, nil
}

// Close releases the publisher, the trace file and the store.
func (a *app) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.trace != nil {
		errs = append(errs, a.trace.Close())
	}
	if a.store != nil {
		errs = append(errs, core.CloseStore(a.store))
	}
	return errors.Join(errs...)
}
