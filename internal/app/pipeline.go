package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	"ineqmx/internal/download"
	"ineqmx/internal/enigh"
	"ineqmx/internal/indicators"
	"ineqmx/internal/infrastructure"
	"ineqmx/internal/operations"
	"ineqmx/internal/publish"
	"ineqmx/internal/store"
)

// PipelineManifestFile is written under the data directory after each run.
const PipelineManifestFile = "pipeline_manifest.json"

// Pipeline holds the operations manager with every step registered, plus the
// collaborators the steps were built from.
type Pipeline struct {
	Config   *config.Config
	Paths    *config.Paths
	Catalog  *dataset.Catalog
	Manifest *dataset.Manifest
	Manager  *operations.Manager
	Enigh    *enigh.Processor
	Store    *store.Store

	logger *slog.Logger
}

// NewPipeline wires the pipeline steps. hub may be nil when nothing listens
// for progress. Publishing, the Postgres sink and the indicators API are only
// wired when configured.
func NewPipeline(ctx context.Context, cfg *config.Config, paths *config.Paths, hub operations.WebSocketHub, metrics *infrastructure.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	catalog := dataset.DefaultCatalog()
	if cfg.Paths.CatalogFile != "" {
		c, err := dataset.LoadCatalog(cfg.Paths.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		catalog = c
	}
	manifest := dataset.ManifestFor(catalog)
	if cfg.Paths.ManifestFile != "" {
		m, err := dataset.LoadManifest(cfg.Paths.ManifestFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load manifest: %w", err)
		}
		manifest = m
	}

	opConfig := operations.NewConfigFromPipeline(cfg.Pipeline)
	opConfig.ManifestFile = filepath.Join(paths.DataDir, PipelineManifestFile)

	managerOpts := []operations.ManagerOption{
		operations.WithManagerLogger(logger),
		operations.WithMetrics(metrics),
		operations.WithManifestScanner(operations.ScanDataDirectories(paths)),
	}
	manager := operations.NewManager(hub, nil, opConfig, managerOpts...)

	p := &Pipeline{
		Config:   cfg,
		Paths:    paths,
		Catalog:  catalog,
		Manifest: manifest,
		Manager:  manager,
		Enigh:    enigh.NewProcessor(paths, manifest, logger),
		logger:   infrastructure.WithComponent(logger, "pipeline"),
	}

	deps := operations.StepDeps{
		Paths:    paths,
		Pipeline: cfg.Pipeline,
		Catalog:  catalog,
		Manifest: manifest,
		Downloader: download.NewClient(cfg.Download,
			download.WithLogger(logger),
			download.WithMetrics(metrics)),
		CleanRaw: cfg.Download.CleanBeforeFetch,
		Metrics:  metrics,
		Logger:   logger,
	}

	if cfg.Indicators.Token != "" {
		deps.Indicators = indicators.NewClient(cfg.Indicators, indicators.WithLogger(logger))
	} else {
		p.logger.InfoContext(ctx, "indicators API token not set, indicators step disabled")
	}

	if cfg.Publish.Enabled() {
		publisher, err := publish.NewPublisher(ctx, cfg.Publish, logger)
		if err != nil {
			return nil, err
		}
		deps.Publisher = publisher
	}

	if cfg.Store.Enabled() {
		st, err := store.Open(ctx, cfg.Store, logger)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			st.Close()
			return nil, err
		}
		p.Store = st
		deps.Store = st
	}

	if err := operations.RegisterSteps(manager, deps); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to register pipeline steps: %w", err)
	}
	return p, nil
}

// Run executes req synchronously.
func (p *Pipeline) Run(ctx context.Context, req operations.OperationRequest) (*operations.OperationResponse, error) {
	return p.Manager.Execute(ctx, req)
}

// Close stops the manager and releases the result store.
func (p *Pipeline) Close() error {
	p.Manager.Stop()
	var errs []error
	if p.Store != nil {
		errs = append(errs, p.Store.Close())
	}
	return errors.Join(errs...)
}
