// Package app assembles the deck pipeline from configuration. The CLI and
// the Lambda handlers share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"icdeck/internal/awsclients"
	"icdeck/internal/config"
	"icdeck/internal/evidence"
	"icdeck/internal/faults"
	"icdeck/internal/flow"
	"icdeck/internal/generator"
	"icdeck/internal/ingest"
	"icdeck/internal/kendra"
	"icdeck/internal/objectstore"
	"icdeck/internal/pipeline"
	"icdeck/internal/report"
	"icdeck/internal/sections"
	"icdeck/internal/storage"
)

// App holds the process-wide collaborators. The registry is created once and
// initialized at most once.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	AWS      *awsclients.Clients
	Store    storage.Store
	Catalog  *sections.Catalog
	Registry *flow.Registry
}

// New loads AWS clients and opens the fingerprint store.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	clients, err := awsclients.Load(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open fingerprint store: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		AWS:     clients,
		Store:   store,
		Catalog: sections.Default(),
	}
	a.Registry = flow.NewRegistry(
		flow.NewBedrockService(clients.Agent, cfg.Flows.ExecutionRoleARN, logger),
		store,
		flow.WithAlias(cfg.Flows.AliasName),
		flow.WithDriftCheck(cfg.DriftCheckEnabled()),
		flow.WithInference(flow.Inference{
			ModelID:     cfg.Flows.ModelID,
			MaxTokens:   cfg.Flows.MaxTokens,
			Temperature: cfg.Flows.Temperature,
			TopP:        cfg.Flows.TopP,
		}),
		flow.WithRegistryLogger(logger),
	)
	return a, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// InitFlows initializes the registry for every catalog section.
func (a *App) InitFlows(ctx context.Context) error {
	if err := a.Config.RequireFlows(); err != nil {
		return err
	}
	return a.Registry.Initialize(ctx, a.Catalog.All())
}

// Generator builds a section generator backed by the Kendra index and the
// Bedrock runtime.
func (a *App) Generator() (*generator.SectionGenerator, error) {
	if err := a.Config.RequireRetrieval(); err != nil {
		return nil, err
	}
	retriever, err := kendra.NewRetriever(a.AWS.Kendra, a.Config.Kendra.IndexID, a.Config.Kendra.PageSize)
	if err != nil {
		return nil, err
	}
	agg := evidence.NewAggregator(retriever,
		evidence.WithLogger(a.Logger),
		evidence.WithParallelism(a.Config.Evidence.ParallelQueries))
	exec := flow.NewExecutor(flow.NewBedrockInvoker(a.AWS.Runtime))
	return generator.NewSectionGenerator(a.Catalog, a.Registry, agg, exec, generator.WithLogger(a.Logger)), nil
}

// Directory discovers clients from the index.
func (a *App) Directory() (*kendra.Directory, error) {
	if err := a.Config.RequireRetrieval(); err != nil {
		return nil, err
	}
	return kendra.NewDirectory(a.AWS.Kendra, a.Config.Kendra.IndexID, a.Logger), nil
}

// Sink stores decks in report.local_dir when set, otherwise in the output
// bucket.
func (a *App) Sink() (report.Sink, error) {
	if a.Config.Report.LocalDir != "" {
		return objectstore.NewLocalSink(a.Config.Report.LocalDir), nil
	}
	if err := a.Config.RequireBucket("OUTPUT_BUCKET_NAME", a.Config.Buckets.Output); err != nil {
		return nil, err
	}
	return objectstore.NewS3Sink(a.AWS.S3, a.Config.Buckets.Output), nil
}

// DeckRun wires a full generation run.
func (a *App) DeckRun() (*pipeline.DeckRun, error) {
	if err := a.Config.RequireFlows(); err != nil {
		return nil, err
	}
	gen, err := a.Generator()
	if err != nil {
		return nil, err
	}
	dir, err := a.Directory()
	if err != nil {
		return nil, err
	}
	sink, err := a.Sink()
	if err != nil {
		return nil, err
	}

	run := &pipeline.DeckRun{
		Catalog:   a.Catalog,
		Registry:  a.Registry,
		Generator: gen,
		Assembler: report.NewAssembler(sink, a.Config.Report.Prefix, report.WithLogger(a.Logger)),
		Clients:   dir,
		ReportDir: a.Config.Report.RunDir,
		Logger:    a.Logger,
	}
	if l, ok := a.Store.(storage.Ledger); ok {
		run.Ledger = l
	}
	return run, nil
}

// Ledger returns the generation ledger when the store keeps one.
func (a *App) Ledger() (storage.Ledger, error) {
	l, ok := a.Store.(storage.Ledger)
	if !ok {
		return nil, errors.New("the configured storage backend keeps no generation ledger; use sqlite")
	}
	return l, nil
}

// Uploader uploads client batches to the input bucket.
func (a *App) Uploader() (*objectstore.Uploader, error) {
	if err := a.Config.RequireBucket("INPUT_BUCKET_NAME", a.Config.Buckets.Input); err != nil {
		return nil, err
	}
	return objectstore.NewUploader(a.AWS.S3, a.Config.Buckets.Input, 4, a.Logger), nil
}

// Trigger provisions client data sources on completion markers.
func (a *App) Trigger() (*ingest.Trigger, error) {
	if err := a.Config.RequireRetrieval(); err != nil {
		return nil, err
	}
	if a.Config.Kendra.RoleARN == "" {
		return nil, faults.Configuration("app.Trigger", "KENDRA_ROLE_ARN is not set")
	}
	if err := a.Config.RequireBucket("INPUT_BUCKET_NAME", a.Config.Buckets.Input); err != nil {
		return nil, err
	}
	ds := kendra.NewDataSources(a.AWS.Kendra, kendra.DataSourcesConfig{
		IndexID: a.Config.Kendra.IndexID,
		RoleARN: a.Config.Kendra.RoleARN,
		Bucket:  a.Config.Buckets.Input,
	}, a.Logger)
	return ingest.NewTrigger(ds, a.Logger), nil
}
