package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"docket/internal/checklist"
	"docket/internal/content"
	"docket/internal/document/events"
	"docket/internal/document/lifecycle"
	docmetrics "docket/internal/document/metrics"
	"docket/internal/document/models"
	"docket/internal/document/service"
	"docket/internal/document/store"
	"docket/internal/platform/config"
	"docket/internal/platform/database"
	"docket/internal/platform/logger"
	"docket/internal/platform/metrics"
	platformredis "docket/internal/platform/redis"
	"docket/internal/resolve"
	"docket/internal/resolve/cache"
	resolvemetrics "docket/internal/resolve/metrics"
	"docket/internal/resolve/planner"
	"docket/internal/resolve/resolvers"
)

// app holds the wired services for one process.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	http     *metrics.Metrics

	db        *sql.DB
	redis     *platformredis.Client
	sink      *events.KafkaSink
	publisher *events.Publisher

	documents *service.Service
	engine    *resolve.Engine
	planner   *planner.Planner
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	log, err := logger.New(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log, registry: metrics.NewRegistry()}
	a.http = metrics.New(a.registry)

	for _, open := range []func(context.Context) error{a.openDocuments, a.openResolution} {
		if err := open(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openDocuments(ctx context.Context) error {
	cfg := a.cfg
	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	a.db = db

	var docStore *store.SQLStore
	if cfg.Database.Driver == database.DriverPostgres {
		docStore = store.NewPostgres(db)
	} else {
		docStore = store.NewSQLite(db)
	}
	if err := docStore.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	files, err := content.NewFS(cfg.Content.Root)
	if err != nil {
		return err
	}

	var sink events.Sink = events.NewLogSink(a.logger)
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		a.sink = kafka
		sink = kafka
	}
	a.publisher = events.NewPublisher(sink,
		events.WithLogger(a.logger),
		events.WithMetrics(events.NewMetrics(a.registry)),
		events.WithAsyncBuffer(cfg.Kafka.Buffer),
	)

	a.documents, err = service.New(docStore, files, service.Config{
		Types:         cfg.Documents.Types,
		ScopeKey:      cfg.Documents.ScopeKey,
		ArchiveRoot:   cfg.Content.ArchiveRoot,
		Retention:     retentionPolicies(cfg.Retention),
		ExcerptLength: cfg.Documents.ExcerptLength,
	},
		service.WithLogger(a.logger),
		service.WithMetrics(docmetrics.New(a.registry)),
		service.WithEventPublisher(a.publisher),
	)
	return err
}

func (a *app) openResolution(ctx context.Context) error {
	cfg := a.cfg
	m := resolvemetrics.New(a.registry)

	var contextCache cache.Cache = cache.NewLRU(cfg.Resolution.ContextSize, cfg.Resolution.ContextTTL)
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if client != nil {
		a.redis = client
		contextCache = cache.NewRedis(client.Client, client.Prefix(), cfg.Resolution.ContextTTL)
	}

	loaders := resolvers.ChainLoader{resolvers.StaticLoader(cfg.Resolution.Context)}
	if cfg.Resolution.ContextDocumentType != "" {
		loaders = append(loaders, resolvers.NewMetadataLoader(a.documents, cfg.Resolution.ContextDocumentType))
	}

	sources, err := resolvers.Sources(a.documents, cfg.Resolution.Tables)
	if err != nil {
		return err
	}

	checklistDir := cfg.Resolution.ChecklistDir
	if !filepath.IsAbs(checklistDir) {
		checklistDir = filepath.Join(cfg.Content.Root, checklistDir)
	}

	reg := resolve.NewRegistry()
	reg.MustRegister("doc", resolvers.NewDoc(a.documents))
	reg.MustRegister("checklist", resolvers.NewChecklist(checklist.NewDir(checklistDir)))
	reg.MustRegister("query", resolvers.NewQuery(sources, cfg.Resolution.QueryRowCap))
	reg.MustRegister("context", resolvers.NewContext(contextCache, loaders,
		resolvers.WithContextLogger(a.logger),
		resolvers.WithContextMetrics(m),
	))

	a.engine = resolve.NewEngine(reg,
		resolve.WithLogger(a.logger),
		resolve.WithMetrics(m),
		resolve.WithMaxDepth(cfg.Resolution.MaxDepth),
	)

	workflows := make(map[string][]planner.Entry, len(cfg.Resolution.Workflows))
	for name, entries := range cfg.Resolution.Workflows {
		for _, e := range entries {
			workflows[name] = append(workflows[name], planner.Entry{Var: e.Var, Ref: e.Ref})
		}
	}
	a.planner, err = planner.New(workflows)
	return err
}

func retentionPolicies(cfg config.Retention) lifecycle.Policies {
	byName := make(map[string]models.RetentionPolicy, len(cfg.Policies))
	for name, p := range cfg.Policies {
		byName[name] = models.RetentionPolicy{
			Name:          name,
			ObsoleteAfter: p.ObsoleteAfter,
			DeleteAfter:   p.DeleteAfter,
			AllowDelete:   p.AllowDelete,
		}
	}
	return lifecycle.Policies{
		ByName:       byName,
		TypeDefaults: cfg.TypeDefaults,
		Default:      cfg.Default,
		BlockingTags: cfg.BlockingTags,
	}
}

// Close flushes queued events and releases connections.
func (a *app) Close() error {
	var errs []error
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.sink != nil {
		a.sink.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
