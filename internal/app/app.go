// Package app wires configuration, history storage and the pipeline
// services together for the command line.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"intake/internal/config"
	"intake/internal/dbclient"
	"intake/internal/domain"
	"intake/internal/etl"
	"intake/internal/etl/columnar"
	"intake/internal/etl/sources"
	"intake/internal/objstore"
	"intake/internal/service"
	"intake/internal/storage"
)

// shutdownGrace bounds how long Schedule waits for in-flight runs.
const shutdownGrace = 30 * time.Second

// App owns every long-lived resource of one CLI invocation.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	db       *storage.DB
	runs     *storage.RunStore
	store    *objstore.Store
	sources  *config.SourceLoader
	pipeline *service.PipelineService
}

// New creates a new App. Nothing is opened until Startup.
func New(cfg *config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger}
}

// Startup opens the run history and builds the pipeline.
func (a *App) Startup(ctx context.Context) error {
	db, err := storage.New(a.cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	a.db = db
	a.runs = storage.NewRunStore(db)

	store, err := objstore.New(objstore.Options{
		Region:          a.cfg.AWS.Region,
		Endpoint:        a.cfg.AWS.Endpoint,
		AccessKeyID:     a.cfg.AWS.AccessKeyID,
		SecretAccessKey: a.cfg.AWS.SecretAccessKey,
	})
	if err != nil {
		db.Close()
		return err
	}
	a.store = store
	a.sources = a.cfg.SourceLoader()

	registry := sources.NewRegistry(sources.Options{
		HTTPClient: &http.Client{Timeout: a.cfg.HTTPTimeout},
		Store:      store,
	})
	a.pipeline = service.NewPipelineService(service.Deps{
		Config:  a.cfg,
		Sources: a.sources,
		Engine: &etl.Engine{
			Sources:       registry,
			Sink:          &columnar.Writer{Store: store, Logger: a.logger},
			PartitionSize: a.cfg.PartitionSize,
			Workers:       a.cfg.Workers,
			Logger:        a.logger,
		},
		Reader:  &columnar.Reader{Store: store},
		Tables:  a.openTable,
		Runs:    a.runs,
		Emitter: &service.LogEmitter{Logger: a.logger},
		Logger:  a.logger,
	})

	a.logger.Debug("app started",
		zap.String("data_home", a.cfg.DataHome),
		zap.String("history", db.Path()),
		zap.Strings("sources", a.cfg.Sources))
	return nil
}

// Shutdown releases everything Startup opened.
func (a *App) Shutdown() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// Pipeline returns the pipeline service. Startup must have succeeded.
func (a *App) Pipeline() *service.PipelineService {
	return a.pipeline
}

// openTable connects to the configured relational store.
func (a *App) openTable(ctx context.Context) (dbclient.TableWriter, error) {
	conn, password, err := dbclient.FromConfig(a.cfg.Database)
	if err != nil {
		return nil, err
	}
	w, err := dbclient.NewTableWriter(ctx, conn, password)
	if err != nil {
		return nil, err
	}
	if err := w.Ping(ctx); err != nil {
		w.Close()
		return nil, fmt.Errorf("ping %s: %w", conn.Driver, err)
	}
	return w, nil
}

// ============================================================
// Scheduling
// ============================================================

// Schedule runs every configured source on the configured schedule until
// ctx is cancelled, then waits for in-flight runs.
func (a *App) Schedule(ctx context.Context) error {
	sched := service.NewScheduler(a.pipeline, service.Workflows(a.cfg.Sources), a.cfg.Schedule, a.logger)
	if err := sched.Start(ctx); err != nil {
		sched.Stop()
		return err
	}
	for source, next := range sched.Entries() {
		a.logger.Info("next run", zap.String("source", source), zap.Time("at", next))
	}

	<-ctx.Done()
	a.logger.Info("stopping scheduler")
	sched.Stop()

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	sched.WaitRunning(waitCtx)
	if waitCtx.Err() != nil {
		a.logger.Warn("runs still in flight at shutdown")
	}
	return nil
}

// ============================================================
// Sources + history
// ============================================================

// Sources describes every known descriptor, configured or not.
func (a *App) Sources() ([]SourceView, error) {
	names, err := a.sources.Names()
	if err != nil {
		return nil, err
	}
	scheduled := make(map[string]bool, len(a.cfg.Sources))
	for _, s := range a.cfg.Sources {
		scheduled[s] = true
	}

	views := make([]SourceView, 0, len(names))
	for _, name := range names {
		desc, err := a.sources.Load(name)
		if err != nil {
			return nil, err
		}
		views = append(views, SourceView{
			Name:      name,
			Location:  desc.Location,
			Table:     a.cfg.TableFor(desc.TableName()),
			Columns:   desc.SourceSchema().FieldNames(),
			Scheduled: scheduled[name],
		})
	}
	return views, nil
}

// History returns the most recent runs, newest first. An empty source
// lists every source.
func (a *App) History(source string, limit int) ([]domain.Run, error) {
	return a.runs.ListRuns(source, limit)
}
