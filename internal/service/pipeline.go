package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"intake/internal/config"
	"intake/internal/dbclient"
	"intake/internal/domain"
	"intake/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// PipelineService: the two daily steps of a source
// ─────────────────────────────────────────────────────────────

// ErrRunInProgress is returned when a source already has a run in flight.
var ErrRunInProgress = errors.New("run already in progress")

// TableOpener opens the relational load target. The writer is closed
// after each load.
type TableOpener func(ctx context.Context) (dbclient.TableWriter, error)

// Deps are the collaborators of a PipelineService.
type Deps struct {
	Config  *config.Config
	Sources *config.SourceLoader
	Engine  *etl.Engine
	Reader  etl.PartitionReader
	Tables  TableOpener
	Runs    domain.RunStore // optional
	Emitter EventEmitter    // optional
	Logger  *zap.Logger
}

// PipelineService runs extract and load steps for configured sources.
type PipelineService struct {
	cfg     *config.Config
	sources *config.SourceLoader
	engine  *etl.Engine
	reader  etl.PartitionReader
	tables  TableOpener
	runs    domain.RunStore
	emitter EventEmitter
	logger  *zap.Logger

	running runGuard
}

// NewPipelineService creates a PipelineService ready for use.
func NewPipelineService(d Deps) *PipelineService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sources := d.Sources
	if sources == nil {
		sources = d.Config.SourceLoader()
	}
	emitter := d.Emitter
	if emitter == nil {
		emitter = &LogEmitter{Logger: logger}
	}
	return &PipelineService{
		cfg:     d.Config,
		sources: sources,
		engine:  d.Engine,
		reader:  d.Reader,
		tables:  d.Tables,
		runs:    d.Runs,
		emitter: emitter,
		logger:  logger.With(zap.String("component", "pipeline")),
	}
}

// StepOptions override the paths and table a step derives from the
// execution date and descriptor.
type StepOptions struct {
	Path  string
	Table string
}

// ── Steps ──────────────────────────────────────────────────

// Extract fetches and structures source and overwrites its partition for
// execDate.
func (s *PipelineService) Extract(ctx context.Context, source string, execDate time.Time, opts StepOptions) (*etl.RunResult, error) {
	if !s.running.TryLock(source) {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, source)
	}
	defer s.running.Unlock(source)
	return s.extract(ctx, source, execDate, opts)
}

// Load copies the partition of execDate into the source's table.
func (s *PipelineService) Load(ctx context.Context, source string, execDate time.Time, opts StepOptions) (*etl.RunResult, error) {
	if !s.running.TryLock(source) {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, source)
	}
	defer s.running.Unlock(source)
	return s.load(ctx, source, execDate, opts)
}

// Run executes the source's workflow: Extract then Load. Load is
// skipped when Extract fails.
func (s *PipelineService) Run(ctx context.Context, source string, execDate time.Time) error {
	return NewWorkflow(source).Execute(ctx, s, execDate)
}

// WaitRunning blocks until all running steps finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *PipelineService) WaitRunning(ctx context.Context) {
	s.running.WaitAll(ctx)
}

// PartitionPath is where the partition of source for execDate lives.
func (s *PipelineService) PartitionPath(source string, execDate time.Time) string {
	return config.OutputPath(s.cfg.DataHome, source, execDate)
}

// Descriptor loads the descriptor of source.
func (s *PipelineService) Descriptor(source string) (*etl.SchemaDescriptor, error) {
	return s.sources.Load(source)
}

func (s *PipelineService) extract(ctx context.Context, source string, execDate time.Time, opts StepOptions) (*etl.RunResult, error) {
	path := opts.Path
	if path == "" {
		path = s.PartitionPath(source, execDate)
	}
	run := s.begin(ctx, &domain.Run{Source: source, Step: domain.RunStepExtract, ExecDate: execDate, Path: path})

	desc, err := s.sources.Load(source)
	if err != nil {
		s.finish(ctx, run, nil, err)
		return nil, err
	}
	result, err := s.engine.Run(ctx, &etl.Job{Descriptor: desc, OutputPath: path})
	s.finish(ctx, run, result, err)
	return result, err
}

func (s *PipelineService) load(ctx context.Context, source string, execDate time.Time, opts StepOptions) (*etl.RunResult, error) {
	path := opts.Path
	if path == "" {
		path = s.PartitionPath(source, execDate)
	}
	run := s.begin(ctx, &domain.Run{Source: source, Step: domain.RunStepLoad, ExecDate: execDate, Path: path, Target: opts.Table})

	desc, err := s.sources.Load(source)
	if err != nil {
		s.finish(ctx, run, nil, err)
		return nil, err
	}
	if run.Target == "" {
		run.Target = s.cfg.TableFor(desc.TableName())
	}
	if s.tables == nil {
		err := errors.New("no load target configured")
		s.finish(ctx, run, nil, err)
		return nil, err
	}

	dest, err := s.tables(ctx)
	if err != nil {
		err = fmt.Errorf("open load target: %w", err)
		s.finish(ctx, run, nil, err)
		return nil, err
	}
	defer dest.Close()

	loader := &etl.Loader{Reader: s.reader, Dest: dest, Logger: s.logger}
	result, err := loader.Load(ctx, etl.LoadJob{
		Source:    source,
		InputPath: path,
		Table:     run.Target,
		Schema:    etl.OutputSchema(desc),
	})
	s.finish(ctx, run, result, err)
	return result, err
}

// ── History + events ───────────────────────────────────────

func (s *PipelineService) begin(ctx context.Context, run *domain.Run) *domain.Run {
	if s.runs != nil {
		if err := s.runs.CreateRun(run); err != nil {
			s.logger.Warn("record run start", zap.String("source", run.Source), zap.Error(err))
		}
	}
	s.emitter.Emit(ctx, EventRunStarted, map[string]string{
		"source": run.Source,
		"step":   string(run.Step),
		"path":   run.Path,
	})
	return run
}

func (s *PipelineService) finish(ctx context.Context, run *domain.Run, result *etl.RunResult, runErr error) {
	run.Status = domain.RunStatusSuccess
	if result != nil {
		run.Rows = result.RowsWritten
	}
	if runErr != nil {
		run.Status = domain.RunStatusError
		run.Error = runErr.Error()
	}
	if s.runs != nil && run.ID != "" {
		if err := s.runs.FinishRun(run); err != nil {
			s.logger.Warn("record run finish", zap.String("source", run.Source), zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("source", run.Source),
		zap.String("step", string(run.Step)),
		zap.String("path", run.Path),
		zap.Int("rows", run.Rows),
	}
	if runErr != nil {
		s.logger.Error("step failed", append(fields, zap.Error(runErr))...)
		s.emitter.Emit(ctx, EventRunFailed, map[string]string{
			"source": run.Source,
			"step":   string(run.Step),
			"error":  run.Error,
		})
		return
	}
	s.logger.Info("step completed", fields...)
	s.emitter.Emit(ctx, EventRunCompleted, map[string]any{
		"source": run.Source,
		"step":   string(run.Step),
		"rows":   run.Rows,
	})
}
