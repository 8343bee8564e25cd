package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"intake/internal/etl"
	"intake/internal/etl/sources"
)

// ─────────────────────────────────────────────────────────────
// Scheduler: cron + file watch triggers for workflows
// ─────────────────────────────────────────────────────────────

// DefaultDebounce collapses bursts of file events into one run.
const DefaultDebounce = 500 * time.Millisecond

// Scheduler fires every workflow on a cron schedule. Workflows whose
// source is a local file also run when that file changes.
type Scheduler struct {
	svc       *PipelineService
	workflows []*Workflow
	schedule  string
	logger    *zap.Logger

	// Debounce overrides DefaultDebounce when positive.
	Debounce time.Duration
	// Now is the clock used for execution dates; time.Now when nil.
	Now func() time.Time

	mu          sync.Mutex
	cronSched   *cron.Cron
	entryIDs    map[string]cron.EntryID
	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
}

// NewScheduler creates a Scheduler. schedule is a robfig/cron expression or
// descriptor such as "@daily".
func NewScheduler(svc *PipelineService, workflows []*Workflow, schedule string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		svc:       svc,
		workflows: workflows,
		schedule:  schedule,
		logger:    logger.With(zap.String("component", "scheduler")),
	}
}

// Start registers every workflow and begins firing. It tears down any
// previous cron and watcher first.
func (s *Scheduler) Start(ctx context.Context) error {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	// ── Cron ──
	c := cron.New(cron.WithLocation(time.UTC))
	ids := make(map[string]cron.EntryID, len(s.workflows))
	for _, wf := range s.workflows {
		wf := wf
		id, err := c.AddFunc(s.schedule, func() { s.fire(ctx, wf, "cron") })
		if err != nil {
			return fmt.Errorf("schedule %s: invalid expression %q: %w", wf.ID(), s.schedule, err)
		}
		ids[wf.Source] = id
	}
	c.Start()
	s.cronSched = c
	s.entryIDs = ids
	s.logger.Info("scheduled workflows", zap.Int("count", len(s.workflows)), zap.String("schedule", s.schedule))

	// ── File watchers ──
	return s.startWatcherLocked(ctx)
}

// Entries returns the next fire time of each workflow, keyed by source.
func (s *Scheduler) Entries() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]time.Time{}
	if s.cronSched == nil {
		return out
	}
	for source, id := range s.entryIDs {
		out[source] = s.cronSched.Entry(id).Next
	}
	return out
}

// WaitRunning blocks until all running workflows finish or ctx is cancelled.
func (s *Scheduler) WaitRunning(ctx context.Context) {
	s.svc.WaitRunning(ctx)
}

// Stop tears down the cron scheduler and file watcher. Safe to call more
// than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
		s.entryIDs = nil
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) fire(ctx context.Context, wf *Workflow, trigger string) {
	execDate := ExecDate(s.now())
	s.logger.Info("running workflow",
		zap.String("workflow", wf.ID()),
		zap.String("trigger", trigger),
		zap.Time("exec_date", execDate))
	if err := wf.Execute(ctx, s.svc, execDate); err != nil {
		s.logger.Error("workflow failed", zap.String("workflow", wf.ID()), zap.Error(err))
	}
}

func (s *Scheduler) startWatcherLocked(ctx context.Context) error {
	pathToWorkflow := make(map[string]*Workflow)
	for _, wf := range s.workflows {
		desc, err := s.svc.Descriptor(wf.Source)
		if err != nil {
			return fmt.Errorf("workflow %s: %w", wf.ID(), err)
		}
		if etl.SchemeOf(desc.Location) != "file" {
			continue
		}
		absPath, err := filepath.Abs(sources.LocalPath(desc.Location))
		if err != nil {
			s.logger.Warn("bad source path", zap.String("path", desc.Location), zap.Error(err))
			continue
		}
		pathToWorkflow[absPath] = wf
	}
	if len(pathToWorkflow) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	watchedDirs := make(map[string]bool)
	for path := range pathToWorkflow {
		dir := filepath.Dir(path)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.logger.Warn("watch dir failed", zap.String("dir", dir), zap.Error(err))
			continue
		}
		watchedDirs[dir] = true
	}
	s.watcher = watcher

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	debounce := s.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	go func() {
		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				t.Stop()
			}
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				wf, ok := pathToWorkflow[absPath]
				if !ok {
					continue
				}
				if t, exists := timers[absPath]; exists {
					t.Stop()
				}
				timers[absPath] = time.AfterFunc(debounce, func() {
					if watchCtx.Err() != nil {
						return
					}
					s.fire(ctx, wf, "file")
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}()

	s.logger.Info("watching source files", zap.Int("count", len(pathToWorkflow)))
	return nil
}
