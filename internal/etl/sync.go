package etl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ── Run ────────────────────────────────────────────────────
// Orchestrates: source.Lines → partitions → ProcessPartition → sink.Write.

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Defaults used when the Engine leaves them unset.
const (
	DefaultPartitionSize = 5000
	DefaultWorkers       = 4
)

// Job is a single fetch+structure run for one source.
type Job struct {
	Descriptor *SchemaDescriptor
	OutputPath string
}

// RunResult is the outcome of running a job or a load.
type RunResult struct {
	Source      string        `json:"source"`
	Path        string        `json:"path"`
	Status      string        `json:"status"` // "success" | "error"
	LinesRead   int           `json:"linesRead"`
	Partitions  int           `json:"partitions"`
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

func (r *RunResult) fail(start time.Time, err error) (*RunResult, error) {
	r.Status = StatusError
	r.Error = err.Error()
	r.Duration = time.Since(start)
	return r, err
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs jobs using a source registry and a sink.
type Engine struct {
	Sources       *Registry
	Sink          Sink
	PartitionSize int
	Workers       int
	Logger        *zap.Logger
}

// Run executes a job end-to-end. Lines are cut into partitions of
// PartitionSize raw lines and processed by up to Workers goroutines.
// Results are concatenated in input order and written only after every
// partition succeeded; the first error aborts the run and nothing is
// written.
func (e *Engine) Run(ctx context.Context, job *Job) (*RunResult, error) {
	start := time.Now()
	desc := job.Descriptor
	result := &RunResult{Source: desc.Name, Path: job.OutputPath}
	logger := nopIfNil(e.Logger).With(zap.String("component", "engine"), zap.String("source", desc.Name))

	if err := desc.CheckFields(); err != nil {
		return result.fail(start, err)
	}

	// 1. Resolve line source from registry.
	src, err := e.Sources.Resolve(desc.Location)
	if err != nil {
		return result.fail(start, err)
	}

	// 2. Partition and structure.
	records, err := e.structure(ctx, src, desc, result)
	if err != nil {
		return result.fail(start, err)
	}
	result.RowsRead = len(records)
	logger.Debug("structured",
		zap.Int("lines", result.LinesRead),
		zap.Int("partitions", result.Partitions),
		zap.Int("rows", len(records)))

	// 3. Write the full record set to the partition.
	written, err := e.Sink.Write(ctx, job.OutputPath, OutputSchema(desc), records)
	if err != nil {
		return result.fail(start, fmt.Errorf("write: %w", err))
	}

	result.Status = StatusSuccess
	result.RowsWritten = written
	result.Duration = time.Since(start)
	logger.Info("partition written",
		zap.String("path", job.OutputPath),
		zap.Int("rows", written),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (e *Engine) structure(ctx context.Context, src LineSource, desc *SchemaDescriptor, result *RunResult) ([]Record, error) {
	size := e.PartitionSize
	if size <= 0 {
		size = DefaultPartitionSize
	}
	workers := e.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lineCh, errCh := src.Lines(readCtx, desc.Location)

	g, gctx := errgroup.WithContext(readCtx)
	g.SetLimit(workers)

	var (
		mu      sync.Mutex
		results = map[int][]Record{}
	)
	dispatch := func(idx int, lines []string) {
		g.Go(func() error {
			recs, err := ProcessPartition(desc, lines)
			if err != nil {
				return fmt.Errorf("partition %d: %w", idx, err)
			}
			mu.Lock()
			results[idx] = recs
			mu.Unlock()
			return nil
		})
	}

	chunk := make([]string, 0, size)
	partitions := 0
read:
	for {
		select {
		case line, ok := <-lineCh:
			if !ok {
				break read
			}
			result.LinesRead++
			chunk = append(chunk, line)
			if len(chunk) == size {
				dispatch(partitions, chunk)
				partitions++
				chunk = make([]string, 0, size)
			}
		case <-gctx.Done():
			break read
		}
	}
	if len(chunk) > 0 && gctx.Err() == nil {
		dispatch(partitions, chunk)
		partitions++
	}
	result.Partitions = partitions

	workErr := g.Wait()
	// Release the reader before waiting on its error channel.
	cancel()
	srcErr := <-errCh

	if workErr != nil {
		return nil, workErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if srcErr != nil {
		return nil, fmt.Errorf("read: %w", srcErr)
	}

	var records []Record
	for i := 0; i < partitions; i++ {
		records = append(records, results[i]...)
	}
	return records, nil
}
