package etl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ── Destinations ───────────────────────────────────────────
// A Sink materializes one run's records as a columnar partition.
// A TableWriter bulk-loads a partition into a relational table.
// Both always replace what is there: every run is a full recomputation.

// Sink writes the complete record set of a run to a partition path,
// overwriting any existing content.
type Sink interface {
	Write(ctx context.Context, path string, schema *Schema, records []Record) (int, error)
}

// PartitionReader reads a partition written by a Sink.
type PartitionReader interface {
	Read(ctx context.Context, path string, schema *Schema) ([]Record, error)
}

// TableWriter replaces the contents of a table with records.
type TableWriter interface {
	ReplaceTable(ctx context.Context, table string, schema *Schema, records []Record) (int, error)
}

// ── Loader ─────────────────────────────────────────────────

// LoadJob describes one partition → table copy.
type LoadJob struct {
	Source    string `json:"source"`
	InputPath string `json:"inputPath"`
	Table     string `json:"table"`
	Schema    *Schema
}

// Loader copies a partition into a table.
type Loader struct {
	Reader PartitionReader
	Dest   TableWriter
	Logger *zap.Logger
}

// Load reads the whole partition and overwrites the table with it.
func (l *Loader) Load(ctx context.Context, job LoadJob) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{Source: job.Source, Path: job.InputPath}
	logger := nopIfNil(l.Logger).With(zap.String("component", "loader"), zap.String("source", job.Source))

	records, err := l.Reader.Read(ctx, job.InputPath, job.Schema)
	if err != nil {
		return result.fail(start, fmt.Errorf("read partition: %w", err))
	}
	result.RowsRead = len(records)

	written, err := l.Dest.ReplaceTable(ctx, job.Table, job.Schema, records)
	if err != nil {
		return result.fail(start, fmt.Errorf("replace table %s: %w", job.Table, err))
	}

	result.Status = StatusSuccess
	result.RowsWritten = written
	result.Duration = time.Since(start)
	logger.Info("table replaced",
		zap.String("table", job.Table),
		zap.String("path", job.InputPath),
		zap.Int("rows", written),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func nopIfNil(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
