// Package columnar writes and reads the parquet partitions the pipeline
// produces. A partition is a directory holding one data file plus a
// _SUCCESS marker; it lives on local disk or below an s3:// prefix.
package columnar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"

	"intake/internal/etl"
	"intake/internal/objstore"
)

// File names inside a partition directory.
const (
	DataFile    = "part-00000.parquet"
	SuccessFile = "_SUCCESS"
)

// Writer is an etl.Sink producing snappy-compressed parquet partitions.
type Writer struct {
	// Store handles s3:// paths. Writing to s3 fails when nil.
	Store  *objstore.Store
	Logger *zap.Logger
}

// ── Write ──────────────────────────────────────────────────

// Write replaces the partition at path with records. Rows are written in
// the order given, so identical input produces identical files.
func (w *Writer) Write(ctx context.Context, path string, schema *etl.Schema, records []etl.Record) (int, error) {
	if bucket, prefix, ok := objstore.ParseURL(path); ok {
		return w.writeS3(ctx, bucket, prefix, schema, records)
	}
	return w.writeLocal(ctx, path, schema, records)
}

// writeLocal stages the partition in a sibling directory and swaps it in,
// so readers never observe a half-written partition.
func (w *Writer) writeLocal(ctx context.Context, path string, schema *etl.Schema, records []etl.Record) (int, error) {
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return 0, fmt.Errorf("create partition parent: %w", err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)
	if err := os.Chmod(staging, 0o755); err != nil {
		return 0, err
	}

	n, err := writeDir(ctx, staging, schema, records)
	if err != nil {
		return 0, err
	}
	if err := os.RemoveAll(path); err != nil {
		return 0, fmt.Errorf("remove previous partition: %w", err)
	}
	if err := os.Rename(staging, path); err != nil {
		return 0, fmt.Errorf("publish partition: %w", err)
	}
	nopIfNil(w.Logger).Debug("partition published", zap.String("path", path), zap.Int("rows", n))
	return n, nil
}

func (w *Writer) writeS3(ctx context.Context, bucket, prefix string, schema *etl.Schema, records []etl.Record) (int, error) {
	if w.Store == nil {
		return 0, errors.New("s3 partition requested but no object store is configured")
	}
	if prefix == "" {
		return 0, fmt.Errorf("partition s3://%s: %w", bucket, objstore.ErrBucketRoot)
	}
	staging, err := os.MkdirTemp("", "intake-partition-")
	if err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	n, err := writeDir(ctx, staging, schema, records)
	if err != nil {
		return 0, err
	}
	if err := w.Store.DeletePrefix(ctx, bucket, prefix); err != nil {
		return 0, err
	}
	if err := w.Store.UploadDir(ctx, staging, bucket, prefix); err != nil {
		return 0, err
	}
	nopIfNil(w.Logger).Debug("partition uploaded",
		zap.String("bucket", bucket), zap.String("prefix", prefix), zap.Int("rows", n))
	return n, nil
}

// writeDir writes the data file and success marker into dir.
func writeDir(ctx context.Context, dir string, schema *etl.Schema, records []etl.Record) (int, error) {
	md, err := Metadata(schema)
	if err != nil {
		return 0, err
	}

	fw, err := local.NewLocalFileWriter(filepath.Join(dir, DataFile))
	if err != nil {
		return 0, fmt.Errorf("create data file: %w", err)
	}
	pw, err := writer.NewCSVWriter(md, fw, 1)
	if err != nil {
		fw.Close()
		return 0, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, rec := range records {
		if i%1000 == 0 && ctx.Err() != nil {
			fw.Close()
			return 0, ctx.Err()
		}
		row, err := toRow(schema, rec)
		if err != nil {
			fw.Close()
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		if err := pw.Write(row); err != nil {
			fw.Close()
			return 0, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return 0, fmt.Errorf("finalize parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return 0, fmt.Errorf("close data file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SuccessFile), nil, 0o644); err != nil {
		return 0, fmt.Errorf("write success marker: %w", err)
	}
	return len(records), nil
}

// ── Schema mapping ─────────────────────────────────────────

// Metadata converts a schema into parquet CSV-writer column tags.
func Metadata(schema *etl.Schema) ([]string, error) {
	md := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		var tag string
		switch f.Type {
		case etl.TypeInt:
			tag = "type=INT64"
		case etl.TypeFloat:
			tag = "type=DOUBLE"
		case etl.TypeString:
			tag = "type=BYTE_ARRAY, convertedtype=UTF8"
		case etl.TypeDate:
			tag = "type=INT32, convertedtype=DATE"
		default:
			return nil, fmt.Errorf("column %q: unsupported type %q", f.Name, f.Type)
		}
		md[i] = "name=" + f.Name + ", " + tag
	}
	return md, nil
}

func toRow(schema *etl.Schema, rec etl.Record) ([]interface{}, error) {
	row := make([]interface{}, len(schema.Fields))
	for i, f := range schema.Fields {
		v, ok := rec.Data[f.Name]
		if !ok {
			return nil, &etl.MissingFieldError{Field: f.Name}
		}
		pv, err := toParquet(f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
		row[i] = pv
	}
	return row, nil
}

func toParquet(typ string, v any) (any, error) {
	switch typ {
	case etl.TypeInt:
		if n, ok := v.(int64); ok {
			return n, nil
		}
	case etl.TypeFloat:
		if n, ok := v.(float64); ok {
			return n, nil
		}
	case etl.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case etl.TypeDate:
		if t, ok := v.(time.Time); ok {
			return int32(t.Unix() / secondsPerDay), nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) does not match type %s", v, v, typ)
}

const secondsPerDay = 24 * 60 * 60

func nopIfNil(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
