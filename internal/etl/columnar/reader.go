package columnar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/reader"

	"intake/internal/etl"
	"intake/internal/objstore"
)

// Reader is an etl.PartitionReader for partitions written by Writer.
type Reader struct {
	Store *objstore.Store
}

// Read returns every row of the partition at path, in file order.
func (r *Reader) Read(ctx context.Context, path string, schema *etl.Schema) ([]etl.Record, error) {
	if bucket, prefix, ok := objstore.ParseURL(path); ok {
		return r.readS3(ctx, bucket, prefix, schema)
	}
	files, err := filepath.Glob(filepath.Join(path, "*.parquet"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files in %s: %w", path, os.ErrNotExist)
	}
	return readFiles(ctx, files, schema)
}

func (r *Reader) readS3(ctx context.Context, bucket, prefix string, schema *etl.Schema) ([]etl.Record, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("s3 partition requested but no object store is configured")
	}
	dir, err := os.MkdirTemp("", "intake-load-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	files, err := r.Store.Download(ctx, bucket, prefix, ".parquet", dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files below s3://%s/%s: %w", bucket, prefix, os.ErrNotExist)
	}
	return readFiles(ctx, files, schema)
}

func readFiles(ctx context.Context, files []string, schema *etl.Schema) ([]etl.Record, error) {
	var records []etl.Record
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := readFile(f, schema)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
		records = append(records, recs...)
	}
	return records, nil
}

// readFile reads the schema's columns one at a time and zips them into
// records.
func readFile(name string, schema *etl.Schema) ([]etl.Record, error) {
	fr, err := local.NewLocalFileReader(name)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetColumnReader(fr, 1)
	if err != nil {
		return nil, fmt.Errorf("parquet reader: %w", err)
	}
	defer pr.ReadStop()

	n := pr.GetNumRows()
	records := make([]etl.Record, n)
	for i := range records {
		records[i] = etl.Record{Data: make(map[string]any, len(schema.Fields))}
	}
	if n == 0 {
		return records, nil
	}

	for _, f := range schema.Fields {
		values, _, _, err := pr.ReadColumnByPath(common.ReformPathStr("parquet_go_root."+f.Name), n)
		if err != nil {
			return nil, fmt.Errorf("read column %q: %w", f.Name, err)
		}
		if int64(len(values)) != n {
			return nil, fmt.Errorf("column %q: got %d values, want %d", f.Name, len(values), n)
		}
		for i, v := range values {
			gv, err := fromParquet(f.Type, v)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", f.Name, i, err)
			}
			records[i].Data[f.Name] = gv
		}
	}
	return records, nil
}

func fromParquet(typ string, v any) (any, error) {
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
		if d, ok := v.(int32); ok {
			return time.Unix(int64(d)*secondsPerDay, 0).UTC(), nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) does not match type %s", v, v, typ)
}
