package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"intake/internal/etl"
)

// ── Dialects ───────────────────────────────────────────────

type dialect struct {
	name      string
	quote     func(string) string
	columns   map[string]string // etl type → column type
	dateValue func(time.Time) any
}

var (
	postgresDialect = dialect{
		name:  "postgres",
		quote: func(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` },
		columns: map[string]string{
			etl.TypeInt:    "BIGINT",
			etl.TypeFloat:  "DOUBLE PRECISION",
			etl.TypeString: "TEXT",
			etl.TypeDate:   "DATE",
		},
		dateValue: func(t time.Time) any { return t },
	}
	mysqlDialect = dialect{
		name:  "mysql",
		quote: func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
		columns: map[string]string{
			etl.TypeInt:    "BIGINT",
			etl.TypeFloat:  "DOUBLE",
			etl.TypeString: "TEXT",
			etl.TypeDate:   "DATE",
		},
		dateValue: func(t time.Time) any { return t.Format(time.DateOnly) },
	}
	sqliteDialect = dialect{
		name:  "sqlite",
		quote: postgresDialect.quote,
		columns: map[string]string{
			etl.TypeInt:    "INTEGER",
			etl.TypeFloat:  "REAL",
			etl.TypeString: "TEXT",
			etl.TypeDate:   "TEXT",
		},
		dateValue: func(t time.Time) any { return t.Format(time.DateOnly) },
	}
)

// quoteTable quotes each dot-separated part of a table name.
func (d dialect) quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = d.quote(p)
	}
	return strings.Join(parts, ".")
}

func createTableSQL(d dialect, quotedTable string, schema *etl.Schema) string {
	cols := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		typ, ok := d.columns[f.Type]
		if !ok {
			typ = d.columns[etl.TypeString]
		}
		cols[i] = d.quote(f.Name) + " " + typ
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quotedTable, strings.Join(cols, ", "))
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// createIndexSQL indexes the derived date key when the schema carries it.
func createIndexSQL(d dialect, table, quotedTable string, schema *etl.Schema) string {
	for _, f := range schema.Fields {
		if f.Name != etl.DateKeyField {
			continue
		}
		name := nonIdent.ReplaceAllString(table, "_") + "_" + f.Name + "_idx"
		return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", d.quote(name), quotedTable, d.quote(f.Name))
	}
	return ""
}

// rowValues returns rec's values in schema order, as the dialect stores them.
func rowValues(d dialect, schema *etl.Schema, rec etl.Record) ([]any, error) {
	row := make([]any, len(schema.Fields))
	for i, f := range schema.Fields {
		v, ok := rec.Data[f.Name]
		if !ok {
			return nil, &etl.MissingFieldError{Field: f.Name}
		}
		if t, ok := v.(time.Time); ok {
			v = d.dateValue(t)
		}
		row[i] = v
	}
	return row, nil
}

// ── database/sql writer ────────────────────────────────────
// Shared implementation for MySQL and SQLite. MySQL commits DDL
// implicitly, so on MySQL the drop and create are not covered by the
// insert transaction.

const insertBatchSize = 500

type sqlWriter struct {
	driverName string
	db         *sql.DB
	dialect    dialect
}

// newSQLWriter creates a generic SQL table writer.
func newSQLWriter(driverName, dsn string, d dialect) (*sqlWriter, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlWriter{driverName: driverName, db: db, dialect: d}, nil
}

func (w *sqlWriter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return w.db.PingContext(ctx)
}

func (w *sqlWriter) Close() error {
	return w.db.Close()
}

func (w *sqlWriter) ReplaceTable(ctx context.Context, table string, schema *etl.Schema, records []etl.Record) (int, error) {
	quoted := w.dialect.quoteTable(table)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return 0, fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(w.dialect, quoted, schema)); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	written := 0
	for start := 0; start < len(records); start += insertBatchSize {
		end := min(start+insertBatchSize, len(records))
		stmt, args, err := insertSQL(w.dialect, quoted, schema, records[start:end])
		if err != nil {
			return 0, fmt.Errorf("rows %d-%d: %w", start, end-1, err)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
		}
		written += end - start
	}

	if stmt := createIndexSQL(w.dialect, table, quoted, schema); stmt != "" {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("create index: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// insertSQL builds one multi-row INSERT for batch.
func insertSQL(d dialect, quotedTable string, schema *etl.Schema, batch []etl.Record) (string, []any, error) {
	cols := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		cols[i] = d.quote(f.Name)
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", quotedTable, strings.Join(cols, ", "))
	args := make([]any, 0, len(batch)*len(cols))
	for i, rec := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholder)
		row, err := rowValues(d, schema, rec)
		if err != nil {
			return "", nil, err
		}
		args = append(args, row...)
	}
	return b.String(), args, nil
}
