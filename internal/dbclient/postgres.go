package dbclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"intake/internal/domain"
	"intake/internal/etl"
)

// buildPostgresDSN constructs a Postgres connection string from a DatabaseConnection.
func buildPostgresDSN(conn *domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pgValue(conn.Host), port, pgValue(conn.Username), pgValue(password), pgValue(conn.Database), pgValue(sslMode),
	)
}

// pgValue quotes a keyword/value DSN value when it needs it.
func pgValue(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// ── Postgres writer ────────────────────────────────────────
// DDL is transactional in Postgres, so drop, create and COPY commit
// together and readers see either the old or the new table.

type postgresWriter struct {
	pool *pgxpool.Pool
}

func newPostgresWriter(ctx context.Context, dsn string) (*postgresWriter, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 2
	cfg.MaxConnLifetime = 10 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &postgresWriter{pool: pool}, nil
}

func (w *postgresWriter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return w.pool.Ping(ctx)
}

func (w *postgresWriter) Close() error {
	w.pool.Close()
	return nil
}

func (w *postgresWriter) ReplaceTable(ctx context.Context, table string, schema *etl.Schema, records []etl.Record) (int, error) {
	ident := pgx.Identifier(strings.Split(table, "."))
	quoted := ident.Sanitize()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return 0, fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.Exec(ctx, createTableSQL(postgresDialect, quoted, schema)); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		row, err := rowValues(postgresDialect, schema, rec)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		rows[i] = row
	}
	n, err := tx.CopyFrom(ctx, ident, schema.FieldNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy rows: %w", err)
	}

	if stmt := createIndexSQL(postgresDialect, table, quoted, schema); stmt != "" {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("create index: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(n), nil
}
