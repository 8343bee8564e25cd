package dbclient

import (
	"context"
	"fmt"

	"intake/internal/domain"
	"intake/internal/etl"
)

// TableWriter loads partitions into an external database, replacing the
// target table (or collection) on every call.
type TableWriter interface {
	etl.TableWriter

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// NewTableWriter creates a TableWriter for the given database connection.
// The password must be provided separately (from SecretStore).
func NewTableWriter(ctx context.Context, conn *domain.DatabaseConnection, password string) (TableWriter, error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteWriter(conn)
	case domain.DatabaseDriverMySQL:
		return newMySQLWriter(conn, password)
	case domain.DatabaseDriverPostgres:
		return newPostgresWriter(ctx, buildPostgresDSN(conn, password))
	case domain.DatabaseDriverMongoDB:
		return newMongoWriter(conn, password)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}
