package dbclient

import (
	"intake/internal/domain"

	_ "modernc.org/sqlite"
)

// newSQLiteWriter opens an SQLite file as a load target.
// Opens in WAL mode with busy timeout for concurrent readers.
func newSQLiteWriter(conn *domain.DatabaseConnection) (*sqlWriter, error) {
	dsn := conn.Host + "?_journal_mode=WAL&_busy_timeout=5000"
	w, err := newSQLWriter("sqlite", dsn, sqliteDialect)
	if err != nil {
		return nil, err
	}
	// One writer at a time.
	w.db.SetMaxOpenConns(1)
	return w, nil
}
