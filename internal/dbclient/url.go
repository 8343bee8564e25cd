package dbclient

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"intake/internal/config"
	"intake/internal/domain"
)

// ParseURL converts a database URL into a connection and its password.
// Accepted forms: postgres://, postgresql://, jdbc:postgresql://, mysql://,
// jdbc:mysql://, sqlite://<path>, mongodb:// and mongodb+srv://. JDBC-style
// user and password query parameters are honoured.
func ParseURL(raw string) (*domain.DatabaseConnection, string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "jdbc:")
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, "", fmt.Errorf("parse database url: %w", err)
	}

	conn := &domain.DatabaseConnection{}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		conn.Driver = domain.DatabaseDriverPostgres
	case "mysql":
		conn.Driver = domain.DatabaseDriverMySQL
	case "sqlite", "sqlite3":
		conn.Driver = domain.DatabaseDriverSQLite
		conn.Host = u.Host + u.Path
		if conn.Host == "" {
			conn.Host = u.Opaque
		}
		if conn.Host == "" {
			return nil, "", fmt.Errorf("parse database url: sqlite url without a path")
		}
		return conn, "", nil
	case "mongodb", "mongodb+srv":
		// The Mongo driver parses its own URIs; keep it whole.
		conn.Driver = domain.DatabaseDriverMongoDB
		conn.Host = trimmed
		conn.Database = strings.TrimPrefix(u.Path, "/")
		pw, _ := u.User.Password()
		return conn, pw, nil
	default:
		return nil, "", fmt.Errorf("parse database url: unsupported scheme %q", u.Scheme)
	}

	conn.Host = u.Hostname()
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, "", fmt.Errorf("parse database url: port %q: %w", p, err)
		}
		conn.Port = port
	}
	conn.Database = strings.TrimPrefix(u.Path, "/")

	var password string
	if u.User != nil {
		conn.Username = u.User.Username()
		password, _ = u.User.Password()
	}

	q := u.Query()
	for key, vals := range q {
		if len(vals) == 0 {
			continue
		}
		switch strings.ToLower(key) {
		case "user":
			conn.Username = vals[0]
		case "password":
			password = vals[0]
		case "sslmode":
			conn.SSLMode = vals[0]
		default:
			if conn.Params == nil {
				conn.Params = map[string]string{}
			}
			conn.Params[key] = vals[0]
		}
	}
	return conn, password, nil
}

// FromConfig builds the connection described by the runtime config.
// A URL wins over the discrete fields; an explicit user or password
// overrides what the URL carries.
func FromConfig(c config.DatabaseConfig) (*domain.DatabaseConnection, string, error) {
	var (
		conn     *domain.DatabaseConnection
		password string
	)
	if c.URL != "" {
		var err error
		conn, password, err = ParseURL(c.URL)
		if err != nil {
			return nil, "", err
		}
	} else {
		conn = &domain.DatabaseConnection{
			Driver:   domain.DatabaseDriver(strings.ToLower(c.Driver)),
			Host:     c.Host,
			Port:     c.Port,
			Database: c.Name,
			SSLMode:  c.SSLMode,
		}
	}
	if c.User != "" {
		conn.Username = c.User
	}
	if c.Password != "" {
		password = c.Password
	}
	if conn.Driver == "" {
		return nil, "", fmt.Errorf("database driver is not configured")
	}
	return conn, password, nil
}
