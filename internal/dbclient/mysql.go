package dbclient

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"intake/internal/domain"
)

const defaultMySQLPort = 3306

// buildMySQLDSN renders conn as a go-sql-driver DSN. Extra connection
// params (timeout, readTimeout, ...) are passed through to the driver.
func buildMySQLDSN(conn *domain.DatabaseConnection, password string) (string, error) {
	port := conn.Port
	if port == 0 {
		port = defaultMySQLPort
	}

	cfg := mysql.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(conn.Host, strconv.Itoa(port))
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	if conn.SSLMode == "require" {
		cfg.TLSConfig = "true"
	}

	dsn := cfg.FormatDSN()
	if len(conn.Params) > 0 {
		q := url.Values{}
		for k, v := range conn.Params {
			q.Set(k, v)
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + q.Encode()
	}
	if _, err := mysql.ParseDSN(dsn); err != nil {
		return "", fmt.Errorf("mysql dsn: %w", err)
	}
	return dsn, nil
}

func newMySQLWriter(conn *domain.DatabaseConnection, password string) (*sqlWriter, error) {
	dsn, err := buildMySQLDSN(conn, password)
	if err != nil {
		return nil, err
	}
	return newSQLWriter("mysql", dsn, mysqlDialect)
}
