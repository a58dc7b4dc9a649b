package sqlpool

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresConnector returns a connector for a PostgreSQL server using pgx
// through its database/sql adapter.
func NewPostgresConnector(cfg *Config) (Connector, error) {
	connString, err := postgresConnString(cfg)
	if err != nil {
		return nil, err
	}

	connConfig, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}

	return newDriverConnector("pgx", stdlib.GetConnector(*connConfig)), nil
}

// postgresConnString builds a connection URL with proper escaping of the
// credentials.
func postgresConnString(cfg *Config) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("host is required")
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.Password == "" {
		u.User = url.User(cfg.Username)
	}

	q := url.Values{}
	if cfg.TLS != "" {
		q.Set("sslmode", cfg.TLS)
	}
	if cfg.ConnectTimeout > 0 {
		secs := int(cfg.ConnectTimeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
