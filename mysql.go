package sqlpool

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

// NewMySQLConnector returns a connector for a MySQL server. Every Connect
// resolves the host, dials TCP (with TLS when cfg.TLS asks for it) and runs the
// handshake with the configured credentials and database.
func NewMySQLConnector(cfg *Config) (Connector, error) {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Timeout = cfg.ConnectTimeout
	if cfg.TLS != "" {
		mc.TLSConfig = cfg.TLS
	}

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql config: %w", err)
	}

	return &resolvingConnector{
		host: cfg.Host,
		next: newDriverConnector(DriverMySQL, connector),
	}, nil
}

// resolvingConnector resolves the host before dialing so that a bad host name
// is reported as such instead of as a dial timeout.
type resolvingConnector struct {
	host string
	next Connector
}

func (c *resolvingConnector) Connect(ctx context.Context) (Session, error) {
	if net.ParseIP(c.host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, c.host); err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", c.host, err)
		}
	}
	return c.next.Connect(ctx)
}
