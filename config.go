package sqlpool

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chpan1995/boost-mysql-pool/internal/ident"
)

const (
	// DriverMySQL selects github.com/go-sql-driver/mysql.
	DriverMySQL = "mysql"
	// DriverPostgres selects github.com/jackc/pgx/v5.
	DriverPostgres = "postgres"

	// ModeBounded is a fixed-capacity pool populated at startup.
	ModeBounded = "bounded"
	// ModeElastic grows and shrinks between MinSize and MaxSize.
	ModeElastic = "elastic"
)

// Config holds the configuration for creating a pool.
type Config struct {
	// Driver is the database driver, "mysql" (default) or "postgres".
	Driver string `mapstructure:"driver"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	// TLS is passed to the driver. For MySQL it is the go-sql-driver "tls"
	// parameter ("true", "false", "skip-verify", "preferred"); for PostgreSQL it
	// is the sslmode.
	TLS string `mapstructure:"tls"`

	// ConnectTimeout bounds the dial and handshake of a single node.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// Mode is "bounded" (default) or "elastic".
	Mode string `mapstructure:"mode"`

	// Capacity is the number of nodes of the bounded pool.
	Capacity int `mapstructure:"capacity"`

	// MinSize and MaxSize bound the elastic pool.
	MinSize int `mapstructure:"min_size"`
	MaxSize int `mapstructure:"max_size"`

	// AcquireTimeout is how long the elastic pool waits for a node.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`

	// MaxIdleTime is how long an elastic node may stay idle before it is
	// closed, as long as the pool stays above MinSize.
	MaxIdleTime time.Duration `mapstructure:"max_idle_time"`

	// HealthCheckPeriod is the interval of the elastic maintenance worker.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`

	// BeginStatement opens a transaction. Defaults to "START TRANSACTION".
	BeginStatement string `mapstructure:"begin_statement"`
}

// DefaultConfig returns a configuration with every default applied and no
// connection target.
func DefaultConfig() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills zero-valued fields with their defaults.
func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = DriverMySQL
	}
	if c.Port == 0 {
		switch c.Driver {
		case DriverPostgres:
			c.Port = 5432
		default:
			c.Port = 3306
		}
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.Mode == "" {
		c.Mode = ModeBounded
	}
	if c.Capacity <= 0 {
		c.Capacity = 10
	}
	if c.MinSize < 0 {
		c.MinSize = 0
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 10
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = 30 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = time.Minute
	}
	if c.BeginStatement == "" {
		c.BeginStatement = "START TRANSACTION"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverPostgres:
	default:
		return fmt.Errorf("Driver must be %q or %q, got %q", DriverMySQL, DriverPostgres, c.Driver)
	}

	if c.Host == "" {
		return fmt.Errorf("Host is required")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("Port must be between 1 and 65535, got %d", c.Port)
	}

	if c.Username == "" {
		return fmt.Errorf("Username is required")
	}

	if c.Database == "" {
		return fmt.Errorf("Database is required")
	}
	check := ident.CheckMySQLName
	if c.Driver == DriverPostgres {
		check = ident.CheckPostgresName
	}
	if err := check(c.Database); err != nil {
		return fmt.Errorf("Database %q is invalid: %w", c.Database, err)
	}

	switch c.Mode {
	case ModeBounded:
		if c.Capacity < 1 {
			return fmt.Errorf("Capacity must be at least 1, got %d", c.Capacity)
		}
	case ModeElastic:
		if c.MaxSize < 1 {
			return fmt.Errorf("MaxSize must be at least 1, got %d", c.MaxSize)
		}
		if c.MinSize < 0 || c.MinSize > c.MaxSize {
			return fmt.Errorf("MinSize must be between 0 and MaxSize (%d), got %d", c.MaxSize, c.MinSize)
		}
		if c.AcquireTimeout <= 0 {
			return fmt.Errorf("AcquireTimeout must be positive, got %s", c.AcquireTimeout)
		}
	default:
		return fmt.Errorf("Mode must be %q or %q, got %q", ModeBounded, ModeElastic, c.Mode)
	}

	if strings.TrimSpace(c.BeginStatement) == "" {
		return fmt.Errorf("BeginStatement is required")
	}

	return nil
}

// LoadConfig loads configuration with the following priority:
// 1. Environment variables (SQLPOOL_HOST, SQLPOOL_CAPACITY, ...)
// 2. Config file, if path is not empty
// 3. Defaults
func LoadConfig(path string) (*Config, error) {
	return loadConfig(viper.New(), path)
}

func loadConfig(v *viper.Viper, path string) (*Config, error) {
	setViperDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("SQLPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.SetDefaults()

	return &config, nil
}

// setViperDefaults registers every key so that AutomaticEnv can override keys
// that appear neither in the file nor in the defaults.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("driver", d.Driver)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 0)
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("database", "")
	v.SetDefault("tls", "")
	v.SetDefault("connect_timeout", d.ConnectTimeout)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("capacity", d.Capacity)
	v.SetDefault("min_size", d.MinSize)
	v.SetDefault("max_size", d.MaxSize)
	v.SetDefault("acquire_timeout", d.AcquireTimeout)
	v.SetDefault("max_idle_time", d.MaxIdleTime)
	v.SetDefault("health_check_period", d.HealthCheckPeriod)
	v.SetDefault("begin_statement", d.BeginStatement)
}
