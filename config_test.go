package sqlpool

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	c := Config{
		Host:     "127.0.0.1",
		Username: "root",
		Password: "secret",
		Database: "chat",
	}
	c.SetDefaults()
	return c
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "valid elastic config",
			modify:  func(c *Config) { c.Mode = ModeElastic; c.MinSize = 2; c.MaxSize = 4 },
			wantErr: false,
		},
		{
			name:    "unknown driver",
			modify:  func(c *Config) { c.Driver = "oracle" },
			wantErr: true,
			errMsg:  `Driver must be "mysql" or "postgres", got "oracle"`,
		},
		{
			name:    "missing Host",
			modify:  func(c *Config) { c.Host = "" },
			wantErr: true,
			errMsg:  "Host is required",
		},
		{
			name:    "Port too large",
			modify:  func(c *Config) { c.Port = 70000 },
			wantErr: true,
			errMsg:  "Port must be between 1 and 65535, got 70000",
		},
		{
			name:    "missing Username",
			modify:  func(c *Config) { c.Username = "" },
			wantErr: true,
			errMsg:  "Username is required",
		},
		{
			name:    "missing Database",
			modify:  func(c *Config) { c.Database = "" },
			wantErr: true,
			errMsg:  "Database is required",
		},
		{
			name:   "Database with dashes",
			modify: func(c *Config) { c.Database = "E-600" },
		},
		{
			name:    "Database with a dot",
			modify:  func(c *Config) { c.Database = "chat.app" },
			wantErr: true,
			errMsg:  `Database "chat.app" is invalid: name contains '.'`,
		},
		{
			name:    "Capacity too small",
			modify:  func(c *Config) { c.Capacity = 0 },
			wantErr: true,
			errMsg:  "Capacity must be at least 1, got 0",
		},
		{
			name:    "MaxSize too small",
			modify:  func(c *Config) { c.Mode = ModeElastic; c.MaxSize = 0 },
			wantErr: true,
			errMsg:  "MaxSize must be at least 1, got 0",
		},
		{
			name:    "MinSize above MaxSize",
			modify:  func(c *Config) { c.Mode = ModeElastic; c.MinSize = 5; c.MaxSize = 2 },
			wantErr: true,
			errMsg:  "MinSize must be between 0 and MaxSize (2), got 5",
		},
		{
			name:    "AcquireTimeout not positive",
			modify:  func(c *Config) { c.Mode = ModeElastic; c.AcquireTimeout = 0 },
			wantErr: true,
			errMsg:  "AcquireTimeout must be positive, got 0s",
		},
		{
			name:    "unknown Mode",
			modify:  func(c *Config) { c.Mode = "lazy" },
			wantErr: true,
			errMsg:  `Mode must be "bounded" or "elastic", got "lazy"`,
		},
		{
			name:    "blank BeginStatement",
			modify:  func(c *Config) { c.BeginStatement = "  " },
			wantErr: true,
			errMsg:  "BeginStatement is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(&c)
			err := c.Validate()
			if tt.wantErr {
				require.EqualError(t, err, tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	c := &Config{}
	c.SetDefaults()

	require.Equal(t, DriverMySQL, c.Driver)
	require.Equal(t, 3306, c.Port)
	require.Equal(t, ModeBounded, c.Mode)
	require.Equal(t, 10, c.Capacity)
	require.Equal(t, 10, c.MaxSize)
	require.Equal(t, 5*time.Second, c.AcquireTimeout)
	require.Equal(t, "START TRANSACTION", c.BeginStatement)

	pg := &Config{Driver: DriverPostgres}
	pg.SetDefaults()
	require.Equal(t, 5432, pg.Port)

	// Explicit values are kept.
	custom := &Config{Port: 3307, Capacity: 3, BeginStatement: "BEGIN"}
	custom.SetDefaults()
	require.Equal(t, 3307, custom.Port)
	require.Equal(t, 3, custom.Capacity)
	require.Equal(t, "BEGIN", custom.BeginStatement)
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		require.Equal(t, "127.0.0.1", cfg.Host)
		require.Equal(t, 3306, cfg.Port)
		require.Equal(t, ModeBounded, cfg.Mode)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pool.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
host: db.internal
port: 3307
username: chat
password: secret
database: chat
mode: elastic
min_size: 2
max_size: 8
acquire_timeout: 2s
`), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, "db.internal", cfg.Host)
		require.Equal(t, 3307, cfg.Port)
		require.Equal(t, "chat", cfg.Username)
		require.Equal(t, ModeElastic, cfg.Mode)
		require.Equal(t, 2, cfg.MinSize)
		require.Equal(t, 8, cfg.MaxSize)
		require.Equal(t, 2*time.Second, cfg.AcquireTimeout)
		require.NoError(t, cfg.Validate())
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pool.yaml")
		require.NoError(t, os.WriteFile(path, []byte("host: db.internal\ncapacity: 4\n"), 0o600))

		t.Setenv("SQLPOOL_HOST", "10.0.0.5")
		t.Setenv("SQLPOOL_CAPACITY", "16")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, "10.0.0.5", cfg.Host)
		require.Equal(t, 16, cfg.Capacity)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})
}
