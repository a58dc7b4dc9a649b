package sqlpool

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// The process-wide DB. Configure must run before the first Instance call;
// without it Instance loads the configuration from the environment.
var global struct {
	mu   sync.Mutex
	once *sync.Once
	cfg  *Config
	opts []Option
	db   *DB
}

func init() {
	global.once = new(sync.Once)
}

// Configure sets the configuration used by Instance. It fails once the
// instance has been created.
func Configure(cfg *Config, opts ...Option) error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.db != nil {
		return fmt.Errorf("connection pool is already initialized")
	}
	global.cfg = cfg
	global.opts = opts
	return nil
}

// Instance returns the process-wide DB, opening it on first use. An
// initialization failure terminates the process like MustOpen.
func Instance() *DB {
	global.mu.Lock()
	once := global.once
	global.mu.Unlock()

	once.Do(func() {
		global.mu.Lock()
		cfg, opts := global.cfg, global.opts
		global.mu.Unlock()

		if cfg == nil {
			loaded, err := LoadConfig("")
			if err != nil {
				buildOptions(opts).logger.Fatal("failed to load connection pool config", zap.Error(err))
			}
			cfg = loaded
		}

		db := MustOpen(context.Background(), cfg, opts...)

		global.mu.Lock()
		global.db = db
		global.mu.Unlock()
	})

	global.mu.Lock()
	defer global.mu.Unlock()
	return global.db
}

// Shutdown closes the process-wide DB if it was opened. A later Instance call
// opens a new one. In elastic mode Shutdown blocks until every borrowed Conn
// and Tx has been released; a leaked borrow keeps it waiting.
func Shutdown() {
	global.mu.Lock()
	db := global.db
	global.db = nil
	global.once = new(sync.Once)
	global.mu.Unlock()

	if db != nil {
		db.Close()
	}
}
