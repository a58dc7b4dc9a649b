// Command sqlpool-demo runs a few queries against a MySQL "user" table
// through the process-wide pool:
//
//	CREATE TABLE user (
//		id         BIGINT PRIMARY KEY AUTO_INCREMENT,
//		username   VARCHAR(64) UNIQUE,
//		password   VARCHAR(64),
//		createtime DATETIME NOT NULL,
//		logintime  DATETIME,
//		logouttime DATETIME
//	);
//
// Connection settings come from --config and SQLPOOL_* environment variables.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sqlpool "github.com/chpan1995/boost-mysql-pool"
)

var (
	configPath string
	logLevel   string
	mode       string
)

var rootCmd = &cobra.Command{
	Use:   "sqlpool-demo",
	Short: "Run the sqlpool demo queries against a MySQL user table",
	RunE:  runDemo,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "Pool mode, bounded or elastic (overrides the config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// userNode maps the user table by column position.
type userNode struct {
	ID         int64
	Username   sql.NullString
	Password   sql.NullString
	CreateTime time.Time
	LoginTime  sql.NullTime
}

type logoutNode struct {
	LogoutTime string
}

func newLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if level == "debug" {
		zapConfig = zap.NewDevelopmentConfig()
	}
	lvl := zap.InfoLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		log.Printf("Invalid log level %q, using INFO: %v", level, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	return zapConfig.Build()
}

func runDemo(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	_ = mysql.SetLogger(zap.NewStdLog(logger.Named("mysql")))

	cfg, err := sqlpool.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if err := sqlpool.Configure(cfg, sqlpool.WithLogger(logger.Named("sqlpool"))); err != nil {
		return err
	}
	defer sqlpool.Shutdown()

	pool := sqlpool.Instance()
	ctx := cmd.Context()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		listUsers(ctx, pool)
	}()

	findAdmin(ctx, pool)
	insertAndDeleteWithTuple(ctx, pool)
	insertComposite(ctx, pool)
	transfer(ctx, pool)

	wg.Wait()
	return nil
}

func listUsers(ctx context.Context, pool *sqlpool.DB) {
	var res sqlpool.Results
	if err := pool.Query(ctx, "SELECT * FROM user", &res); err != nil {
		fmt.Printf("list users: %v\n", err)
		return
	}
	for i := range res.Len() {
		fmt.Printf("* ID: %v\n  User name: %v\n  create time: %v\n  login time: %v$\n",
			res.At(i, 0), res.At(i, 1), res.At(i, 3), res.At(i, 4))
	}
}

func findAdmin(ctx context.Context, pool *sqlpool.DB) {
	var users sqlpool.Records[userNode]
	err := pool.Query(ctx, "SELECT id, username, password, createtime, logintime FROM user WHERE username = ?", &users, "admin")
	if err != nil {
		fmt.Printf("find admin: %v\n", err)
		return
	}
	if users.Len() == 0 {
		fmt.Println("admin not found")
		return
	}

	u := users.Items()[0]
	fmt.Printf("  id: %d\n  User name: %s\n  password: %s\n  createtime: %s\n  logintime: %s\n$\n",
		u.ID, u.Username.String, u.Password.String,
		u.CreateTime.Format(time.DateTime), formatNullTime(u.LoginTime))

	// The same record packs back into positional parameters.
	fmt.Printf("  id: %v\n", sqlpool.Pack(u)[0])
}

func insertAndDeleteWithTuple(ctx context.Context, pool *sqlpool.DB) {
	var res sqlpool.ExecResult
	err := pool.QueryTuple(ctx, "INSERT INTO user(username, password, createtime) VALUES (?, ?, ?)", &res,
		sqlpool.T("chpan", "123", "2024-04-03 08:37:20"))
	if err == nil && res.RowsAffected != 0 {
		fmt.Println("INSERT success")
	}

	err = pool.Query(ctx, "DELETE FROM user WHERE username = ?", &res, sqlpool.T("chpan"))
	if err == nil && res.RowsAffected != 0 {
		fmt.Println("DELETE success")
	}
}

func insertComposite(ctx context.Context, pool *sqlpool.DB) {
	var res sqlpool.ExecResult
	err := pool.Query(ctx,
		"INSERT INTO user(logintime, username, password, createtime, logouttime) VALUES (?, ?, ?, ?, ?)", &res,
		"2024-04-03 08:37:20",
		sqlpool.T("123"),
		[1]string{"nihao"},
		"2024-04-03 08:37:20",
		logoutNode{LogoutTime: "2024-04-22 11:37:20"},
	)
	if err == nil && res.RowsAffected != 0 {
		fmt.Println("INSERT success")
	}

	err = pool.Query(ctx, "DELETE FROM user WHERE username = ?", &res, "123")
	if err == nil && res.RowsAffected != 0 {
		fmt.Println("DELETE success")
	}
}

// transfer inserts two users in one transaction. The second insert reuses
// the username, so the transaction is rolled back and neither row remains.
func transfer(ctx context.Context, pool *sqlpool.DB) {
	tx, err := pool.StartTransaction(ctx)
	if err != nil {
		fmt.Printf("start transaction: %v\n", err)
		return
	}

	var res sqlpool.ExecResult
	insert := "INSERT INTO user(username, password, createtime) VALUES (?, ?, ?)"
	now := time.Now()
	if err := tx.Query(ctx, insert, &res, "tx-user", "pw", now); err != nil {
		fmt.Printf("transaction rolled back: %v\n", err)
		return
	}
	if err := tx.Query(ctx, insert, &res, "tx-user", "pw", now); err != nil {
		fmt.Printf("transaction rolled back: %v\n", err)
		return
	}
	if err := pool.Commit(ctx, tx); err != nil {
		fmt.Printf("commit: %v\n", err)
	}
}

func formatNullTime(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(time.DateTime)
}
