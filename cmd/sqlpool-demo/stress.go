package main

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sqlpool "github.com/chpan1995/boost-mysql-pool"
)

var (
	stressWorkers    int
	stressIterations int
	stressQuery      string
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Hammer the pool from concurrent workers and report its counters",
	RunE:  runStress,
}

func init() {
	stressCmd.Flags().IntVar(&stressWorkers, "workers", 32, "Number of concurrent workers")
	stressCmd.Flags().IntVar(&stressIterations, "iterations", 100, "Queries per worker")
	stressCmd.Flags().StringVar(&stressQuery, "query", "SELECT 1", "Statement each worker runs")
	rootCmd.AddCommand(stressCmd)
}

func runStress(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := sqlpool.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if mode != "" {
		cfg.Mode = mode
	}

	db, err := sqlpool.Open(cmd.Context(), cfg, sqlpool.WithLogger(logger.Named("sqlpool")))
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("=== Concurrent Pool Stress ===")

	// Scenarios
	scenarios := []struct {
		name     string
		parallel int
	}{
		{name: "Saturated pool", parallel: stressWorkers},
		{name: "Sequential reuse", parallel: 1},
	}

	for _, scenario := range scenarios {
		fmt.Printf("\n--- Running: %s ---\n", scenario.name)
		ok, exhausted, failed := runScenario(cmd, db, scenario.parallel)
		s := db.Stat()
		fmt.Printf("ok=%d exhausted=%d failed=%d idle=%d borrowed=%d capacity=%d\n",
			ok, exhausted, failed, s.Idle, s.Borrowed, s.Capacity)
		if s.Borrowed != 0 {
			logger.Error("connections leaked", zap.Int("borrowed", s.Borrowed))
			return fmt.Errorf("%d connections still borrowed after %s", s.Borrowed, scenario.name)
		}
	}
	return nil
}

func runScenario(cmd *cobra.Command, db *sqlpool.DB, parallel int) (ok, exhausted, failed int64) {
	var (
		wg                     sync.WaitGroup
		okN, exhaustedN, failN atomic.Int64
	)
	semaphore := make(chan struct{}, parallel)
	ctx := cmd.Context()

	start := time.Now()
	for i := 0; i < stressWorkers; i++ {
		wg.Add(1)
		semaphore <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()

			for range stressIterations {
				var res sqlpool.Results
				err := db.Query(ctx, stressQuery, &res)
				switch {
				case err == nil:
					okN.Add(1)
				case errors.Is(err, sqlpool.ErrPoolExhausted), errors.Is(err, sqlpool.ErrAcquireTimeout):
					exhaustedN.Add(1)
				default:
					failN.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	fmt.Printf("finished in %s\n", time.Since(start).Round(time.Millisecond))

	return okN.Load(), exhaustedN.Load(), failN.Load()
}
