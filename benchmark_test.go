package sqlpool_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	sqlpool "github.com/chpan1995/boost-mysql-pool"
	"github.com/chpan1995/boost-mysql-pool/internal/testutil"
)

func BenchmarkPack(b *testing.B) {
	u := userRow{ID: 7, Username: "bob", Password: "pw"}
	for b.Loop() {
		_ = sqlpool.Pack(42, [2]string{"a", "b"}, sqlpool.T("x", "y", "z"), u)
	}
}

func BenchmarkBoundedAcquireRelease(b *testing.B) {
	pool, err := sqlpool.NewBoundedPool(context.Background(), &testutil.Driver{}, 8, zap.NewNop())
	if err != nil {
		b.Fatal(err)
	}
	defer pool.Close()

	ctx := context.Background()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c, err := pool.Acquire(ctx)
			if err != nil {
				// Exhaustion is expected when there are more workers than nodes.
				continue
			}
			_ = c.Release()
		}
	})
}

func BenchmarkElasticAcquireRelease(b *testing.B) {
	pool, err := sqlpool.NewElasticPool(context.Background(), &testutil.Driver{}, sqlpool.ElasticConfig{
		MinSize:        8,
		MaxSize:        8,
		AcquireTimeout: time.Second,
	}, zap.NewNop())
	if err != nil {
		b.Fatal(err)
	}
	defer pool.Close()

	ctx := context.Background()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c, err := pool.Acquire(ctx)
			if err != nil {
				b.Error(err)
				return
			}
			_ = c.Release()
		}
	})
}

func BenchmarkDBQuery(b *testing.B) {
	pool, err := sqlpool.NewBoundedPool(context.Background(), userDriver(), 1, zap.NewNop())
	if err != nil {
		b.Fatal(err)
	}
	db := sqlpool.New(pool, sqlpool.WithLogger(zap.NewNop()))
	defer db.Close()

	ctx := context.Background()
	for b.Loop() {
		var users sqlpool.Records[userRow]
		if err := db.Query(ctx, "SELECT id, username, password FROM user WHERE id = ?", &users, int64(1)); err != nil {
			b.Fatal(err)
		}
	}
}
