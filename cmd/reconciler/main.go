package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/config"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/logx"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/reconcile"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName+"-reconciler", cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: int32(cfg.ReconcileWorkers) + 2})
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Error("db migrate", "err", err)
		os.Exit(1)
	}

	// Redis
	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Error("redis connect", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	worker := &reconcile.Worker{
		Items:       reconcile.NewRepo(db),
		Inventory:   catalog.NewStore(rdb),
		Carts:       cart.NewStore(rdb),
		Redis:       rdb,
		Logger:      log,
		MaxAttempts: cfg.ReconcileMaxAttempts,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcileGroup, reconcile.TopicReconcile, cfg.ReconcileWorkers, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		log.Info("reconcile consumer started",
			"group", cfg.ReconcileGroup, "topic", reconcile.TopicReconcile, "workers", cfg.ReconcileWorkers)
		if err := cons.Start(ctx, worker.HandleMessage); err != nil {
			log.Error("consumer exit", "err", err)
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		// Items younger than one interval are left to the consumer.
		worker.Run(ctx, cfg.ReconcileSweep, cfg.ReconcileSweep)
	}()

	<-ctx.Done()
	log.Info("shutting down reconciler")
	wg.Wait()
}
