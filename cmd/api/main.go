package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/config"
	"github.com/ariefcatur/go-storefront/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/ledger"
	"github.com/ariefcatur/go-storefront/internal/logx"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/reconcile"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{})
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

	// Kafka producers
	placedProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024, log)
	placedProd.Start(ctx)
	reconcileProd := kafkax.NewProducer(cfg.KafkaBrokers, reconcile.TopicReconcile, 1024, log)
	reconcileProd.Start(ctx)

	// Stores & services
	products := catalog.NewStore(rdb)
	carts := cart.NewStore(rdb)
	ledgerRepo := ledger.NewRepo(db)
	reconcileRepo := reconcile.NewRepo(db)

	reporter := &reconcile.Reporter{
		Items:       reconcileRepo,
		Publisher:   reconcileProd,
		Logger:      log,
		ServiceName: cfg.ServiceName,
	}
	worker := &reconcile.Worker{
		Items:       reconcileRepo,
		Inventory:   products,
		Carts:       carts,
		Redis:       rdb,
		Logger:      log,
		MaxAttempts: cfg.ReconcileMaxAttempts,
	}
	placement := &orders.Service{
		Inventory:         products,
		Ledger:            ledgerRepo,
		Carts:             carts,
		Reporter:          reporter,
		Publisher:         placedProd,
		Logger:            log,
		PostCommitTimeout: cfg.PostCommitTimeout,
		ServiceName:       cfg.ServiceName,
	}
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	accounts := &auth.Service{Users: ledgerRepo, Issuer: issuer, AllowAdminSignup: cfg.AllowAdminSignup}

	router := httpx.NewRouter(httpx.Handlers{
		Auth:     &httpx.AuthHandler{Accounts: accounts, Logger: log},
		Products: &httpx.ProductsHandler{Catalog: products, Logger: log},
		Cart:     &httpx.CartHandler{Carts: carts, Catalog: products, Logger: log},
		Orders:   &httpx.OrdersHandler{Orders: placement, History: ledgerRepo, Catalog: products, Logger: log},
		Admin: &httpx.AdminHandler{
			Catalog:        products,
			Reports:        ledgerRepo,
			Reconciliation: reconcileRepo,
			Reconciler:     worker,
			Logger:         log,
		},
		Verifier: issuer,
		Logger:   log,
	})

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	// Flush buffered events after in-flight requests have finished.
	placedProd.Close()
	reconcileProd.Close()
	placedProd.WaitClosed()
	reconcileProd.WaitClosed()
}
