package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-inventory-ledger.git/internal/config"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/httpx"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-inventory-ledger.git/internal/kafka"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/notify"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/orders"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/postgres"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/redisx"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/sweeper"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers: order status + movement ledger stream
	statusProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatus, 1024, logger)
	statusProd.Start(ctx)
	movProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockMovement, 1024, logger)
	movProd.Start(ctx)

	// Inventory core over Postgres, movements mirrored to Kafka
	store := &notify.PublishingStore{
		StockStore: &inventory.PGStore{DB: db},
		Producer:   movProd,
		Service:    cfg.ServiceName,
	}
	mgr := inventory.NewManager(store, logger)
	svc := inventory.NewService(mgr, logger)

	repo := &orders.PGRepo{DB: db}
	machine := orders.NewMachine(repo, svc, logger)

	sw := &sweeper.Sweeper{
		RDB:     rdb,
		Machine: machine,
		Repo:    repo,
		TTL:     cfg.ReservationTTL,
		Log:     logger,
	}

	monitor := &inventory.AlertMonitor{
		Store:         store,
		LowThreshold:  cfg.LowStockThreshold,
		CritThreshold: cfg.CriticalStockThreshold,
		Log:           logger,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Machine:  machine,
		Repo:     repo,
		Redis:    rdb,
		Producer: statusProd,
		Sweeper:  sw,
		Service:  cfg.ServiceName,
		Log:      logger,
	}
	oh.Register(router)
	ph := &httpx.ProductsHandler{Store: store, Manager: mgr, Monitor: monitor}
	ph.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	statusProd.Close()
	movProd.Close()
	cancel() // stop producer loops
	statusProd.WaitClosed()
	movProd.WaitClosed()
}
