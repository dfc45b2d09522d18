package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ariefcatur/go-inventory-ledger.git/internal/config"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-inventory-ledger.git/internal/kafka"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/notify"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/orders"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/postgres"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/redisx"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/sweeper"
	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"
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

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	service := cfg.ServiceName + "-alerts"

	// Producers: alert notifications + movements from the sweeper's releases
	alertProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicLowStockAlerts, 1024, logger)
	alertProd.Start(ctx)
	movProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockMovement, 1024, logger)
	movProd.Start(ctx)

	store := &notify.PublishingStore{
		StockStore: &inventory.PGStore{DB: db},
		Producer:   movProd,
		Service:    service,
	}
	monitor := &inventory.AlertMonitor{
		Store:         store,
		LowThreshold:  cfg.LowStockThreshold,
		CritThreshold: cfg.CriticalStockThreshold,
		Notifier:      &notify.KafkaNotifier{Producer: alertProd, Service: service},
		Email:         &notify.LogEmailSender{Log: logger},
		Log:           logger,
	}

	// Sweeper releases stale holds through the normal order path
	mgr := inventory.NewManager(store, logger)
	repo := &orders.PGRepo{DB: db}
	machine := orders.NewMachine(repo, inventory.NewService(mgr, logger), logger)
	sw := &sweeper.Sweeper{RDB: rdb, Machine: machine, Repo: repo, TTL: cfg.ReservationTTL, Log: logger}
	go sw.Run(ctx, cfg.AlertScanInterval)

	// Movement events trigger an immediate scan; the ticker covers the rest.
	handle := func(ctx context.Context, m kafkago.Message) error {
		var env orders.Envelope
		if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
			return err
		}
		if env.EventType != orders.EventStockMovement {
			return nil
		}
		dkey := fmt.Sprintf(redisx.KeyDedup, "alerts", env.EventID)
		if exists, _ := redisx.Exists(ctx, rdb, dkey); exists {
			return nil
		}
		_ = rdb.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

		_, err := monitor.Run(ctx)
		return err
	}

	group := getenv("ALERTS_GROUP", "alert-monitor")
	workers := mustAtoi(os.Getenv("ALERTS_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicStockMovement, workers, logger)
	go func() {
		logger.Info("alert consumer started",
			zap.String("group", group),
			zap.String("topic", orders.TopicStockMovement),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, handle); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	go func() {
		t := time.NewTicker(cfg.AlertScanInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := monitor.Run(ctx); err != nil {
					logger.Warn("alert scan failed", zap.Error(err))
				}
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down alert monitor")
	cancel()
	time.Sleep(500 * time.Millisecond)
	alertProd.Close()
	movProd.Close()
	alertProd.WaitClosed()
	movProd.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
