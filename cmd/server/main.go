package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/adapter/handler"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/adapter/notify"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/adapter/payment"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/adapter/receipt"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/adapter/storage"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/config"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/service"
	"github.com/EMILIOABRIL05/Marketplace-sub000/migrations"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}
	log.Info().Msg("connected to mysql")

	if err := migrations.Apply(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("connected to redis")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)

	// Mirror durable stock into the cache; the cache gates every checkout.
	records, err := mysqlAdapter.ListInventory(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list inventory")
	}
	for _, inv := range records {
		if err := redisAdapter.SetStock(ctx, inv.ProductID, inv.Available); err != nil {
			log.Fatal().Err(err).Str("product_id", inv.ProductID).Msg("failed to seed stock")
		}
	}
	log.Info().Int("products", len(records)).Msg("mirrored stock into cache")

	// Kafka
	kafkaWriter := notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	notifier := notify.NewKafkaNotifier(kafkaWriter)

	receiptStore, err := receipt.NewFSStore(cfg.Receipts.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init receipt store")
	}
	gateway := payment.NewSimulatedGateway(cfg.Checkout.CardDelay, nil)

	cartService := service.NewCartService(mysqlAdapter, mysqlAdapter, log)
	checkoutService := service.NewCheckoutService(
		mysqlAdapter, mysqlAdapter, redisAdapter, mysqlAdapter,
		gateway, notifier, log, cfg.Checkout.CardTimeout,
	)
	orderService := service.NewOrderService(
		mysqlAdapter, mysqlAdapter, redisAdapter, receiptStore, notifier, log,
	)

	// Background sweep cancelling stale PENDIENTE orders.
	sweepDone := make(chan struct{})
	if !cfg.Checkout.ExpiryDisabled {
		go func() {
			defer close(sweepDone)
			ticker := time.NewTicker(cfg.Checkout.ExpirySweep)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if _, err := orderService.ExpireStale(ctx, cfg.Checkout.PendingTTL); err != nil {
						log.Error().Err(err).Msg("stale order sweep failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		close(sweepDone)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(50))))

	httpHandler := handler.NewHTTPHandler(cartService, checkoutService, orderService)
	httpHandler.Register(e, cfg.Auth.JWTSecret)

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr()).Msg("http server listening")
		if err := e.Start(cfg.HTTP.Addr()); err != nil {
			log.Info().Err(err).Msg("http server stopped")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")
	cancel()
	<-sweepDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	if err := notifier.Close(); err != nil {
		log.Error().Err(err).Msg("kafka close failed")
	}
	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}
