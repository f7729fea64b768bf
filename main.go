package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"paintball-ticketing/internal/analytics"
	"paintball-ticketing/internal/audit"
	"paintball-ticketing/internal/auth"
	"paintball-ticketing/internal/cache"
	"paintball-ticketing/internal/config"
	"paintball-ticketing/internal/customer"
	customer_db "paintball-ticketing/internal/customer/db"
	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/database/migrations"
	"paintball-ticketing/internal/kafka"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/metrics"
	"paintball-ticketing/internal/order"
	order_db "paintball-ticketing/internal/order/db"
	paymentlock "paintball-ticketing/internal/order/redis"
	"paintball-ticketing/internal/payment"
	"paintball-ticketing/internal/ratelimit"
	"paintball-ticketing/internal/settings"
	settings_db "paintball-ticketing/internal/settings/db"
	"paintball-ticketing/internal/sse"
	"paintball-ticketing/internal/storage"
	ticket_db "paintball-ticketing/internal/tickets/db"
	"paintball-ticketing/internal/tickets/qr"
	tickets "paintball-ticketing/internal/tickets/service"

	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"
)

// jobQueue is the Kafka producer or its disabled stand-in.
type jobQueue interface {
	order.Queue
	Close() error
}

func main() {
	cfg := config.Load()

	log, err := logger.New(logger.Options{Dir: cfg.LogDir, Service: "paintball-ticketing", MinLevel: logger.ParseLevel(cfg.LogLevel)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, log)
	if err != nil {
		log.Error("APP", err.Error())
	}
	log.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log.Info("APP", "Starting paintball ticketing service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	if err := prepareSchema(ctx, cfg, bunDB, log); err != nil {
		return err
	}

	redisClient := connectRedis(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	queue := newQueue(cfg.Kafka, log)
	defer queue.Close()

	store, err := newStore(ctx, cfg.QR)
	if err != nil {
		return err
	}
	qrGen, err := qr.NewQRGenerator(cfg.QR.EncryptionKey)
	if err != nil {
		return fmt.Errorf("qr generator: %w", err)
	}

	gateway, err := newGateway(cfg.Payment)
	if err != nil {
		return err
	}
	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	m := metrics.New()
	recorder := audit.NewRecorder(bunDB)
	tx := database.NewTxManager(bunDB)
	appCache := cache.New(redisClient, "paintball:", log)

	settingsService := settings.NewService(&settings_db.DB{Bun: bunDB}, recorder, config.DefaultBasePrice, log)
	if err := settingsService.Load(ctx); err != nil {
		return fmt.Errorf("load ticket settings: %w", err)
	}

	scanFeed := sse.NewScanFeed()
	customerService := customer.NewService(&customer_db.DB{Bun: bunDB}, recorder, log)
	ticketService := tickets.NewTicketService(tickets.Dependencies{
		DB:      &ticket_db.DB{Bun: bunDB},
		Tx:      tx,
		QR:      qrGen,
		Store:   store,
		Audit:   recorder,
		Feed:    scanFeed,
		Metrics: m,
		Logger:  log,
	})
	orderService := order.NewOrderService(order.Dependencies{
		DB:             &order_db.DB{Bun: bunDB},
		Tx:             tx,
		Customers:      customerService,
		Tickets:        ticketService,
		Settings:       settingsService,
		Queue:          queue,
		Cache:          appCache,
		Audit:          recorder,
		Gateway:        gateway,
		Locks:          paymentlock.NewPaymentLock(redisClient, paymentlock.DefaultLockTTL, log),
		PaymentTimeout: cfg.Payment.Timeout,
		Currency:       cfg.Payment.Currency,
		CallbackURL:    cfg.Payment.CallbackURL,
		Metrics:        m,
		Logger:         log,
	})
	analyticsService := analytics.NewService(&analytics.DB{Bun: bunDB}, appCache, log)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, log)
	}

	router := newRouter(routerDeps{
		Log:       log,
		Verifier:  verifier,
		Limiter:   limiter,
		Metrics:   m,
		DB:        bunDB,
		Redis:     redisClient,
		Orders:    orderService,
		Tickets:   ticketService,
		Customers: customerService,
		Settings:  settingsService,
		Analytics: analyticsService,
		ScanFeed:  scanFeed,
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP", fmt.Sprintf("Paintball ticketing running on %s (gateway %s)", cfg.Server.Port, gateway.Name()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("HTTP", "Shutdown complete")
	return nil
}

// prepareSchema applies the versioned migrations on Postgres and builds the
// tables from the models on sqlite.
func prepareSchema(ctx context.Context, cfg *config.Config, bunDB *bun.DB, log *logger.Logger) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	if cfg.Database.Driver == "sqlite" {
		return database.CreateSchema(ctx, bunDB)
	}

	// The runner closes its handle, so it gets its own.
	sqlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	runner := migrations.NewRunner(sqlDB, log)
	defer runner.Close()
	return runner.MigrateUp()
}

// connectRedis returns nil only when Redis is disabled. An unreachable server
// still yields a client; the cache, rate limiter and payment lock degrade per
// call until it comes back.
func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Warn("REDIS", "Redis disabled, running without cache")
		return nil
	}
	client, _ := cache.NewRedisClient(ctx, cfg, log)
	return client
}

func newQueue(cfg config.KafkaConfig, log *logger.Logger) jobQueue {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, emails will not be sent")
		return kafka.NopQueue{Log: log}
	}
	if err := kafka.EnsureTopicsExist(cfg.Brokers, []string{cfg.Topic}, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	return kafka.NewProducer(cfg.Brokers, cfg.Topic, log)
}

func newStore(ctx context.Context, cfg config.QRConfig) (storage.Store, error) {
	if cfg.StorageBackend == "s3" {
		s, err := storage.NewS3Store(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Prefix, cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("s3 store: %w", err)
		}
		return s, nil
	}
	s, err := storage.NewLocalStore(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("local store: %w", err)
	}
	return s, nil
}

func newGateway(cfg config.PaymentConfig) (payment.Gateway, error) {
	if cfg.Provider == "stripe" {
		return payment.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil)
	}
	return payment.NewPaystack(cfg.PaystackSecretKey, cfg.PaystackBaseURL, cfg.Timeout), nil
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	if cfg.OIDCIssuer != "" {
		return auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
	}
	return auth.NewHMACVerifier(cfg.JWTSecret), nil
}
