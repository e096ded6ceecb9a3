package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/utafrali/ordercore/internal/config"
	"github.com/utafrali/ordercore/internal/event"
	handler "github.com/utafrali/ordercore/internal/handler/http"
	"github.com/utafrali/ordercore/internal/idempotency"
	"github.com/utafrali/ordercore/internal/notification"
	"github.com/utafrali/ordercore/internal/payment"
	"github.com/utafrali/ordercore/internal/repository/postgres"
	"github.com/utafrali/ordercore/internal/service"
	"github.com/utafrali/ordercore/internal/throttle"
	"github.com/utafrali/ordercore/migrations"
	"github.com/utafrali/ordercore/pkg/database"
	"github.com/utafrali/ordercore/pkg/health"
	"github.com/utafrali/ordercore/pkg/httpclient"
	pkgkafka "github.com/utafrali/ordercore/pkg/kafka"
	"github.com/utafrali/ordercore/pkg/middleware"
	"github.com/utafrali/ordercore/pkg/tracing"
)

const serviceName = "ordercore"

// App wires together all dependencies and runs the order service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	dlqWriter      *kafka.Writer
	relay          *event.Relay
	confirmations  *pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, serviceName)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
	}

	rdb, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka unreachable, outbox events will queue until it recovers",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Domain services.
	store := postgres.NewStore(pool)
	repos := store.Repositories()
	gateway := newPaymentGateway(cfg, logger)
	evaluator := service.NewDiscountEvaluator(repos.Discounts, logger)
	assembler := service.NewOrderAssembler(evaluator, service.AssemblerConfig{
		CODSurcharge:    cfg.CODSurchargeAmount,
		SnapshotPricing: cfg.SnapshotPricing,
	}, logger)
	checkout := service.NewCheckoutService(store, repos, assembler, service.NewInventoryLedger(logger), gateway, logger)
	carts := service.NewCartService(store, repos, logger)

	// Outbox relay and the confirmation email consumer.
	relay := event.NewRelay(store, producer, event.RelayConfig{
		Interval:    cfg.OutboxPollInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
	}, logger)

	dlqWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	confirmations := notification.NewConsumer(notification.ConsumerOptions{
		Brokers: cfg.KafkaBrokers,
		Seen:    pkgkafka.NewRedisIdempotencyStore(rdb, "ordercore:notification:seen:", 7*24*time.Hour),
		DLQ:     pkgkafka.NewDLQProducer(dlqWriter, logger),
	}, notification.NewConsumerHandler(newEmailSender(cfg, logger), logger), logger)

	// Health checks. Redis and Kafka outages degrade the service without
	// stopping checkout.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	router := handler.NewRouter(handler.RouterDeps{
		Checkout:  checkout,
		Carts:     carts,
		Discounts: evaluator,
		Throttle: throttle.New(rdb, throttle.Config{
			Limit:       cfg.ThrottleLimit,
			Window:      cfg.ThrottleWindow,
			FailureMode: cfg.ThrottleFailureMode,
		}, logger),
		Idempotency: idempotency.NewStore(rdb, cfg.IdempotencyTTL),
		Health:      healthHandler,
		Validate:    middleware.NewJWTValidator([]byte(cfg.JWTSecret)),
		PprofCIDRs:  cfg.PprofAllowedCIDRs,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          rdb,
		producer:       producer,
		dlqWriter:      dlqWriter,
		relay:          relay,
		confirmations:  confirmations,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

func newPaymentGateway(cfg *config.Config, logger *slog.Logger) payment.Gateway {
	if cfg.PaymentGatewayURL == "" {
		logger.Warn("PAYMENT_GATEWAY_URL not set, using the mock payment gateway")
		return payment.NewMockGateway(logger)
	}
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("payment-gateway"),
		logger,
	)
	return payment.NewHTTPGateway(client, cfg.PaymentGatewayURL, logger)
}

func newEmailSender(cfg *config.Config, logger *slog.Logger) notification.EmailSender {
	if cfg.EmailAPIURL == "" {
		logger.Warn("EMAIL_API_URL not set, confirmation emails are only logged")
		return notification.NewLogSender(logger)
	}
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("email-api"),
		logger,
	)
	return notification.NewHTTPSender(client, cfg.EmailAPIURL, logger)
}

// Run starts the HTTP server, the outbox relay and the email consumer,
// then blocks until ctx is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.relay.Run(bgCtx)
	}()
	go func() {
		defer wg.Done()
		if err := a.confirmations.Start(bgCtx); err != nil {
			errCh <- fmt.Errorf("confirmation consumer: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("component failed, shutting down", slog.String("error", runErr.Error()))
	}

	stopBackground()
	wg.Wait()
	return errors.Join(runErr, a.Shutdown())
}

// Shutdown stops components in dependency order: HTTP first so no new
// orders arrive, then the tracer, Kafka, Redis and finally PostgreSQL.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.confirmations.Close(); err != nil {
		a.logger.Error("confirmation consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.dlqWriter.Close(); err != nil {
		a.logger.Error("dlq writer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry pings the brokers up to three times with 1s then 2s
// backoff and ±25% jitter.
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	const attempts = 3
	var lastErr error
	for attempt := range attempts {
		if lastErr = producer.Ping(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		base := time.Duration(1<<attempt) * time.Second
		wait := base + time.Duration(float64(base)*0.25*(2*rand.Float64()-1)) // #nosec G404 -- retry jitter
		logger.Warn("kafka ping failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("kafka ping: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("kafka ping failed after %d attempts: %w", attempts, lastErr)
}
