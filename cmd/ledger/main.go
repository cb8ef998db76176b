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
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"ledger/internal/app/ledger"
	"ledger/internal/clock"
	"ledger/internal/config"
	ledger_http "ledger/internal/handler/http/ledger"
	kafka_handler "ledger/internal/handler/kafka"
	"ledger/internal/infrastructure/database"
	kafka_infra "ledger/internal/infrastructure/kafka"
	"ledger/internal/lock"
	"ledger/internal/metrics"
	"ledger/internal/outbox"
	"ledger/internal/repository/inbox_repo"
	inboxmem "ledger/internal/repository/inbox_repo/memory"
	inboxpg "ledger/internal/repository/inbox_repo/postgres"
	"ledger/internal/uow"
)

func newLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	return zapConfig.Build()
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Running database migrations", zap.String("source", cfg.MigrationsPath))
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations completed")
	return nil
}

func main() {
	// A .env file is optional and only used for local runs.
	dotenvErr := godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	if dotenvErr != nil && !errors.Is(dotenvErr, os.ErrNotExist) {
		appLogger.Warn("Failed to read .env file", zap.Error(dotenvErr))
	}

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal("Ledger service failed", zap.Error(err))
	}
	appLogger.Info("Ledger service shut down")
}

func run(cfg *config.Config, appLogger *zap.Logger) error {
	appLogger.Info("Ledger service starting", zap.String("storage", cfg.StorageDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		db     *sql.DB
		stores ledger.Stores
		inbox  inbox_repo.InboxRepository
	)
	opts := ledger.Options{
		SnapshotThreshold:  cfg.SnapshotThreshold,
		ScheduleMinLead:    cfg.ScheduleMinLead,
		DeadlineRetryDelay: cfg.DeadlineRetryDelay,
		PollInterval:       cfg.TrackingPollInterval,
		BatchSize:          cfg.TrackingBatchSize,
		GapWindow:          cfg.TrackingGapWindow,
	}
	clk := clock.System()

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		var err error
		db, err = database.ConnectWithRetry(ctx, database.DBConfig{DSN: cfg.GetDBConnectionString(), MaxOpenConns: 20, MaxIdleConns: 10},
			cfg.DBConnectRetries, cfg.DBConnectRetryDelay, appLogger)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				appLogger.Error("Error closing database connection", zap.Error(err))
			}
		}()
		if err := runMigrations(cfg, appLogger); err != nil {
			return err
		}
		stores = ledger.PostgresStores(db, clk)
		inbox = inboxpg.NewInboxRepository(db, clk)
		// Concurrent transactions can commit positions out of order.
		opts.GapTimeout = cfg.TrackingGapTimeout
	default:
		stores = ledger.MemoryStores(clk)
		inbox = inboxmem.NewInboxRepository(clk)
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client, "ledger:lock:", cfg.RedisLockTTL, appLogger.With(zap.String("component", "RedisLocker")))
		appLogger.Info("Using Redis for aggregate locking", zap.String("addr", cfg.RedisAddr))
	}

	units := uow.NewManager(db, appLogger.With(zap.String("component", "UnitOfWork")))
	app := ledger.NewApplication(stores, units, locker, clk, metrics.NewCollector(), opts, appLogger)
	appLogger.Info("Ledger application initialized")

	var consumer kafka_infra.Consumer
	if cfg.KafkaEnabled {
		brokers := cfg.GetKafkaBrokers()
		topicsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := kafka_infra.EnsureTopics(topicsCtx, brokers, []string{cfg.KafkaEventsTopic, cfg.KafkaCommandsTopic},
			appLogger.With(zap.String("component", "KafkaAdmin")))
		cancel()
		if err != nil {
			return err
		}

		producer := kafka_infra.NewProducer(brokers, appLogger.With(zap.String("component", "KafkaProducer")))
		defer producer.Close()
		relay := outbox.NewRelay(producer, cfg.KafkaEventsTopic, appLogger.With(zap.String("component", "EventRelay")))
		app.Processors.Add(app.NewTrackingProcessor(outbox.ProcessorName, false, relay.Handle, nil))

		consumer = kafka_infra.NewConsumer(brokers, cfg.KafkaConsumerGroup, cfg.KafkaCommandsTopic,
			appLogger.With(zap.String("component", "CommandConsumer")))
		defer func() {
			if err := consumer.Close(); err != nil {
				appLogger.Error("Error closing Kafka consumer", zap.Error(err))
			}
		}()
	}

	if err := app.Deadlines.Start(cfg.DeadlineSweepSchedule); err != nil {
		return err
	}
	defer func() {
		<-app.Deadlines.Stop().Done()
		appLogger.Info("Deadline sweeper stopped")
	}()

	router := ledger_http.NewRouter(app.Service, app.Processors, app.Metrics.Handler(), cfg.GetCORSAllowedOrigins(), appLogger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting tracking processors")
		return app.Processors.Run(gctx)
	})

	g.Go(func() error {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	if consumer != nil {
		handler := kafka_handler.CommandMessageHandler(kafka_handler.CommandConsumerDeps{
			Dispatcher:    app.Bus,
			Inbox:         inbox,
			Units:         units,
			Clock:         clk,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, appLogger.With(zap.String("component", "CommandMessageHandler")))
		g.Go(func() error {
			return consumer.Start(gctx, handler)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down application")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server graceful shutdown failed: %w", err)
		}
		appLogger.Info("HTTP server shut down")
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
