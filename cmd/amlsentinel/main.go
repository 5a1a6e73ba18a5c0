package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Aidin1998/pincex_aml/api"
	"github.com/Aidin1998/pincex_aml/internal/compliance/alerting"
	"github.com/Aidin1998/pincex_aml/internal/compliance/audit"
	"github.com/Aidin1998/pincex_aml/internal/compliance/graph"
	"github.com/Aidin1998/pincex_aml/internal/compliance/risk"
	"github.com/Aidin1998/pincex_aml/internal/compliance/rules"
	"github.com/Aidin1998/pincex_aml/internal/compliance/screening"
	"github.com/Aidin1998/pincex_aml/internal/compliance/service"
	"github.com/Aidin1998/pincex_aml/internal/config"
	"github.com/Aidin1998/pincex_aml/internal/database"
	"github.com/Aidin1998/pincex_aml/internal/locking"
	"github.com/Aidin1998/pincex_aml/internal/messaging"
	"github.com/Aidin1998/pincex_aml/pkg/clock"
	"github.com/Aidin1998/pincex_aml/pkg/logger"
	"github.com/Aidin1998/pincex_aml/pkg/telemetry"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	configPath := flag.String("config", os.Getenv("AML_CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zapLogger); err != nil {
		zapLogger.Fatal("Service exited with error", zap.Error(err))
	}
	zapLogger.Info("Server exited properly")
}

func run(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			zapLogger.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	defer sqlDB.Close()

	var extra []interface{}
	if cfg.Audit.Store == "sql" {
		extra = append(extra, &audit.EntryRecord{})
	}
	if cfg.Graph.Store == "sql" {
		extra = append(extra, &graph.EdgeRecord{})
	}
	if err := database.AutoMigrate(db, extra...); err != nil {
		return err
	}

	customerRepo := database.NewCustomerRepository(db)
	var customers api.CustomerStore = customerRepo
	transactions := database.NewTransactionRepository(db)

	// Audit ledger
	var ledgerStore audit.Store
	switch cfg.Audit.Store {
	case "file":
		ledgerStore = audit.NewFileStore(cfg.Audit.FilePath)
	default:
		ledgerStore = audit.NewSQLStore(db)
	}
	ledger := audit.NewLedger(ledgerStore, clock.System{}, zapLogger.Named("audit"))
	if v, err := ledger.Verify(ctx); err != nil {
		zapLogger.Warn("Startup ledger verification could not run", zap.Error(err))
	} else if !v.Valid {
		zapLogger.Error("Audit ledger integrity violation detected at startup",
			zap.Intp("broken_at_index", v.BrokenAtIndex),
			zap.String("reason", v.Reason))
	} else {
		zapLogger.Info("Audit ledger verified", zap.Int("entries", v.Checked))
	}

	// Sanctions screening
	names := screening.DefaultSanctionsList
	threshold := cfg.Watchlist.Threshold
	if cfg.Watchlist.File != "" {
		file, err := screening.LoadWatchlistFile(cfg.Watchlist.File)
		if err != nil {
			return err
		}
		names = file.Names
		if file.Threshold > 0 {
			threshold = file.Threshold
		}
	}
	matchConfig := screening.DefaultFuzzyMatchConfig()
	matchConfig.Scorer = screening.Scorer(cfg.Watchlist.Scorer)
	matcher := screening.NewFuzzyMatcher(zapLogger.Named("screening"), matchConfig)
	watchlist := screening.NewWatchlist(names, threshold, matcher, zapLogger.Named("screening"))
	if cfg.Watchlist.Watch {
		if err := screening.WatchFile(ctx, cfg.Watchlist.File, watchlist, zapLogger.Named("screening")); err != nil {
			return err
		}
	}

	engine, err := buildEngine(cfg.Rules, watchlist, zapLogger.Named("rules"))
	if err != nil {
		return err
	}

	// Transfer graph
	var graphStore graph.Store
	switch cfg.Graph.Store {
	case "memory":
		graphStore = graph.NewMemoryStore()
	default:
		graphStore = graph.NewSQLStore(db, cfg.Graph.Lookback, cfg.Graph.MaxEdges)
	}
	detector := graph.NewDetector(graphStore, graph.Config{
		MinHops:      cfg.Graph.MinHops,
		MaxHops:      cfg.Graph.MaxHops,
		Limit:        cfg.Graph.RingLimit,
		QueryTimeout: cfg.Graph.QueryTimeout,
	}, zapLogger.Named("graph"))

	healthChecks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error { return sqlDB.PingContext(ctx) },
	}

	// Per-customer velocity locks
	var locker locking.Locker = locking.NewLocalLocker()
	if cfg.Redis.Enabled {
		client, err := database.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		locker = locking.NewRedisLocker(client, cfg.Redis.LockPrefix, cfg.Redis.LockTTL, zapLogger.Named("locking"))
		customers = database.NewCachedCustomerRepository(customerRepo, client, cfg.Redis.CacheTTL, zapLogger.Named("cache"))
		healthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	// Graph writes go through Kafka when enabled, otherwise straight to the store
	var (
		edges     service.EdgeSink = graphStore
		decisions service.DecisionPublisher
	)
	if cfg.Kafka.Enabled {
		bus, err := startMessageBus(cfg.Kafka, graphStore, zapLogger.Named("messaging"))
		if err != nil {
			return err
		}
		defer func() {
			if err := bus.Stop(); err != nil {
				zapLogger.Warn("Message bus shutdown failed", zap.Error(err))
			}
		}()
		edges = messaging.NewEdgePublisher(bus, cfg.Telemetry.ServiceName)
		decisions = bus
		healthChecks["kafka"] = func(context.Context) error { return bus.HealthCheck() }
	}

	// Alerting
	dispatcher := alerting.NewDispatcher(alerting.DispatcherConfig{
		QueueSize:   cfg.Alerting.QueueSize,
		Workers:     cfg.Alerting.Workers,
		SendTimeout: cfg.Alerting.SendTimeout,
	}, zapLogger.Named("alerting"), buildSinks(cfg.Alerting, zapLogger.Named("alerting"))...)
	dispatcher.Start()

	svc, err := service.NewTransactionService(service.Dependencies{
		Customers:    customers,
		Transactions: transactions,
		Engine:       engine,
		Detector:     detector,
		Aggregator:   risk.NewAggregator(),
		Ledger:       ledger,
		Escalator:    alerting.NewEscalator(cfg.Alerting.Threshold, dispatcher, zapLogger.Named("alerting")),
		Locker:       locker,
		Edges:        edges,
		Decisions:    decisions,
		Clock:        clock.System{},
		Logger:       zapLogger.Named("compliance"),
	})
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		Addr:            cfg.Server.Addr,
		ServiceName:     cfg.Telemetry.ServiceName,
		AllowOrigins:    cfg.Server.AllowOrigins,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, api.Dependencies{
		Evaluator:    svc,
		Transactions: transactions,
		Customers:    customers,
		Audit:        ledger,
		Rings:        detector,
		Analytics:    service.NewAnalytics(transactions),
		HealthChecks: healthChecks,
	}, zapLogger.Named("api"))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		zapLogger.Info("Shutting down server...")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}
	// In-flight requests are done; drain queued alerts before exit.
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func buildEngine(cfg config.RulesConfig, watchlist *screening.Watchlist, logger *zap.Logger) (*rules.Engine, error) {
	lower, err := decimal.NewFromString(cfg.StructuringLowerBound)
	if err != nil {
		return nil, fmt.Errorf("invalid structuring lower bound: %w", err)
	}
	reporting, err := decimal.NewFromString(cfg.ReportingThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid reporting threshold: %w", err)
	}

	structuring := rules.NewStructuringRule()
	structuring.LowerBound = lower
	structuring.ReportingThreshold = reporting
	structuring.Score = cfg.StructuringScore

	velocity := rules.NewVelocityRule()
	velocity.Window = cfg.VelocityWindow
	velocity.MaxTransactions = cfg.VelocityMaxTransactions
	velocity.Score = cfg.VelocityScore

	sanctions := rules.NewWatchlistRule(watchlist)
	sanctions.Score = cfg.SanctionsScore

	return rules.NewEngine(logger, structuring, velocity, sanctions), nil
}

func buildSinks(cfg config.AlertingConfig, logger *zap.Logger) []alerting.Sink {
	var sinks []alerting.Sink
	if cfg.Email.Enabled {
		sinks = append(sinks, alerting.NewEmailSink(alerting.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}, logger))
	}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, alerting.NewWebhookSink(cfg.Webhook.URL, cfg.Webhook.Headers, cfg.Webhook.Timeout, logger))
	}
	if len(sinks) == 0 {
		logger.Warn("No alert sinks configured, escalations will only be logged")
	}
	return sinks
}

func startMessageBus(cfg config.KafkaConfig, store graph.Store, logger *zap.Logger) (*messaging.MessageBus, error) {
	kafkaConfig := messaging.DefaultKafkaConfig()
	kafkaConfig.Brokers = cfg.Brokers

	producer, err := messaging.NewKafkaProducer(kafkaConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	consumer, err := messaging.NewKafkaConsumer(kafkaConfig, logger)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	bus := messaging.NewMessageBus(producer, consumer, logger)
	messaging.NewGraphSyncService(store, bus, logger)
	if err := bus.StartConsumers(cfg.GroupID); err != nil {
		bus.Stop()
		return nil, fmt.Errorf("failed to start kafka consumers: %w", err)
	}
	return bus, nil
}
