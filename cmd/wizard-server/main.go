// cmd/wizard-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vsme-guru/internal/api"
	"vsme-guru/internal/common/aws"
	"vsme-guru/internal/common/camunda"
	"vsme-guru/internal/common/config"
	"vsme-guru/internal/common/database"
	"vsme-guru/internal/common/logger"
	"vsme-guru/internal/common/metrics"
	"vsme-guru/internal/common/observability"
	"vsme-guru/internal/submission"
	"vsme-guru/internal/wizard/engine"
	"vsme-guru/internal/wizard/persistence"
	"vsme-guru/internal/wizard/schema"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.Build(logger.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Service:     cfg.App.Name,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting wizard server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	ctx := context.Background()
	checkers := map[string]api.Checker{}

	// --- Snapshot store ---
	var store persistence.Store
	switch cfg.Wizard.StorageBackend {
	case config.StorageRedis:
		var redis *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		store = persistence.NewRedisStore(redis, cfg.Wizard.SnapshotTTL())
		checkers["redis"] = redis
		zapLog.Info("Redis snapshot store connected")
	default:
		store = persistence.NewMemoryStore()
		zapLog.Info("Using in-memory snapshot store")
	}

	// --- Submission sinks ---
	var primary submission.Sink = submission.FromSubmitter("simulated",
		submission.NewSimulated(cfg.Wizard.SubmitDelay(), log))
	var sideEffects []submission.Sink

	if cfg.Database.Postgres.Enabled {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("postgres schema setup failed", zap.Error(err))
		}
		defer pg.Close()
		primary = submission.NewReportRepository(pg.DB, log)
		checkers["postgres"] = pg
		zapLog.Info("PostgreSQL connected successfully")
	}

	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		if err := esClient.EnsureIndex(ctx); err != nil {
			zapLog.Fatal("elasticsearch index setup failed", zap.Error(err))
		}
		sideEffects = append(sideEffects, submission.NewReportIndexer(esClient.Client, esClient.Index, log))
		checkers["elasticsearch"] = esClient
		zapLog.Info("Elasticsearch connected successfully")
	}

	awsCfg := cfg.Integrations.AWS
	if awsCfg.SES.Enabled || awsCfg.SNS.Enabled {
		sdkCfg, err := aws.LoadConfig(ctx, awsCfg.Region)
		if err != nil {
			zapLog.Fatal("aws config load failed", zap.Error(err))
		}
		var email submission.EmailSender
		var events submission.EventPublisher
		if awsCfg.SES.Enabled {
			email = aws.NewSESClient(sdkCfg, awsCfg.SES.FromEmail)
		}
		if awsCfg.SNS.Enabled {
			events = aws.NewSNSClient(sdkCfg, awsCfg.SNS.TopicARN)
		}
		sideEffects = append(sideEffects, submission.NewNotifier(email, events, log))
		zapLog.Info("AWS notifier configured",
			zap.Bool("ses", awsCfg.SES.Enabled),
			zap.Bool("sns", awsCfg.SNS.Enabled),
		)
	}

	if cfg.Integrations.Camunda.Enabled {
		var zeebe *camunda.Client
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(cfg.Integrations.Camunda.BrokerAddress)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		sideEffects = append(sideEffects, submission.NewProcessStarter(zeebe, cfg.Integrations.Camunda.ProcessID, log))
		checkers["camunda"] = api.CheckerFunc(zeebe.HealthCheck)
		zapLog.Info("Zeebe client connected successfully")
	}

	submitter := submission.NewComposite(primary, log, sideEffects...)

	// --- Wizard engines ---
	validator, err := schema.New()
	if err != nil {
		zapLog.Fatal("schema compile failed", zap.Error(err))
	}
	if validator.Steps() != cfg.Wizard.TotalSteps {
		zapLog.Fatal("wizard.total_steps does not match the step schemas",
			zap.Int("configured", cfg.Wizard.TotalSteps),
			zap.Int("schemas", validator.Steps()),
		)
	}
	recorder := engine.Recorders(metrics.NewWizardRecorder(), obs)

	factory := func(ctx context.Context, sessionID string) (*engine.Engine, error) {
		sessionLog := logger.WithSession(log, sessionID)
		p := persistence.NewPersister(store, persistence.Options{
			Key:    cfg.Wizard.KeyPrefix + ":" + sessionID,
			MaxAge: cfg.Wizard.SnapshotTTL(),
			Logger: sessionLog,
		})
		return engine.New(ctx, engine.Options{
			TotalSteps:    cfg.Wizard.TotalSteps,
			Validator:     validator,
			Persister:     p,
			DebounceDelay: cfg.Wizard.DebounceDelay(),
			Submitter:     submitter,
			Recorder:      recorder,
			Logger:        sessionLog,
		})
	}

	registry := api.NewRegistry(factory, log)
	defer registry.Close()

	handler := api.NewHandler(api.Dependencies{
		Registry: registry,
		Checkers: checkers,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewRouter(handler, obs),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Wizard server stopped gracefully")
}
