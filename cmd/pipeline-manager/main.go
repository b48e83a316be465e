// cmd/pipeline-manager/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admissions-workers/internal/common/aws"
	"admissions-workers/internal/common/camunda"
	"admissions-workers/internal/common/config"
	"admissions-workers/internal/common/database"
	"admissions-workers/internal/common/httpapi"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/common/observability"
	"admissions-workers/internal/common/oracle"
	"admissions-workers/internal/index"
	"admissions-workers/internal/pipeline/evaluation"
	"admissions-workers/internal/pipeline/extraction"
	"admissions-workers/internal/pipeline/orchestrator"
	"admissions-workers/internal/pipeline/report"
	"admissions-workers/internal/store"

	getstatus "admissions-workers/internal/workers/pipeline/get-pipeline-status"
	resume "admissions-workers/internal/workers/pipeline/resume-pipeline"
	start "admissions-workers/internal/workers/pipeline/start-pipeline"
	submit "admissions-workers/internal/workers/pipeline/submit-application"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
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

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	if err := run(cfg, log); err != nil {
		log.Error("pipeline manager stopped with error", map[string]interface{}{"error": err})
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting pipeline manager", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	defer obs.Shutdown(context.Background())

	// --- AWS clients ---
	awsCfg, err := aws.LoadConfig(ctx, cfg.Storage.Region)
	if err != nil {
		return fmt.Errorf("aws config: %w", err)
	}
	objects := aws.NewS3Store(awsCfg, cfg.Storage.ReportsBucket, cfg.Storage.Endpoint)
	extractor := aws.NewTextractExtractor(awsCfg, objects)

	var checks []database.Pinger

	// --- Record stores ---
	var (
		apps        store.ApplicationStore
		evaluations store.EvaluationStore
	)
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, log, "PostgreSQL connection")
		if err != nil {
			return err
		}
		defer pg.Close()
		if cfg.Database.Postgres.EnsureSchema {
			if err := store.EnsureSchema(ctx, pg.DB); err != nil {
				return err
			}
		}
		apps = store.NewPostgresApplicationStore(pg.DB)
		evaluations = store.NewPostgresEvaluationStore(pg.DB)
		checks = append(checks, pg)
		log.Info("PostgreSQL connected successfully", nil)
	default:
		memApps := store.NewMemoryApplicationStore()
		apps = memApps
		evaluations = store.NewMemoryEvaluationStore(memApps)
		log.Warn("using in-memory record stores; state is lost on restart", nil)
	}

	var cache orchestrator.StatusCache
	if cfg.Database.Redis.Enabled {
		rdb := database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error { return rdb.Ping(ctx) }, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			return err
		}
		defer rdb.Close()
		cache = store.NewStatusCache(rdb.Client, config.GetDuration(cfg.Pipeline.StatusCacheTTL), log)
		checks = append(checks, rdb)
		log.Info("Redis connected successfully", nil)
	}

	var cohort report.Cohort
	if cfg.Database.Elasticsearch.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		err = retryWithBackoff(func() error { return es.Ping(ctx) }, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			return err
		}
		cohort = index.NewCohortIndex(es.Client, cfg.Database.Elasticsearch.CohortIndex)
		checks = append(checks, es)
		log.Info("Elasticsearch connected successfully", nil)
	}

	// --- Pipeline ---
	judge := oracle.NewClient(oracle.Config{
		BaseURL:    cfg.APIs.Oracle.BaseURL,
		APIKey:     cfg.APIs.Oracle.APIKey,
		Timeout:    config.GetDuration(cfg.APIs.Oracle.Timeout),
		MaxRetries: cfg.APIs.Oracle.MaxRetries,
	}, log)

	presignTTL := config.GetDuration(cfg.Storage.PresignTTL)
	deps := orchestrator.Deps{
		Applications: apps,
		Extraction: extraction.NewStage(extractor, apps, extraction.Config{
			Concurrency: cfg.Pipeline.ExtractionConcurrency,
			CallTimeout: config.GetDuration(cfg.Pipeline.ExtractionTimeout),
		}, log),
		Evaluation:    evaluation.NewStage(judge, evaluations, log),
		Report:        report.NewStage(evaluations, objects, apps, cohort, cfg.Storage.ReportsPrefix, log),
		Cache:         cache,
		Observability: obs,
	}
	if n := newNotifier(cfg, awsCfg, objects, presignTTL, log); n != nil {
		deps.Notifier = n
	}
	orch := orchestrator.New(deps, log)

	submitCfg := submit.LoadConfig()
	submitCfg.AllowedBuckets = []string{cfg.Storage.DocumentsBucket}
	submitter := submit.NewHandler(submitCfg, orch, log)

	// --- Zeebe workers ---
	var workers []*camunda.Worker
	if cfg.Camunda.Enabled {
		var zeebe *camunda.Client
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      10 * time.Second,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, log, "Zeebe client initialization")
		if err != nil {
			return err
		}
		defer zeebe.Close()
		checks = append(checks, zeebe)
		log.Info("Zeebe client connected successfully", nil)

		open := func(taskType string, handler camunda.HandlerFunc) {
			if !config.IsWorkerEnabled(cfg, taskType) {
				log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
				return
			}
			wcfg := config.GetWorkerConfig(cfg, taskType)
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), taskType, camunda.WorkerOptions{
				MaxJobsActive: wcfg.MaxJobsActive,
				Timeout:       config.GetDuration(wcfg.Timeout),
			}, handler, log))
		}

		open(submit.TaskType, submitter.Handle)

		startCfg := start.LoadConfig()
		startCfg.Timeout = workerTimeout(cfg, start.TaskType, startCfg.Timeout)
		open(start.TaskType, start.NewHandler(startCfg, orch, log).Handle)

		resumeCfg := resume.LoadConfig()
		resumeCfg.Timeout = workerTimeout(cfg, resume.TaskType, resumeCfg.Timeout)
		open(resume.TaskType, resume.NewHandler(resumeCfg, orch, log).Handle)

		statusCfg := getstatus.LoadConfig()
		statusCfg.Timeout = workerTimeout(cfg, getstatus.TaskType, statusCfg.Timeout)
		open(getstatus.TaskType, getstatus.NewHandler(statusCfg, orch, log).Handle)

		log.Info("workers registered", map[string]interface{}{"count": len(workers)})
	}

	// --- HTTP API ---
	server := &http.Server{
		Addr: cfg.HTTP.Address,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Pipeline:   orch,
			Submitter:  submitter,
			Presigner:  objects,
			PresignTTL: presignTTL,
			Checks:     checks,
		}, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"address": cfg.HTTP.Address})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received", nil)
	case err := <-serverErr:
		if err != nil {
			log.Error("HTTP server failed", map[string]interface{}{"error": err})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", map[string]interface{}{"error": err})
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		log.Error("pipeline runs did not stop in time", map[string]interface{}{"error": err})
	}

	log.Info("pipeline manager stopped gracefully", nil)
	return nil
}

// workerTimeout prefers the per-worker timeout from configuration.
func workerTimeout(cfg *config.Config, taskType string, fallback time.Duration) time.Duration {
	if w, ok := cfg.Workers[taskType]; ok && w.Timeout > 0 {
		return config.GetDuration(w.Timeout)
	}
	return fallback
}

func newNotifier(cfg *config.Config, awsCfg awssdk.Config, objects *aws.S3Store, ttl time.Duration, log logger.Logger) orchestrator.Notifier {
	if !cfg.Notifications.SNS.Enabled && !cfg.Notifications.SES.Enabled {
		return nil
	}
	n := &orchestrator.AWSNotifier{
		Presigner:  objects,
		PresignTTL: ttl,
		Timeout:    10 * time.Second,
		Logger:     logger.Component(log, "notifier"),
	}
	if cfg.Notifications.SNS.Enabled {
		n.Publisher = aws.NewSNSClient(awsCfg, cfg.Notifications.SNS.TopicARN)
	}
	if cfg.Notifications.SES.Enabled {
		n.Mailer = aws.NewSESClient(awsCfg, cfg.Notifications.SES.FromEmail)
		n.Recipient = cfg.Notifications.SES.ToEmail
	}
	return n
}
