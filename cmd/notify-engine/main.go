// cmd/notify-engine/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"course-notify/internal/common/camunda"
	"course-notify/internal/common/config"
	"course-notify/internal/common/database"
	"course-notify/internal/common/logger"
	"course-notify/internal/common/observability"
	"course-notify/internal/models"
	"course-notify/internal/notify/audit"
	"course-notify/internal/notify/delivery"
	"course-notify/internal/notify/ledger"
	"course-notify/internal/notify/milestone"
	"course-notify/internal/notify/store"
	"course-notify/internal/notify/template"
	"course-notify/internal/notify/transport"

	rm "course-notify/internal/workers/notification/run-milestones"
	sn "course-notify/internal/workers/notification/send-notification"
)

const milestoneLockKey = "notify:milestone-run"

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
	runOnce := flag.Bool("run-once", false, "Run the milestone scheduler once and exit")
	configPath := flag.String("config", "", "Config file (default: configs/config.yaml)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"app":         cfg.App.Name,
		"environment": cfg.App.Environment,
	})

	zapLog.Info("Starting notify engine...", zap.Bool("runOnce", *runOnce))

	obs := observability.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- PostgreSQL ---
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
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if err := store.EnsureSchema(ctx, pg.DB); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}

	// --- Redis (milestone run lock) ---
	var redis *database.RedisClient
	if cfg.Database.Redis.Address != "" {
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
		zapLog.Info("Redis connected successfully")
	}

	// --- Elasticsearch (optional delivery audit) ---
	var auditor delivery.Auditor
	if cfg.Database.Elasticsearch.Enabled() {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
		if err == nil {
			err = es.Ping(ctx)
		}
		if err != nil {
			zapLog.Warn("elasticsearch unavailable, delivery audit disabled", zap.Error(err))
		} else {
			esAuditor := audit.NewElasticsearchAuditor(es.Client, cfg.Notifications.Audit.Index, log)
			if err := esAuditor.EnsureIndex(ctx); err != nil {
				zapLog.Warn("audit index not provisioned", zap.Error(err))
			}
			auditor = esAuditor
			zapLog.Info("Elasticsearch delivery audit enabled", zap.String("index", cfg.Notifications.Audit.Index))
		}
	}

	transports, err := transport.FromConfig(ctx, cfg)
	if err != nil {
		zapLog.Fatal("transport setup failed", zap.Error(err))
	}

	reg, err := loadRegistry(cfg.Scheduler.RegistryPath)
	if err != nil {
		zapLog.Fatal("notification registry invalid", zap.Error(err))
	}

	loc := cfg.Scheduler.Location()

	// --- Core components ---
	orchestrator := delivery.New(
		delivery.Deps{
			Templates:  store.NewTemplateStore(pg.DB),
			Recipients: store.NewRecipientStore(pg.DB),
			Logs:       store.NewDeliveryLogStore(pg.DB),
			Ledger:     ledger.New(ledger.NewPostgresStore(pg.DB), log, obs),
			Transports: transports,
			Auditor:    auditor,
		},
		deliveryOptions(cfg),
		template.NewResolver(reg.AliasTable()),
		log, obs,
	)
	loader := delivery.NewContextLoader(store.NewEntityStore(pg.DB), companyInfo(cfg), loc)

	var lock milestone.RunLock
	if redis != nil {
		lock = milestone.NewRedisLock(redis.Client, milestoneLockKey, config.GetDuration(cfg.Scheduler.LockTTLMs))
	}
	scheduler := milestone.New(
		ruleTables(reg, milestoneSources{
			renewal:    store.LicenseExpirations(pg.DB),
			refresher:  store.CertificationIssues(pg.DB),
			suppressor: store.NewActiveRenewalEnrollment(pg.DB),
		}),
		store.NewFiredStore(pg.DB),
		milestone.NewDispatcher(orchestrator, loader),
		lock, loc, log, obs,
	)

	if *runOnce {
		report, err := scheduler.Run(ctx)
		if err != nil {
			zapLog.Fatal("milestone run failed", zap.Error(err))
		}
		zapLog.Info("milestone run complete",
			zap.Int("evaluated", report.Evaluated),
			zap.Int("fired", report.Fired),
			zap.Int("failed", report.Failed),
			zap.Bool("skipped", report.Skipped),
		)
		return
	}

	// --- Cron trigger ---
	var trigger *milestone.Trigger
	if cfg.Scheduler.Enabled {
		trigger, err = milestone.NewTrigger(cfg.Scheduler.Cron, loc, scheduler, log)
		if err != nil {
			zapLog.Fatal("invalid scheduler.cron", zap.Error(err))
		}
		trigger.Start()
		zapLog.Info("Milestone trigger started",
			zap.String("cron", cfg.Scheduler.Cron),
			zap.String("timezone", loc.String()),
			zap.Time("nextRun", trigger.Next()),
		)
	}

	// --- Zeebe workers (optional) ---
	var (
		zeebe   *camunda.Client
		workers []*camunda.CamundaWorker
	)
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClient(cfg.Camunda.BrokerAddress, config.GetDuration(cfg.Camunda.RequestTimeout))
		if err != nil {
			zapLog.Fatal("zeebe gateway unreachable", zap.String("address", cfg.Camunda.BrokerAddress), zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		if wcfg := config.GetWorkerConfig(cfg, sn.TaskType); wcfg.Enabled {
			handler := sn.NewHandler(sn.ConfigFrom(wcfg), orchestrator, loader, log)
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), sn.TaskType, wcfg, handler, log))
		}
		if wcfg := config.GetWorkerConfig(cfg, rm.TaskType); wcfg.Enabled {
			handler := rm.NewHandler(rm.ConfigFrom(wcfg), scheduler, log)
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), rm.TaskType, wcfg, handler, log))
		}
		zapLog.Info("Zeebe workers registered", zap.Int("count", len(workers)))
	}

	// --- Health / metrics ---
	checks := map[string]func(context.Context) error{"postgres": pg.Ping}
	if redis != nil {
		checks["redis"] = redis.Ping
	}
	if zeebe != nil {
		checks["zeebe"] = zeebe.HealthCheck
	}
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           newMux(checks),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			zapLog.Warn("milestone run still in progress at shutdown", zap.Error(err))
		}
	}
	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
	}

	zapLog.Info("Notify engine stopped gracefully")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func deliveryOptions(cfg *config.Config) delivery.Options {
	n := cfg.Notifications
	metered := make([]models.Channel, 0, len(n.MeteredChannels))
	for _, ch := range n.MeteredChannels {
		metered = append(metered, models.Channel(ch))
	}
	return delivery.Options{
		MeteredChannels: metered,
		SendTimeout:     config.GetDuration(n.SendTimeoutMs),
		Workers:         n.Bulk.Workers,
		RatePerSecond:   n.Bulk.RatePerSecond,
		DefaultRegion:   n.SMS.DefaultRegion,
	}
}

func companyInfo(cfg *config.Config) template.CompanyInfo {
	return template.CompanyInfo{
		Name:         cfg.Company.Name,
		SupportEmail: cfg.Company.SupportEmail,
		Phone:        cfg.Company.Phone,
		Website:      cfg.Company.Website,
		Address:      cfg.Company.Address,
	}
}
