// cmd/scheduler/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"matrimony-pipeline/internal/common/aws"
	"matrimony-pipeline/internal/common/config"
	"matrimony-pipeline/internal/common/database"
	"matrimony-pipeline/internal/common/logger"
	"matrimony-pipeline/internal/common/observability"
	"matrimony-pipeline/internal/delivery"
	"matrimony-pipeline/internal/jobs"
	"matrimony-pipeline/internal/jobs/cleanup"
	"matrimony-pipeline/internal/jobs/digest"
	"matrimony-pipeline/internal/jobs/drain"
	"matrimony-pipeline/internal/scheduler"
	"matrimony-pipeline/internal/store"
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
			delay *= 2 // Exponential backoff
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

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notification scheduler...",
		zap.String("env", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New("notification-scheduler")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
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

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init AWS clients ---
	sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		zapLog.Fatal("ses client init failed", zap.Error(err))
	}
	snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		zapLog.Fatal("sns client init failed", zap.Error(err))
	}
	zapLog.Info("AWS clients initialized")

	// --- Stores ---
	db := pg.GetDB()
	jobStore := store.NewJobStore(db)
	queueStore := store.NewQueueStore(db)
	templateStore := store.NewTemplateStore(db)
	scheduleStore := store.NewScheduleStore(db)
	userStore := store.NewUserStore(db)
	cleanupStore := store.NewCleanupStore(db)

	// --- Channel senders ---
	sendTimeout := config.GetMillis(cfg.Notifications.SendTimeout)
	emailSender := delivery.NewEmailSender(sesClient,
		cfg.Notifications.Email.FromEmail, cfg.Notifications.Email.FromName, log)
	smsSender := delivery.NewSMSSender(snsClient, rdb.GetClient(),
		cfg.Notifications.SMS.SenderID,
		cfg.Notifications.SMS.CostPerMessage, cfg.Notifications.SMS.DailyCostLimit, log)
	pushSender := delivery.NewPushSender(snsClient, log)

	// --- Job template registry ---
	registry := jobs.NewRegistry()
	if cfg.Notifications.Email.Enabled {
		registry.MustRegister(drain.NewEmailTemplate(queueStore, templateStore, userStore, emailSender, sendTimeout))
	}
	if cfg.Notifications.SMS.Enabled {
		registry.MustRegister(drain.NewSMSTemplate(queueStore, templateStore, userStore, smsSender, sendTimeout))
	}
	if cfg.Notifications.Push.Enabled {
		registry.MustRegister(drain.NewPushTemplate(queueStore, templateStore, userStore, pushSender, sendTimeout))
	}
	registry.MustRegister(cleanup.New(cleanupStore))
	registry.MustRegister(digest.New(scheduleStore, queueStore, userStore))
	zapLog.Info("Job templates registered", zap.Strings("types", registry.Types()))

	// --- Metrics / pprof listener ---
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Metrics listener starting", zap.String("address", cfg.Metrics.Address))
		if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
			zapLog.Error("metrics listener stopped", zap.Error(err))
		}
	}()

	// --- Run the scheduler until SIGINT/SIGTERM ---
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(jobStore, registry, obs, log, scheduler.Options{
		PollInterval: config.GetDuration(cfg.Scheduler.PollInterval),
		PoolSize:     cfg.Scheduler.WorkerPoolSize,
		JobTimeout:   config.GetDuration(cfg.Scheduler.JobTimeout),
	})
	sched.Run(runCtx)

	zapLog.Info("Scheduler stopped, goodbye")
}
