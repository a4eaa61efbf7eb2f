package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/audit"
	"solar-portal/internal/auth"
	biddingapp "solar-portal/internal/bidding/application"
	bidding "solar-portal/internal/bidding/domain"
	biddingpg "solar-portal/internal/bidding/infrastructure/postgres"
	biddinghttp "solar-portal/internal/bidding/interfaces/http"
	billingapp "solar-portal/internal/billing/application"
	billing "solar-portal/internal/billing/domain"
	billingpg "solar-portal/internal/billing/infrastructure/postgres"
	"solar-portal/internal/billing/infrastructure/pricing"
	billinghttp "solar-portal/internal/billing/interfaces/http"
	"solar-portal/internal/config"
	"solar-portal/internal/notify"
	"solar-portal/internal/observability/metrics"
	paymentsapp "solar-portal/internal/payments/application"
	payments "solar-portal/internal/payments/domain"
	paymentspg "solar-portal/internal/payments/infrastructure/postgres"
	paymentshttp "solar-portal/internal/payments/interfaces/http"
	paymentskafka "solar-portal/internal/payments/interfaces/kafka"
	"solar-portal/internal/platform/database"
	"solar-portal/internal/platform/httpx"
	"solar-portal/internal/platform/migrations"
	"solar-portal/internal/scheduler"
	"solar-portal/internal/storage/memory"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, db, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("storage error: %v", err)
	}
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, logger)

	var auditLogger audit.Logger = audit.NewLogrusLogger(logger)
	if db != nil {
		auditLogger = audit.NewRepository(db)
	}
	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		logger.Fatalf("notifier error: %v", err)
	}

	rate, credit, _ := cfg.Rates()
	rates, err := pricing.NewFixedRateProvider(rate, credit)
	if err != nil {
		logger.Fatalf("rate provider error: %v", err)
	}

	biddingService, err := biddingapp.NewService(stores.bidding, notifier, logger,
		biddingapp.WithOperationTimeout(cfg.OpTimeout),
		biddingapp.WithDefaultSessionDuration(cfg.SessionDuration()))
	if err != nil {
		logger.Fatalf("bidding service error: %v", err)
	}
	billingService, err := billingapp.NewService(stores.billing, logger,
		billingapp.WithOperationTimeout(cfg.OpTimeout),
		billingapp.WithRateProvider(rates),
		billingapp.WithDueDay(cfg.Billing.DueDay))
	if err != nil {
		logger.Fatalf("billing service error: %v", err)
	}
	paymentService, err := paymentsapp.NewService(stores.payments, notifier, logger,
		paymentsapp.WithOperationTimeout(cfg.OpTimeout))
	if err != nil {
		logger.Fatalf("payment service error: %v", err)
	}

	limiter := auth.NewRateLimiter(cfg.Bidding.BidsPerSec, cfg.Bidding.BidBurst, logger)
	biddingHandler, err := biddinghttp.NewHandler(biddingService, auditLogger, limiter, logger)
	if err != nil {
		logger.Fatalf("bidding handler error: %v", err)
	}
	billingHandler, err := billinghttp.NewHandler(billingService, auditLogger, logger)
	if err != nil {
		logger.Fatalf("billing handler error: %v", err)
	}
	paymentHandler, err := paymentshttp.NewHandler(paymentService, auditLogger, logger)
	if err != nil {
		logger.Fatalf("payment handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/", "/webhooks/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	signature := auth.NewSignatureMiddleware([]byte(cfg.IngestSecret), cfg.IngestSkew)

	router := mux.NewRouter()
	biddingHandler.Register(router)
	billingHandler.Register(router, signature.Wrap)
	paymentHandler.Register(router, signature.Wrap)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	if len(cfg.Kafka.Brokers) > 0 {
		consumer, err := paymentskafka.NewConsumer(paymentskafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, paymentService, logger)
		if err != nil {
			logger.Fatalf("kafka consumer error: %v", err)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.WithError(err).Error("payment consumer stopped")
			}
		}()
	}

	var schedOpts []scheduler.Option
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer client.Close()
		locker, err := scheduler.NewRedisLocker(client, "solar-portal:")
		if err != nil {
			logger.Fatalf("scheduler lock error: %v", err)
		}
		schedOpts = append(schedOpts, scheduler.WithLocker(locker, cfg.LockTTL()))
	}
	sched := scheduler.New(logger, schedOpts...)
	for _, job := range []scheduler.Job{
		scheduler.SweepJob(cfg.Schedule.Sweep, biddingService),
		scheduler.MonthlyBillingJob(cfg.Schedule.MonthlyBilling, billingService, logger),
		scheduler.OverdueJob(cfg.Schedule.Overdue, billingService),
		scheduler.LimiterPruneJob(cfg.Schedule.LimiterPrune, limiter),
	} {
		if err := sched.Add(job); err != nil {
			logger.Fatalf("scheduler error: %v", err)
		}
	}
	go sched.Start(ctx)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.RequestLogger(logger)(authMiddleware.Wrap(router)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.WithField("addr", cfg.HTTPAddr).Info("http listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server error: %v", err)
	}
}

type storeSet struct {
	bidding  bidding.Store
	billing  billing.Store
	payments payments.Store
}

func openStores(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (storeSet, *sql.DB, error) {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn("using in-memory storage; state is lost on exit")
		mem := memory.New()
		return storeSet{bidding: mem.Bidding(), billing: mem.Billing(), payments: mem.Payments()}, nil, nil
	}
	db, err := database.Open(ctx, cfg.DatabaseURL, database.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxOpenConns / 2,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return storeSet{}, nil, err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return storeSet{}, nil, err
	}
	return storeSet{
		bidding:  biddingpg.NewStore(db),
		billing:  billingpg.NewStore(db),
		payments: paymentspg.NewStore(db),
	}, db, nil
}

func buildNotifier(cfg config.Config, logger logrus.FieldLogger) (notify.Notifier, error) {
	notifiers := []notify.Notifier{notify.NewLoggingNotifier(logger)}
	if cfg.Notify.WebhookURL != "" {
		overrides := make(map[notify.Kind]string, len(cfg.Notify.Templates))
		for kind, text := range cfg.Notify.Templates {
			overrides[notify.Kind(kind)] = text
		}
		templates, err := notify.NewTemplates(overrides)
		if err != nil {
			return nil, err
		}
		webhook, err := notify.NewWebhookNotifier(cfg.Notify.WebhookURL, templates)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, webhook)
	}
	return notify.NewMultiNotifier(notifiers...), nil
}
