package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"billminder/internal/amqp"
	"billminder/internal/backend"
	"billminder/internal/bills"
	"billminder/internal/config"
	apphttp "billminder/internal/http"
	"billminder/internal/log"
	"billminder/internal/metrics"
	"billminder/internal/notify"
	"billminder/internal/notify/local"
	"billminder/internal/reminder"
	"billminder/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: log.ComponentApp,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("billminder stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("billminder stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Failed to close storage backend", "error", err)
		}
	}()
	store := bills.NewStore(result.Persister, bills.WithMetrics(m))

	status, _ := notify.ParseAuthorizationStatus(cfg.NotifyAuthorization)
	centerOpts := []local.Option{
		local.WithPrompter(local.GrantAlways(cfg.NotifyGrantOnRequest)),
		local.WithDeliverer(local.LogDeliverer{}),
	}

	var broker *amqp.Client
	if cfg.AMQPEnabled() {
		broker, err = amqp.NewClient(amqp.Config{
			URL:           cfg.AMQPURL,
			Exchange:      cfg.AMQPExchange,
			ReminderQueue: cfg.AMQPReminderQueue,
			ResponseQueue: cfg.AMQPResponseQueue,
		})
		if err != nil {
			return err
		}
		defer broker.Close()
		centerOpts = append(centerOpts, local.WithDeliverer(broker))
		logger.Info("AMQP bridge enabled", "exchange", cfg.AMQPExchange, "response_queue", cfg.AMQPResponseQueue)
	} else {
		logger.Info("AMQP bridge disabled - no AMQP_URL provided")
	}

	center := local.New(status, centerOpts...)
	scheduler := reminder.New(center, reminder.WithMetrics(m))
	billSvc := services.NewBillService(store, scheduler)
	router := services.NewRouter(billSvc,
		services.WithSnooze(cfg.SnoozeDuration),
		services.WithRouterMetrics(m))
	center.OnResponse(router.HandleResponse)
	center.OnPresent(router.WillPresent)

	if broker != nil {
		unsubscribe := store.Subscribe(func() {
			count := len(store.List(ctx))
			go func() {
				pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()
				if err := broker.PublishBillsChanged(pubCtx, count); err != nil {
					logger.Warn("Failed to publish bills changed event", "error", err)
				}
			}()
		})
		defer unsubscribe()
	}

	srv := apphttp.NewServer(":"+cfg.Port, billSvc, center, logger,
		apphttp.WithMetrics(m),
		apphttp.WithRateLimit(cfg.RateLimitPerMinute))
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(center.Run(gctx, cfg.DispatchInterval))
	})

	if broker != nil {
		g.Go(func() error {
			return ignoreCanceled(broker.ConsumeResponses(gctx, center.Respond))
		})
	}

	g.Go(func() error {
		logger.Info("Starting billminder server", "port", cfg.Port, "backend", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", "reason", context.Cause(gctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
