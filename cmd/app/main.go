package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"silink/internal/auth"
	"silink/internal/cache"
	"silink/internal/chat"
	"silink/internal/config"
	"silink/internal/flutterwave"
	"silink/internal/httpserver"
	"silink/internal/ledger"
	"silink/internal/logging"
	"silink/internal/market"
	"silink/internal/metrics"
	"silink/internal/repo"
	"silink/migrations"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting silink", "env", cfg.AppEnv, "driver", cfg.DatabaseDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repository.Close()
	logger.Info("database migrated")

	var redisClient *cache.Redis
	if cfg.RedisAddr != "" {
		redisClient = cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
	}

	verifier := auth.NewVerifier(cfg.AuthJWTSecret)
	var tokenVerifier chat.TokenVerifier
	if verifier != nil {
		tokenVerifier = verifier
	} else {
		logger.Warn("AUTH_JWT_SECRET not set; trusting the X-User-ID header")
	}

	registry := chat.NewLocalRegistry(metricRegistry, logger)
	localNotifier := chat.NewLocalNotifier(registry, metricRegistry, logger)
	var (
		notifier      chat.Notifier = localNotifier
		redisNotifier *chat.RedisNotifier
	)
	if redisClient != nil {
		redisNotifier = chat.NewRedisNotifier(redisClient, chat.DefaultRelayChannel, localNotifier, metricRegistry, logger)
		notifier = redisNotifier
	}
	chatService := chat.NewService(repository, notifier, metricRegistry, logger)

	var payouts ledger.Payouts
	if cfg.FlutterwaveSecretKey != "" {
		payouts = flutterwave.New(flutterwave.Config{
			BaseURL:   cfg.FlutterwaveBaseURL,
			SecretKey: cfg.FlutterwaveSecretKey,
			Timeout:   cfg.FlutterwaveTimeout,
		}, logger, metricRegistry)
	} else {
		logger.Warn("FLW_SECRET_KEY not set; withdrawals stay pending until confirmed manually")
	}

	var ledgerCache ledger.Cache
	if redisClient != nil {
		ledgerCache = redisClient
	}
	ledgerCfg := ledger.DefaultConfig()
	ledgerCfg.FundingMinimum = cfg.FundingMinimum
	ledgerCfg.WithdrawMinimum = cfg.WithdrawMinimum
	ledgerService := ledger.New(repository, payouts, ledgerCache, ledgerCfg, metricRegistry, logger)

	marketService := market.New(repository, logger)

	webhookHandler := flutterwave.NewWebhookHandler(logger, metricRegistry, cfg.FlutterwaveSecretHash, ledgerService)

	httpSrv := httpserver.New(httpserver.Options{
		Addr:           cfg.HTTPListenAddr,
		BasePath:       cfg.PublicBasePath,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger, metricRegistry, httpserver.Dependencies{
		Health:     repository,
		Auth:       auth.NewMiddleware(verifier, repository, logger),
		Chat:       chatService,
		ChatSocket: chat.NewHandler(registry, tokenVerifier, metricRegistry, logger),
		Ledger:     ledgerService,
		Market:     marketService,
		Webhook:    webhookHandler,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpSrv.Start()
	})
	if redisNotifier != nil {
		g.Go(func() error {
			if err := redisNotifier.Run(gctx); err != nil {
				return fmt.Errorf("chat relay: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repo.Repository, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		r, err := repo.NewSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("init sqlite repository: %w", err)
		}
		if err := r.RunMigrations(ctx, migrations.SQLiteFiles); err != nil {
			r.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return r, nil
	default:
		r, err := repo.New(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
		if err != nil {
			return nil, fmt.Errorf("init repository: %w", err)
		}
		if err := r.RunMigrations(ctx, migrations.Files); err != nil {
			r.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return r, nil
	}
}
