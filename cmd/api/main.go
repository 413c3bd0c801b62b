package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sanosuguru/go-blockseat-booking/internal/api"
	"github.com/sanosuguru/go-blockseat-booking/internal/api/handler"
	"github.com/sanosuguru/go-blockseat-booking/internal/api/middleware"
	"github.com/sanosuguru/go-blockseat-booking/internal/application"
	"github.com/sanosuguru/go-blockseat-booking/internal/config"
	"github.com/sanosuguru/go-blockseat-booking/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-blockseat-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-blockseat-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-blockseat-booking/internal/pkg/metrics"
	"github.com/sanosuguru/go-blockseat-booking/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env は任意
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Set(logger.NewLogger(cfg.App.Env))
	defer func() { _ = logger.Sync() }()

	if err := run(cfg); err != nil {
		logger.Fatal("サーバーが異常終了しました", zap.Error(err))
	}
	logger.Info("サーバーが正常にシャットダウンしました")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.Init()

	// DB接続
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("DB接続に失敗: %w", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db.DB, cfg.App.MigrationsPath); err != nil {
		return fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	blockSeatRepo := postgres.NewBlockSeatRepository(db)
	bookingRepo := postgres.NewBookingRepository(db)
	txManager := postgres.NewTxManager(db, postgres.TxOptions{
		Timeout:       cfg.Booking.TxTimeout,
		MaxRetries:    cfg.Booking.TxMaxRetries,
		RetryInterval: cfg.Booking.TxRetryInterval,
	}, m)

	opts := []application.BookingServiceOption{application.WithMetrics(m)}
	checks := map[string]handler.HealthChecker{
		"postgres": func(ctx context.Context) error { return postgres.Ping(ctx, db) },
	}

	// Redis は任意。未接続の場合はキャッシュとイベント発行なしで動作する
	var cache application.AvailabilityCache
	redisClient, err := redisinfra.NewClient(&cfg.Redis)
	if err != nil {
		logger.Warn("Redisに接続できません。キャッシュとイベント発行を無効にします", zap.Error(err))
	} else {
		defer redisClient.Close()

		availability := redisinfra.NewAvailabilityCache(redisClient)
		cache = availability
		opts = append(opts, application.WithAvailabilityCache(availability))

		events, err := newEventPublisher(redisClient, cfg.Booking.EventsTopicPrefix)
		if err != nil {
			logger.Warn("イベント発行を無効にします", zap.Error(err))
		} else {
			defer func() {
				if err := events.Close(); err != nil {
					logger.Warn("パブリッシャーのクローズに失敗", zap.Error(err))
				}
			}()
			opts = append(opts, application.WithEventPublisher(events))
		}

		checks["redis"] = func(ctx context.Context) error { return redisinfra.Ping(ctx, redisClient) }
	}

	bookingService := application.NewBookingService(
		txManager, bookingRepo, blockSeatRepo,
		application.NewReferenceGenerator(cfg.Booking.ReferencePrefix),
		opts...,
	)
	blockSeatService := application.NewBlockSeatService(blockSeatRepo, cache, cfg.Booking.AvailabilityTTL)

	e := newServer(cfg, m, handler.Routes{
		Booking:   handler.NewBookingHandler(bookingService),
		BlockSeat: handler.NewBlockSeatHandler(blockSeatService),
		Health:    handler.NewHealthHandler(checks),
	})

	auditor := worker.NewSeatLedgerAuditor(txManager, blockSeatRepo, bookingRepo, m, cfg.Worker.LedgerAuditInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("サーバーを起動します", zap.String("addr", addr), zap.String("env", cfg.App.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("サーバー起動エラー: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		auditor.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("サーバーをシャットダウンしています...")

		auditor.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("サーバーシャットダウンエラー: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func newEventPublisher(client *goredis.Client, topicPrefix string) (*redisinfra.BookingEventPublisher, error) {
	pub, err := redisinfra.NewStreamPublisher(client)
	if err != nil {
		return nil, err
	}
	return redisinfra.NewBookingEventPublisher(pub, topicPrefix), nil
}

func newServer(cfg *config.Config, m *metrics.Metrics, routes handler.Routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler

	middleware.SetupMiddleware(e)
	e.Use(middleware.PrometheusMiddleware(m))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(middleware.LoadMetricsConfig()))
	routes.Register(e)

	return e
}
