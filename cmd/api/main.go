package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-flashmob-registry/internal/api"
	"github.com/sanosuguru/go-flashmob-registry/internal/api/handler"
	custommw "github.com/sanosuguru/go-flashmob-registry/internal/api/middleware"
	"github.com/sanosuguru/go-flashmob-registry/internal/application"
	"github.com/sanosuguru/go-flashmob-registry/internal/config"
	kafkainfra "github.com/sanosuguru/go-flashmob-registry/internal/infrastructure/kafka"
	"github.com/sanosuguru/go-flashmob-registry/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-flashmob-registry/internal/infrastructure/redis"
	"github.com/sanosuguru/go-flashmob-registry/internal/pkg/logger"
	"github.com/sanosuguru/go-flashmob-registry/internal/pkg/metrics"
	"github.com/sanosuguru/go-flashmob-registry/internal/worker"
)

func main() {
	cfg := config.Load()

	// ロガー初期化
	log := logger.NewLogger(cfg.App.Env)
	logger.Set(log)
	defer logger.Sync()

	// DB接続 + マイグレーション
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続エラー", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db.DB, cfg.App.MigrationsPath); err != nil {
		logger.Fatal("マイグレーションエラー", zap.Error(err))
	}

	// Redis接続（失敗時はロック・キャッシュなしで縮退起動）
	var (
		lockManager  *redisinfra.LockManager
		detailsCache *redisinfra.DetailsCache
	)
	redisClient := redisinfra.NewClient(&cfg.Redis)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisinfra.Ping(pingCtx, redisClient); err != nil {
		logger.Warn("Redis接続エラー（ロック・キャッシュなしで起動します）", zap.Error(err))
		redisClient = nil
	} else {
		lockManager = redisinfra.NewLockManager(redisClient)
		detailsCache = redisinfra.NewDetailsCache(redisClient)
		defer redisClient.Close()
	}
	pingCancel()

	// メトリクス初期化
	m := metrics.Init()

	// サービス組み立て
	eventRepo := postgres.NewEventRepository(db)
	notifLog := postgres.NewNotificationLog(db)
	txManager := postgres.NewTxManager(db)
	registryService := application.NewRegistryService(txManager, eventRepo, notifLog, lockManager, detailsCache, m, nil)

	// 通知中継ワーカー（Kafka設定時のみ）
	var relay *worker.NotificationRelay
	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()
	if cfg.Kafka.Enabled() {
		publisher, err := kafkainfra.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Fatal("Kafkaパブリッシャー作成エラー", zap.Error(err))
		}
		defer publisher.Close()

		relay = worker.NewNotificationRelay(notifLog, publisher, cfg.Relay.Interval, cfg.Relay.BatchSize, m)
		go relay.Start(relayCtx)
	} else {
		logger.Info("Kafka未設定のため通知中継ワーカーは起動しません")
	}

	// Echo セットアップ
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	custommw.SetupMiddleware(e)
	e.Use(custommw.PrometheusMiddleware(m))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), custommw.MetricsBasicAuth())

	eventHandler := handler.NewEventHandler(registryService)
	participationHandler := handler.NewParticipationHandler(registryService)
	notificationHandler := handler.NewNotificationHandler(registryService)
	healthHandler := handler.NewHealthHandler()
	handler.RegisterRoutes(e, eventHandler, participationHandler, notificationHandler, healthHandler)

	// サーバー起動
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()
	logger.Info("サーバー起動", zap.String("port", cfg.Server.Port), zap.String("env", cfg.App.Env))

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	if relay != nil {
		relay.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
