// Package app собирает сервис: конфиг, логгер, хранилище, брокер,
// consumers, HTTP API и graceful shutdown.
package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	httpapi "github.com/shestoi/product-management/internal/api/http"
	"github.com/shestoi/product-management/internal/config"
	"github.com/shestoi/product-management/internal/dispatch"
	"github.com/shestoi/product-management/internal/event/rabbitmq"
	"github.com/shestoi/product-management/internal/repository"
	"github.com/shestoi/product-management/internal/repository/memory"
	"github.com/shestoi/product-management/internal/repository/postgres"
	"github.com/shestoi/product-management/internal/service"
	"github.com/shestoi/product-management/pkg/logging"
	"github.com/shestoi/product-management/pkg/shutdown"
)

// App содержит все зависимости для запуска и корректного shutdown сервиса
type App struct {
	logger      *zap.Logger
	cfg         config.Config
	httpServer  *http.Server
	consumers   []*rabbitmq.Consumer
	shutdownMgr *shutdown.Manager
	ready       atomic.Bool

	consumerCtx    context.Context
	consumerCancel context.CancelFunc
	wg             sync.WaitGroup
}

// Build создаёт и настраивает все зависимости сервиса
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"

	logger, err := logging.New(logging.Config{
		ServiceName: "product-management",
		Env:         string(cfg.AppEnv),
		Level:       os.Getenv("LOG_LEVEL"),
		Format:      os.Getenv("LOG_FORMAT"),
	})
	if err != nil {
		return nil, err
	}

	buildLogger := logger.With(zap.String("op", op))
	buildLogger.Info("Building product management service", zap.String("http_addr", cfg.HTTPAddr))
	cfg.Log(buildLogger.Sugar().Infof)

	shutdownMgr := shutdown.New(cfg.ShutdownTimeout, logger)

	// Хранилище: memory по умолчанию, postgres по конфигу
	var (
		productRepo repository.ProductRepository
		orderRepo   repository.OrderRepository
	)
	switch cfg.StorageBackend {
	case "postgres":
		pool, err := buildPostgres(cfg, buildLogger)
		if err != nil {
			return nil, err
		}
		productRepo = postgres.NewProductRepository(pool)
		orderRepo = postgres.NewOrderRepository(pool)
		shutdownMgr.Add("postgres_pool", shutdown.ClosePool(pool))
	default:
		productRepo = memory.NewProductRepository()
		orderRepo = memory.NewOrderRepository()
	}
	cartStore := memory.NewCartStore()

	// Брокер: одно соединение на процесс, каналы по требованию
	conn := rabbitmq.NewConnection(logger, cfg.RabbitMQ.URL())
	publisher := rabbitmq.NewPublisher(logger, conn)

	// Dispatcher доменных событий: интеграционные события уходят в брокер
	dispatcher := service.NewEventDispatcher(logger)
	service.SubscribeIntegrationEvents(dispatcher, publisher, service.IntegrationRoutes{
		CartEventsExchange:  cfg.RabbitMQ.CartEventsExchange,
		CartCheckedOutKey:   cfg.RabbitMQ.CartCheckedOutKey,
		OrderEventsExchange: cfg.RabbitMQ.OrderEventsExchange,
		OrderCreatedKey:     cfg.RabbitMQ.OrderCreatedKey,
	})

	productService := service.NewProductService(logger, productRepo, dispatcher)
	cartService := service.NewCartService(logger, cartStore, productRepo, dispatcher)
	orderService := service.NewOrderService(logger, orderRepo, dispatcher)

	// Command registry: все handlers регистрируются здесь, на старте
	registry := dispatch.NewRegistry()
	if err := service.RegisterCommandHandlers(registry, orderService, cartService); err != nil {
		return nil, err
	}

	retry := rabbitmq.RetryConfig{
		MaxAttempts: cfg.RabbitMQ.ConsumerMaxAttempts,
		BackoffBase: cfg.RabbitMQ.ConsumerBackoffBase,
	}
	dlx := rabbitmq.DeadLetterConfig{
		Enabled:  cfg.RabbitMQ.DeadLetterEnabled,
		Exchange: cfg.RabbitMQ.DeadLetterExchange,
	}

	consumers := []*rabbitmq.Consumer{
		rabbitmq.NewOrderCreationConsumer(logger, conn, rabbitmq.Route{
			Exchange:   cfg.RabbitMQ.CartEventsExchange,
			Queue:      cfg.RabbitMQ.OrderCreationQueue,
			RoutingKey: cfg.RabbitMQ.CartCheckedOutKey,
		}, retry, dlx, registry),
		rabbitmq.NewStockDeductionConsumer(logger, conn, rabbitmq.Route{
			Exchange:   cfg.RabbitMQ.OrderEventsExchange,
			Queue:      cfg.RabbitMQ.StockDeductionQueue,
			RoutingKey: cfg.RabbitMQ.OrderCreatedKey,
		}, retry, dlx, productRepo, dispatcher),
		rabbitmq.NewCartClearingConsumer(logger, conn, rabbitmq.Route{
			Exchange:   cfg.RabbitMQ.OrderEventsExchange,
			Queue:      cfg.RabbitMQ.CartClearingQueue,
			RoutingKey: cfg.RabbitMQ.OrderCreatedKey,
		}, retry, dlx, registry),
	}

	app := &App{
		logger:      logger,
		cfg:         cfg,
		consumers:   consumers,
		shutdownMgr: shutdownMgr,
	}
	app.consumerCtx, app.consumerCancel = context.WithCancel(context.Background())

	handler := httpapi.NewHandler(logger, productService, cartService, orderService, registry)
	router := httpapi.NewRouter(handler, app.ready.Load)

	app.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Обратный порядок выполнения: сначала HTTP, потом consumers, потом соединение
	shutdownMgr.Add("rabbitmq_connection", func(ctx context.Context) error {
		return conn.Close()
	})
	shutdownMgr.Add("consumers", func(ctx context.Context) error {
		app.consumerCancel()
		for _, c := range consumers {
			if err := c.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
			}
		}
		return nil
	})
	shutdownMgr.Add("readiness", func(ctx context.Context) error {
		app.ready.Store(false)
		return nil
	})
	shutdownMgr.Add("http_server", shutdown.ShutdownHTTPServer(app.httpServer))

	return app, nil
}

// buildPostgres подключается к PostgreSQL и накатывает goose-миграции
func buildPostgres(cfg config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	logger.Info("Connecting to PostgreSQL")
	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("PostgreSQL connection established")

	logger.Info("Applying database migrations")
	db, err := goose.OpenDBWithDriver("pgx", cfg.PostgresDSN)
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer db.Close()

	wd, err := os.Getwd()
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := goose.Up(db, filepath.Join(wd, "migrations")); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Database migrations applied successfully")

	return pool, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer logging.Sync(a.logger)

	a.logger.Info("Starting product management service", zap.String("addr", a.httpServer.Addr))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Consumers стартуют с задержкой: даём брокеру подняться
	// (docker-compose запускает всё одновременно)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		select {
		case <-a.consumerCtx.Done():
			return
		case <-time.After(a.cfg.ConsumerWarmupDelay):
		}

		for _, c := range a.consumers {
			if err := c.StartConsuming(a.consumerCtx); err != nil {
				a.logger.Error("failed to start consumer", zap.Error(err))
				return
			}
		}
		a.ready.Store(true)
		a.logger.Info("All consumers started, service is ready")
	}()

	a.shutdownMgr.Wait()

	a.wg.Wait()
	a.logger.Info("Product management service stopped")
	return nil
}
