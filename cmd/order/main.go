// OrderService 主程序
// 功能：购物车结算下单、订单状态机、支付对账、库存流水与发货推进
// 架构：基于 DDD + Gin + MySQL + Redis + Kafka
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	cartapp "github.com/wyfcoding/ecommerce/internal/cart/application"
	cartmysql "github.com/wyfcoding/ecommerce/internal/cart/infrastructure/persistence/mysql"
	carthttp "github.com/wyfcoding/ecommerce/internal/cart/interfaces/http"
	catalogmysql "github.com/wyfcoding/ecommerce/internal/catalog/infrastructure/persistence/mysql"
	inventoryapp "github.com/wyfcoding/ecommerce/internal/inventory/application"
	inventorymysql "github.com/wyfcoding/ecommerce/internal/inventory/infrastructure/persistence/mysql"
	inventoryhttp "github.com/wyfcoding/ecommerce/internal/inventory/interfaces/http"
	"github.com/wyfcoding/ecommerce/internal/notification"
	orderapp "github.com/wyfcoding/ecommerce/internal/order/application"
	ordermysql "github.com/wyfcoding/ecommerce/internal/order/infrastructure/persistence/mysql"
	orderhttp "github.com/wyfcoding/ecommerce/internal/order/interfaces/http"
	paymentapp "github.com/wyfcoding/ecommerce/internal/payment/application"
	paymentmysql "github.com/wyfcoding/ecommerce/internal/payment/infrastructure/persistence/mysql"
	paymentstripe "github.com/wyfcoding/ecommerce/internal/payment/infrastructure/stripe"
	paymenthttp "github.com/wyfcoding/ecommerce/internal/payment/interfaces/http"
	"github.com/wyfcoding/ecommerce/internal/shipping"
	"github.com/wyfcoding/ecommerce/pkg/cache"
	"github.com/wyfcoding/ecommerce/pkg/config"
	"github.com/wyfcoding/ecommerce/pkg/db"
	"github.com/wyfcoding/ecommerce/pkg/logger"
	"github.com/wyfcoding/ecommerce/pkg/metrics"
	"github.com/wyfcoding/ecommerce/pkg/middleware"
	"github.com/wyfcoding/ecommerce/pkg/mq"
	"github.com/wyfcoding/ecommerce/pkg/ratelimit"
	"github.com/wyfcoding/ecommerce/pkg/trace"
	"github.com/wyfcoding/ecommerce/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/order/config.toml", "配置文件路径")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	loggerCfg := logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}
	if err := logger.Init(loggerCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	logger.Info(ctx, "Starting OrderService",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	// 3. 初始化追踪
	if cfg.Tracing.Enabled {
		shutdown, err := trace.InitTracer(cfg.ServiceName, cfg.Tracing.CollectorEndpoint, cfg.Tracing.SamplingRate)
		if err != nil {
			logger.Error(ctx, "Failed to initialize tracer", "error", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error(ctx, "Failed to shutdown tracer", "error", err)
				}
			}()
			logger.Info(ctx, "Tracer initialized", "endpoint", cfg.Tracing.CollectorEndpoint)
		}
	}

	// 4. 初始化数据库（启动期数据库可能尚未就绪，带退避重试）
	dbCfg := db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	}
	var database *db.DB
	err = utils.RetryWithBackoff(5, time.Second, 30*time.Second, func() error {
		var initErr error
		database, initErr = db.Init(dbCfg)
		return initErr
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize database", "error", err)
	}
	defer database.Close()

	// 5. 初始化 Redis
	redisCfg := cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}
	redisCache, err := cache.New(redisCfg)
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize Redis", "error", err)
	}
	defer redisCache.Close()

	// 6. 初始化限流器
	rateLimiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())

	// 7. 初始化 Kafka 通知
	var notifier notification.Notifier = notification.NopNotifier{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			logger.Fatal(ctx, "Failed to initialize Kafka producer", "error", err)
		}
		defer producer.Close()
		notifier = notification.NewKafkaNotifier(producer, cfg.Kafka.NotificationTopic)
	}

	// 8. 初始化指标
	metricsInstance := metrics.New(cfg.ServiceName)
	if err := metricsInstance.Register(); err != nil {
		logger.Fatal(ctx, "Failed to register metrics", "error", err)
	}
	if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
		logger.Fatal(ctx, "Failed to start metrics HTTP server", "error", err)
	}

	// 9. 初始化仓储
	gormDB := database.DB
	productRepo := catalogmysql.NewProductRepository(gormDB)
	idgen := utils.NewSnowflakeID(1)
	ledger := inventorymysql.NewLedgerRepository(gormDB, idgen)
	txnRepo := inventorymysql.NewTransactionRepository(gormDB)
	cartRepo := cartmysql.NewCartRepository(gormDB)
	orderRepo := ordermysql.NewOrderRepository(gormDB)
	eventRepo := paymentmysql.NewEventRepository(gormDB)

	// 10. 初始化应用服务
	pricing := orderapp.NewStandardPricing(cfg.Pricing)
	cartService := cartapp.NewCartService(cartRepo, productRepo)
	inventoryService := inventoryapp.NewInventoryService(ledger, txnRepo, productRepo)
	queryService := orderapp.NewQueryService(orderRepo, redisCache)
	commandService := orderapp.NewCommandService(orderRepo, ledger, database, notifier, idgen, metricsInstance, queryService)
	checkoutService := orderapp.NewCheckoutService(orderRepo, cartRepo, productRepo, ledger, pricing, database, idgen, metricsInstance)

	provider := paymentstripe.New(cfg.Payment.StripeSecretKey, cfg.Payment.StripeWebhookSecret)
	gateway := paymentapp.NewGateway(eventRepo, orderRepo, commandService, provider, notifier, database, metricsInstance)

	// 11. 启动发货推进器
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	worker := shipping.NewWorker(orderRepo, commandService, cfg.Shipping)
	go worker.Run(workerCtx)

	// 12. 创建并启动 HTTP 服务器
	httpServer := createHTTPServer(cfg, rateLimiter,
		orderhttp.NewOrderHandler(checkoutService, commandService, queryService),
		carthttp.NewCartHandler(cartService),
		paymenthttp.NewPaymentHandler(gateway),
		inventoryhttp.NewInventoryHandler(inventoryService),
	)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		logger.Info(ctx, "Starting HTTP server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "HTTP server error", "error", err)
		}
	}()

	// 13. 优雅关停
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info(ctx, "Shutting down OrderService")
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP server shutdown error", "error", err)
	}

	logger.Info(ctx, "OrderService stopped")
}

// createHTTPServer 创建 HTTP 服务器
func createHTTPServer(cfg *config.Config, rateLimiter ratelimit.RateLimiter, handlers ...interface {
	RegisterRoutes(*gin.Engine)
}) *http.Server {
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.GinLoggingMiddleware())
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinCORSMiddleware())
	router.Use(middleware.RateLimitMiddleware(rateLimiter, cfg.RateLimit))

	for _, h := range handlers {
		h.RegisterRoutes(router)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   cfg.ServiceName,
			"timestamp": time.Now().Unix(),
		})
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
}
