package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"moysklad_sync/internal/config"
	"moysklad_sync/internal/controller"
	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/middleware"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/queue"
	"moysklad_sync/internal/repository"
	"moysklad_sync/internal/router"
	"moysklad_sync/internal/service"
	"moysklad_sync/internal/task"
	"moysklad_sync/pkg/database"
	"moysklad_sync/pkg/moysklad"
	"moysklad_sync/pkg/net"
)

// @title MoySklad Sync API
// @version 1.0
// @description Admin API of the MoySklad storefront synchronization service.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	issueToken := flag.String("issue-token", "", "print an admin access token for this username and exit")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	middleware.SetJWTConfig(&middleware.JWTConfig{
		SecretKey:      cfg.Server.JWTSecret,
		AccessTokenTTL: 12 * time.Hour,
		Issuer:         "moysklad-sync",
	})
	if *issueToken != "" {
		token, err := middleware.GenerateAccessToken(*issueToken, middleware.RoleAdmin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	// 2. 初始化日志
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 3. 初始化数据库
	db := initDatabase(cfg)

	if err := logger.AttachDB(repository.NewSyncLogRepository(db), cfg.Logging.DBLevel); err != nil {
		logger.Log.Fatal("[Main] attach db logger failed", zap.Error(err))
	}

	// 4. 初始化依赖
	deps := initDependencies(db, cfg)

	// 5. 启动定时任务与队列
	if err := deps.Tasks.Start(); err != nil {
		logger.Log.Fatal("[Main] start tasks failed", zap.Error(err))
	}
	ctx, cancel := context.WithCancel(context.Background())
	startConsumer(ctx, deps)

	// 6. 初始化路由并启动服务
	startServer(cfg, deps)

	cancel()
	deps.Tasks.Stop()
	deps.close()
	logger.Log.Info("[Main] stopped")
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Client      *moysklad.Client
	Transports  *net.TransportPool
	Repos       *Repositories
	Services    *Services
	Tasks       *task.TaskManager
	Publisher   *queue.Publisher
	Consumer    *queue.Consumer
	Controllers *router.Controllers
}

// Repositories 仓库集合
type Repositories struct {
	Product  repository.ProductRepository
	Category repository.CategoryRepository
	Mapping  repository.MappingRepository
	Order    repository.OrderRepository
	Customer repository.CustomerRepository
	Option   repository.OptionRepository
	SyncLog  repository.SyncLogRepository
}

// Services 服务集合
type Services struct {
	Sessions  *service.SessionManager
	Category  *service.CategoryService
	Catalog   *service.CatalogService
	Inventory *service.InventoryService
	Order     *service.OrderService
	Customer  *service.CustomerService
	Bonus     *service.BonusService
	Webhook   *service.WebhookService
	Reference *service.ReferenceService
}

func (d *Dependencies) close() {
	if d.Publisher != nil {
		_ = d.Publisher.Close()
	}
	if d.Consumer != nil {
		_ = d.Consumer.Close()
	}
	d.Transports.CloseIdle()
	if sqlDB, err := d.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// ==================== 初始化函数 ====================

// initDatabase 连接数据库并迁移
func initDatabase(cfg *config.Config) *gorm.DB {
	db, err := database.Open(database.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxIdleConns: cfg.Database.MaxIdle,
		MaxOpenConns: cfg.Database.MaxOpen,
		LogLevel:     cfg.Database.LogLevel,
	}, logger.Log)
	if err != nil {
		logger.Log.Fatal("[Main] database open failed", zap.Error(err))
	}
	if err := database.Migrate(context.Background(), db, model.All(), model.Migrations(), logger.Log); err != nil {
		logger.Log.Fatal("[Main] database migration failed", zap.Error(err))
	}
	return db
}

// initDependencies 初始化所有依赖
func initDependencies(db *gorm.DB, cfg *config.Config) *Dependencies {
	// -------- Repo 层 --------
	repos := initRepositories(db)

	// -------- MoySklad 客户端 --------
	transports := net.NewTransportPool()
	client := initClient(cfg, transports)

	// -------- 业务服务 --------
	services := initServices(cfg, client, repos)

	// -------- 定时任务 --------
	tasks := task.NewTaskManager(&task.TaskManagerDeps{
		Catalog:   services.Catalog,
		Inventory: services.Inventory,
		Orders:    services.Order,
		Logs:      repos.SyncLog,
	}, cfg)

	deps := &Dependencies{
		DB:         db,
		Client:     client,
		Transports: transports,
		Repos:      repos,
		Services:   services,
		Tasks:      tasks,
	}

	// -------- 回调队列 --------
	if cfg.Webhook.Async {
		deps.Publisher = queue.NewPublisher(cfg.Kafka)
		deps.Consumer = queue.NewConsumer(cfg.Kafka, services.Webhook)
	}

	// -------- Controller 层 --------
	deps.Controllers = initControllers(deps)
	return deps
}

// initRepositories 初始化所有仓库
func initRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Product:  repository.NewProductRepository(db),
		Category: repository.NewCategoryRepository(db),
		Mapping:  repository.NewMappingRepository(db),
		Order:    repository.NewOrderRepository(db),
		Customer: repository.NewCustomerRepository(db),
		Option:   repository.NewOptionRepository(db),
		SyncLog:  repository.NewSyncLogRepository(db),
	}
}

// initClient builds the remote client on the pooled transport.
func initClient(cfg *config.Config, transports *net.TransportPool) *moysklad.Client {
	proxyURL, err := net.ParseProxy(cfg.MoySklad.ProxyURL)
	if err != nil {
		logger.Log.Fatal("[Main] invalid proxy url", zap.Error(err))
	}

	guard := func(name string, interval time.Duration) *moysklad.RateGuard {
		gc := moysklad.DefaultGuardConfig(name, interval)
		gc.ResetAfter = cfg.MoySklad.RateLimitReset
		return moysklad.NewRateGuard(gc)
	}

	return moysklad.NewClient(moysklad.Config{
		BaseURL:    cfg.MoySklad.BaseURL,
		Token:      cfg.MoySklad.Token,
		Login:      cfg.MoySklad.Login,
		Password:   cfg.MoySklad.Password,
		Timeout:    cfg.MoySklad.Timeout,
		HTTPClient: transports.Client(proxyURL, cfg.MoySklad.Timeout),
		Logger:     logger.Named("moysklad"),
	},
		moysklad.WithStockGuard(guard("stock_batch", 2*time.Second)),
		moysklad.WithSingleStockGuard(guard("stock_single", time.Second)),
		moysklad.WithGroupGuard(guard("groups", time.Second)),
	)
}

// initServices 初始化业务服务
func initServices(cfg *config.Config, client *moysklad.Client, repos *Repositories) *Services {
	storage, err := service.NewStorageProvider(cfg.Storage)
	if err != nil {
		// images keep their remote URLs
		logger.Log.Warn("[Main] storage init failed, image mirroring disabled", zap.Error(err))
		storage = nil
	}

	sessions := service.NewSessionManager()
	images := service.NewImageService(client, repos.Product, storage)
	category := service.NewCategoryService(client, repos.Category, repos.Option, sessions, cfg.Catalog)
	catalog := service.NewCatalogService(client, repos.Product, repos.Mapping, repos.Option, category, images, sessions, cfg.Catalog)
	inventory := service.NewInventoryService(client, repos.Product, repos.Mapping, repos.Option, sessions, cfg.Inventory)
	bonus := service.NewBonusService(client, repos.Customer, repos.Option, cfg.Bonus)
	order := service.NewOrderService(client, repos.Order, repos.Product, repos.Mapping, bonus, sessions, cfg.Order)

	return &Services{
		Sessions:  sessions,
		Category:  category,
		Catalog:   catalog,
		Inventory: inventory,
		Order:     order,
		Customer:  service.NewCustomerService(client, repos.Customer, repos.Mapping, repos.Option, cfg.Customer),
		Bonus:     bonus,
		Webhook:   service.NewWebhookService(client, catalog, inventory, order, repos.Mapping, repos.Option, cfg.Webhook),
		Reference: service.NewReferenceService(client, service.DefaultReferenceTTL),
	}
}

// initControllers 初始化所有控制器
func initControllers(deps *Dependencies) *router.Controllers {
	svc := deps.Services

	webhookCtl := controller.NewWebhookController(svc.Webhook)
	if deps.Publisher != nil {
		webhookCtl.SetPublisher(deps.Publisher)
	}

	return &router.Controllers{
		Sync: controller.NewSyncController(controller.SyncControllerDeps{
			Catalog:    svc.Catalog,
			Categories: svc.Category,
			Inventory:  svc.Inventory,
			Orders:     svc.Order,
			Sessions:   svc.Sessions,
			Connection: svc.Reference,
			Limits:     deps.Client,
			Tasks:      deps.Tasks,
			Options:    deps.Repos.Option,
		}),
		Webhook:   webhookCtl,
		Order:     controller.NewOrderController(svc.Order),
		Customer:  controller.NewCustomerController(svc.Customer),
		Bonus:     controller.NewBonusController(svc.Bonus),
		Reference: controller.NewReferenceController(svc.Reference),
		Log:       controller.NewLogController(deps.Repos.SyncLog),
	}
}

// ==================== 队列消费 ====================

func startConsumer(ctx context.Context, deps *Dependencies) {
	if deps.Consumer == nil {
		return
	}
	go func() {
		if err := deps.Consumer.Run(ctx); err != nil {
			logger.Log.Error("[Main] webhook consumer stopped", zap.Error(err))
		}
	}()
	logger.Log.Info("[Main] webhook consumer started")
}

// ==================== 服务启动 ====================

// startServer serves until SIGINT/SIGTERM, then shuts down gracefully.
func startServer(cfg *config.Config, deps *Dependencies) {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	router.InitRoutes(r, deps.Controllers, router.Options{
		VerifyWebhookSecret: deps.Services.Webhook.VerifySecret,
		SyncCooldown:        cfg.Server.SyncCooldown,
	})

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CorsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.WebhookSecretHeader},
		AllowCredentials: true,
	}).Handler(r)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 异步启动服务
	go func() {
		logger.Log.Info("[Main] server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("[Main] server failed", zap.Error(err))
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("[Main] shutting down")
	// running passes stop at their next checkpoint
	deps.Services.Sessions.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("[Main] forced shutdown", zap.Error(err))
	}
}
