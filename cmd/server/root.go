package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/langchou/tronity-connector/internal/api/handlers"
	"github.com/langchou/tronity-connector/internal/api/tronity"
	"github.com/langchou/tronity-connector/internal/config"
	"github.com/langchou/tronity-connector/internal/garage"
	"github.com/langchou/tronity-connector/internal/repository"
	"github.com/langchou/tronity-connector/internal/service"
	"github.com/langchou/tronity-connector/pkg/ws"
)

var cfgFile string

// rootCmd 默认运行连接器和 HTTP 服务
var rootCmd = &cobra.Command{
	Use:          "tronity-connector",
	Short:        "Tronity vehicle telemetry connector",
	Version:      service.Version,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile,
		"config", "c",
		"",
		"Connector config file (default $CONFIG_FILE or \"tronity.json\")",
	)
	rootCmd.AddCommand(vehiclesCmd)
}

// Execute 执行命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app 运行期依赖
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiLogger *zap.Logger
	db        *repository.DB
	store     tronity.TokenStore
	records   *repository.VehicleRepository
	registry  *garage.Registry
	garage    *garage.Garage
}

// newApp 加载配置，初始化日志和存储
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logLevel, _ := config.ParseLevel(cfg.Connector.LogLevel)
	apiLevel, _ := config.ParseLevel(cfg.Connector.APILogLevel)

	// 初始化日志
	a := &app{
		cfg:       cfg,
		logger:    initLogger(cfg.Debug, logLevel),
		apiLogger: initLogger(cfg.Debug, apiLevel).Named("api"),
		registry:  garage.NewRegistry(),
		garage:    garage.New(),
	}
	a.logger.Info("Loaded config", zap.Any("connector", cfg.Connector.Redacted()))

	// 有数据库时保存车辆和令牌，否则令牌保存到文件
	if cfg.DatabaseURL == "" {
		a.store = repository.NewFileTokenStore(cfg.TokenFile)
		return a, nil
	}

	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	a.logger.Info("Database migrated successfully")

	a.db = db
	a.store = repository.NewTokenRepository(db)
	a.records = repository.NewVehicleRepository(db)
	return a, nil
}

// newConnector 创建连接器
func (a *app) newConnector(opts ...service.Option) (*service.Connector, error) {
	opts = append([]service.Option{
		service.WithTokenStore(a.store),
		service.WithAPILogger(a.apiLogger),
	}, opts...)
	if a.records != nil {
		opts = append(opts, service.WithRecorder(a.records))
	}

	return service.NewConnector(a.cfg.Connector, a.registry, a.garage, a.logger, opts...)
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}

// runServer 运行连接器和 HTTP 服务直到收到退出信号
func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	logger := a.logger
	logger.Info("Starting Tronity connector", zap.String("version", service.Version), zap.String("port", a.cfg.ServerPort))

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run(ctx)

	connector, err := a.newConnector(service.WithBroadcaster(wsHub))
	if err != nil {
		return err
	}

	wsHub.SetInitDataProvider(func() *ws.InitData {
		return &ws.InitData{
			Vehicles: a.garage.List(),
			Health:   a.registry.Healths(),
		}
	})

	if err := connector.Start(ctx); err != nil {
		return fmt.Errorf("start connector: %w", err)
	}

	// 设置 Gin 模式
	if !a.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	var records handlers.RecordLister
	if a.records != nil {
		records = a.records
	}
	handlers.NewHandler(logger, connector, a.registry, records, wsHub).RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + a.cfg.ServerPort,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	select {
	case <-ctx.Done():
	case err = <-errCh:
		logger.Error("Server failed", zap.Error(err))
	}

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if serr := connector.Shutdown(shutdownCtx); serr != nil {
		logger.Error("Failed to shut down connector", zap.Error(serr))
	}
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.Error("Server forced to shutdown", zap.Error(serr))
	}

	logger.Info("Server exited")
	return err
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
