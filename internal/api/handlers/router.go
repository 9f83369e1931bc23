package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/langchou/tronity-connector/internal/api/tronity"
	"github.com/langchou/tronity-connector/internal/config"
	"github.com/langchou/tronity-connector/internal/garage"
	"github.com/langchou/tronity-connector/internal/models"
	"github.com/langchou/tronity-connector/internal/repository"
	"github.com/langchou/tronity-connector/pkg/ws"
)

// ConnectorService 处理器需要的连接器操作
type ConnectorService interface {
	ID() string
	Name() string
	Type() string
	Version() string
	Health() models.Health
	Config() config.ConnectorConfig
	SetInterval(seconds int) error
	Vehicles() []*models.Vehicle
	Vehicle(vin string) (*models.Vehicle, bool)
	SendChargingCommand(ctx context.Context, vin string, command tronity.ChargingCommand) error
}

// ConnectorRegistry 宿主的连接器注册表
type ConnectorRegistry interface {
	Connectors() []garage.Connector
	Healths() []models.Health
}

// RecordLister 历史记录查询 (未配置数据库时为 nil)
type RecordLister interface {
	ListRecords(ctx context.Context, vin string, limit int) ([]*repository.Record, error)
}

// Handler HTTP 处理器
type Handler struct {
	logger    *zap.Logger
	connector ConnectorService
	registry  ConnectorRegistry
	records   RecordLister
	wsHub     *ws.Hub
	upgrader  websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(logger *zap.Logger, connector ConnectorService, registry ConnectorRegistry, records RecordLister, wsHub *ws.Hub) *Handler {
	return &Handler{
		logger:    logger,
		connector: connector,
		registry:  registry,
		records:   records,
		wsHub:     wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 连接器
		api.GET("/connectors", h.ListConnectors)
		api.GET("/connector", h.GetConnector)
		api.PUT("/connector/interval", h.SetInterval)

		// 车辆
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/vehicles/:vin", h.GetVehicle)
		api.GET("/vehicles/:vin/records", h.ListRecords)
		api.POST("/vehicles/:vin/charging", h.Charging)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 指标
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查，没有注册的连接器或任一连接器不健康时返回 503
func (h *Handler) HealthCheck(c *gin.Context) {
	healths := h.registry.Healths()

	status, code := "ok", http.StatusOK
	if len(healths) == 0 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	for _, health := range healths {
		if !health.Healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":     status,
		"connectors": healths,
		"ws_clients": h.wsHub.ClientCount(),
	})
}
