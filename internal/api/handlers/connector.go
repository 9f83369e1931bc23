package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/tronity-connector/internal/config"
)

// GetConnector 获取连接器信息和健康状态
func (h *Handler) GetConnector(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"id":      h.connector.ID(),
			"name":    h.connector.Name(),
			"type":    h.connector.Type(),
			"version": h.connector.Version(),
			"config":  h.connector.Config(),
			"health":  h.connector.Health(),
		},
	})
}

// ListConnectors 获取宿主注册的所有连接器
func (h *Handler) ListConnectors(c *gin.Context) {
	connectors := h.registry.Connectors()

	data := make([]gin.H, 0, len(connectors))
	for _, conn := range connectors {
		data = append(data, gin.H{
			"id":      conn.ID(),
			"name":    conn.Name(),
			"type":    conn.Type(),
			"version": conn.Version(),
			"health":  conn.Health(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

type intervalRequest struct {
	Interval int `json:"interval" binding:"required"`
}

// SetInterval 修改轮询间隔
func (h *Handler) SetInterval(c *gin.Context) {
	var req intervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.connector.SetInterval(req.Interval); err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to set interval", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set interval"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": h.connector.Health()})
}
