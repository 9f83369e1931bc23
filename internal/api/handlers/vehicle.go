package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/tronity-connector/internal/api/tronity"
	"github.com/langchou/tronity-connector/internal/models"
	"github.com/langchou/tronity-connector/internal/service"
)

// ListVehicles 获取车辆列表
func (h *Handler) ListVehicles(c *gin.Context) {
	vehicles := h.connector.Vehicles()
	if vehicles == nil {
		vehicles = []*models.Vehicle{}
	}
	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// GetVehicle 获取车辆详情
func (h *Handler) GetVehicle(c *gin.Context) {
	v, ok := h.connector.Vehicle(c.Param("vin"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": v})
}

// ListRecords 获取车辆历史遥测
func (h *Handler) ListRecords(c *gin.Context) {
	if h.records == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Persistence is not configured"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	records, err := h.records.ListRecords(c.Request.Context(), c.Param("vin"), limit)
	if err != nil {
		h.logger.Error("Failed to list records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

type chargingRequest struct {
	Command string `json:"command" binding:"required,oneof=start stop"`
}

// Charging 开始或停止充电
func (h *Handler) Charging(c *gin.Context) {
	var req chargingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command must be start or stop"})
		return
	}

	vin := c.Param("vin")
	err := h.connector.SendChargingCommand(c.Request.Context(), vin, tronity.ChargingCommand(req.Command))
	if err != nil {
		code := commandStatus(err)
		if code >= http.StatusInternalServerError {
			h.logger.Error("Charging command failed", zap.String("vin", vin), zap.Error(err))
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"vin": vin, "command": req.Command}})
}

// commandStatus 命令错误对应的 HTTP 状态码
func commandStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrVehicleNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoTronityID), errors.Is(err, tronity.ErrVehicleUnreachable):
		return http.StatusConflict
	case errors.Is(err, tronity.ErrNotSupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tronity.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
