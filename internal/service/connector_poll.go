package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/langchou/tronity-connector/internal/api/tronity"
	"github.com/langchou/tronity-connector/internal/garage"
	"github.com/langchou/tronity-connector/internal/mapper"
	"github.com/langchou/tronity-connector/internal/metrics"
	"github.com/langchou/tronity-connector/internal/state"
)

// PollOnce 执行一次完整轮询
// 只有全部请求成功时才提交到车库，失败时车辆状态保持不变，下一轮按正常间隔重试
func (c *Connector) PollOnce(ctx context.Context) error {
	start := c.clock.Now()

	updates, err := c.fetchAll(ctx)
	if err != nil {
		metrics.ObservePoll(c.cfg.ID, "error", c.clock.Since(start))
		if c.handlePollError(err) && c.broadcaster != nil {
			c.broadcaster.BroadcastError(c.cfg.ID, err.Error())
		}
		c.publish(nil, nil)
		return err
	}

	now := c.clock.Now()
	changed, removed := c.garage.Commit(c.cfg.ID, updates, now)
	if len(removed) > 0 {
		c.logger.Info("Removed vehicles no longer listed", zap.Strings("vins", removed))
	}

	if c.recorder != nil {
		if err := c.recorder.SaveVehicles(ctx, c.cfg.ID, changed); err != nil {
			c.logger.Error("Failed to save vehicles", zap.Error(err))
		}
		if len(removed) > 0 {
			if err := c.recorder.DeleteVehicles(ctx, removed); err != nil {
				c.logger.Error("Failed to delete vehicles", zap.Error(err))
			}
		}
	}

	c.mu.Lock()
	c.lastUpdate = &now
	c.lastError = ""
	c.healthy = true
	c.mu.Unlock()

	if err := c.machine.Trigger(state.EventConnect); err != nil {
		c.logger.Warn("Failed to update connection state", zap.Error(err))
	}

	metrics.SetHealthy(c.cfg.ID, true)
	metrics.ObserveVehicles(c.cfg.ID, len(changed))
	metrics.ObservePoll(c.cfg.ID, "ok", c.clock.Since(start))

	c.logger.Debug("Poll completed", zap.Int("vehicles", len(changed)), zap.Duration("elapsed", c.clock.Since(start)))
	c.publish(changed, removed)
	return nil
}

// fetchAll 获取车辆列表和每辆车的最新记录，暂存为更新
func (c *Connector) fetchAll(ctx context.Context) ([]garage.Update, error) {
	docs, err := c.client.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}

	updates := make([]garage.Update, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		now := c.clock.Now()
		info, result, err := mapper.MapVehicle(doc, now)
		c.logMapping("vehicles", info.VIN, result)
		if err != nil {
			c.logger.Error("Skipping vehicle", zap.Error(&mapper.MappingError{Document: "vehicles", Field: "vin", Err: err}))
			metrics.ObserveMappingError(c.cfg.ID, "vehicles")
			continue
		}

		update := garage.Update{Info: info}

		tronityID, ok := info.TronityID.Get()
		if !ok {
			c.logger.Warn("Vehicle does not have a tronity id, skipping telemetry", zap.String("vin", info.VIN))
			updates = append(updates, update)
			continue
		}

		record, err := c.client.GetLastRecord(ctx, tronityID)
		if err != nil {
			return nil, err
		}

		telemetry, result := mapper.MapLastRecord(record, c.clock.Now())
		c.logMapping("last_record", info.VIN, result)
		update.Telemetry = &telemetry

		updates = append(updates, update)
	}

	return updates, nil
}

// logMapping 记录映射诊断信息
func (c *Connector) logMapping(document, vin string, result *mapper.Result) {
	if result == nil {
		return
	}
	for _, err := range result.Errors {
		c.apiLogger.Warn("Unexpected field in Tronity response", zap.String("vin", vin), zap.Error(err))
		metrics.ObserveMappingError(c.cfg.ID, document)
	}
	for _, v := range result.Unknown {
		c.apiLogger.Warn("Unknown value in Tronity response", zap.String("document", document), zap.String("vin", vin), zap.String("value", v))
	}
	if len(result.ExtraKeys) > 0 {
		c.apiLogger.Debug("Unused keys in Tronity response", zap.String("document", document), zap.String("vin", vin), zap.Strings("keys", result.ExtraKeys))
	}
}

// handlePollError 将轮询错误转换为连接器健康状态，返回是否需要上报
func (c *Connector) handlePollError(err error) bool {
	interval := c.PollInterval()
	healthy := true

	var authErr *tronity.AuthError
	var apiErr *tronity.APIError
	switch {
	case errors.Is(err, context.Canceled):
		c.logger.Debug("Poll cancelled")
		return false
	case tronity.IsRateLimited(err):
		c.logger.Error("Too many requests from your account, will try again after configured interval",
			zap.Duration("interval", interval), zap.Error(err))
	case errors.As(err, &authErr) && authErr.Temporary:
		c.logger.Error("Temporary authentication error during update, will try again after configured interval",
			zap.Duration("interval", interval), zap.Error(err))
	case errors.As(err, &authErr):
		c.logger.Error("Authentication failed, check client_id and client_secret", zap.Error(err))
		healthy = false
	case errors.As(err, &apiErr):
		c.logger.Error("Retrieval error during update, will try again after configured interval",
			zap.Duration("interval", interval), zap.Error(err))
	default:
		c.logger.Error("Critical error during update", zap.Error(err))
		healthy = false
	}

	c.mu.Lock()
	c.lastError = err.Error()
	c.healthy = healthy
	c.mu.Unlock()

	if terr := c.machine.Trigger(state.EventFail); terr != nil {
		c.logger.Warn("Failed to update connection state", zap.Error(terr))
	}
	metrics.SetHealthy(c.cfg.ID, healthy)
	return true
}
