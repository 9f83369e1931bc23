package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/langchou/tronity-connector/internal/api/tronity"
)

// 命令错误
var (
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrNoTronityID     = errors.New("vehicle does not have a tronity id")
)

// SendChargingCommand 开始或停止充电
func (c *Connector) SendChargingCommand(ctx context.Context, vin string, command tronity.ChargingCommand) error {
	v, ok := c.Vehicle(vin)
	if !ok {
		return fmt.Errorf("%s: %w", vin, ErrVehicleNotFound)
	}

	tronityID, ok := v.TronityID.Get()
	if !ok {
		return fmt.Errorf("%s: %w", vin, ErrNoTronityID)
	}

	c.logger.Info("Sending charging command", zap.String("vin", vin), zap.String("command", string(command)))

	if err := c.client.Charging(ctx, tronityID, command); err != nil {
		return fmt.Errorf("charging %s: %w", command, err)
	}
	return nil
}
