package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/langchou/tronity-connector/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pollTimeout time.Duration

// vehiclesCmd 执行一次轮询并输出车辆
var vehiclesCmd = &cobra.Command{
	Use:   "vehicles",
	Short: "Poll Tronity once and print the mapped vehicles as JSON",
	RunE:  runVehicles,
}

func init() {
	vehiclesCmd.Flags().DurationVar(&pollTimeout, "timeout", 2*time.Minute, "Timeout for the poll")
}

func runVehicles(cmd *cobra.Command, args []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, pollTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	connector, err := a.newConnector()
	if err != nil {
		return err
	}

	if err := connector.PollOnce(ctx); err != nil {
		return fmt.Errorf("poll: %w", err)
	}

	// Shutdown 会释放车辆，先取快照
	vehicles := connector.Vehicles()
	if vehicles == nil {
		vehicles = []*models.Vehicle{}
	}
	if err := connector.Shutdown(ctx); err != nil {
		a.logger.Warn("Failed to persist token", zap.Error(err))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(vehicles)
}
