package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateVehicles,
		migrationCreateVehicleRecords,
		migrationCreateTokens,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateVehicles = `
CREATE TABLE IF NOT EXISTS vehicles (
    vin VARCHAR(32) PRIMARY KEY,
    connector_id VARCHAR(64) NOT NULL,
    tronity_id VARCHAR(64),
    name VARCHAR(255),
    model VARCHAR(100),
    manufacturer VARCHAR(100),
    data JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_vehicles_connector_id ON vehicles(connector_id);
`

const migrationCreateVehicleRecords = `
CREATE TABLE IF NOT EXISTS vehicle_records (
    id BIGSERIAL PRIMARY KEY,
    vin VARCHAR(32) NOT NULL REFERENCES vehicles(vin) ON DELETE CASCADE,
    odometer DOUBLE PRECISION,
    range_km DOUBLE PRECISION,
    level DOUBLE PRECISION,
    charging_state VARCHAR(20),
    plug_state VARCHAR(20),
    charging_power DOUBLE PRECISION,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    measured_at TIMESTAMP WITH TIME ZONE NOT NULL,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL,
    UNIQUE (vin, measured_at)
);
CREATE INDEX IF NOT EXISTS idx_vehicle_records_vin ON vehicle_records(vin);
CREATE INDEX IF NOT EXISTS idx_vehicle_records_recorded_at ON vehicle_records(recorded_at);
`

const migrationCreateTokens = `
CREATE TABLE IF NOT EXISTS tokens (
    id VARCHAR(255) PRIMARY KEY,
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL DEFAULT '',
    expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`
