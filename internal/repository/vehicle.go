package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/tronity-connector/internal/models"
)

// VehicleRepository 车辆数据仓库
type VehicleRepository struct {
	db *DB
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// SaveVehicles 在一个事务中保存车辆及其最新记录
func (r *VehicleRepository) SaveVehicles(ctx context.Context, connectorID string, vehicles []*models.Vehicle) error {
	if len(vehicles) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, v := range vehicles {
		if err := r.upsert(ctx, tx, connectorID, v); err != nil {
			return err
		}
		if !shouldRecord(v) {
			continue
		}
		if err := r.insertRecord(ctx, tx, v); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// upsert 插入或更新车辆
func (r *VehicleRepository) upsert(ctx context.Context, tx pgx.Tx, connectorID string, v *models.Vehicle) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode vehicle %s: %w", v.VIN, err)
	}

	query := `
		INSERT INTO vehicles (vin, connector_id, tronity_id, name, model, manufacturer, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (vin) DO UPDATE SET
			connector_id = EXCLUDED.connector_id,
			tronity_id = EXCLUDED.tronity_id,
			name = EXCLUDED.name,
			model = EXCLUDED.model,
			manufacturer = EXCLUDED.manufacturer,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`
	_, err = tx.Exec(ctx, query,
		v.VIN,
		connectorID,
		nullable(v.TronityID),
		nullable(v.Name),
		nullable(v.Model),
		nullable(v.Manufacturer),
		data,
		v.CreatedAt,
		v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert vehicle %s: %w", v.VIN, err)
	}
	return nil
}

// insertRecord 记录遥测，同一测量时间只记录一次
func (r *VehicleRepository) insertRecord(ctx context.Context, tx pgx.Tx, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicle_records (vin, odometer, range_km, level, charging_state, plug_state, charging_power,
			latitude, longitude, measured_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (vin, measured_at) DO NOTHING
	`
	_, err := tx.Exec(ctx, query,
		v.VIN,
		nullable(v.Odometer),
		nullable(v.Range),
		nullable(v.Level),
		nullable(v.ChargingState),
		nullable(v.PlugState),
		nullable(v.ChargingPower),
		nullable(v.Latitude),
		nullable(v.Longitude),
		measuredAt(v),
		v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", v.VIN, err)
	}
	return nil
}

// DeleteVehicles 删除车辆及其记录
func (r *VehicleRepository) DeleteVehicles(ctx context.Context, vins []string) error {
	if len(vins) == 0 {
		return nil
	}
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM vehicles WHERE vin = ANY($1)`, vins); err != nil {
		return fmt.Errorf("delete vehicles: %w", err)
	}
	return nil
}

// LoadVehicles 获取某连接器保存的所有车辆
func (r *VehicleRepository) LoadVehicles(ctx context.Context, connectorID string) ([]*models.Vehicle, error) {
	query := `SELECT data FROM vehicles WHERE connector_id = $1 ORDER BY vin`
	rows, err := r.db.Pool.Query(ctx, query, connectorID)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		v := &models.Vehicle{}
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("decode vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}

	return vehicles, nil
}

// Record 一条历史遥测
type Record struct {
	ID            int64      `json:"id"`
	VIN           string     `json:"vin"`
	Odometer      *float64   `json:"odometer,omitempty"`
	Range         *float64   `json:"range,omitempty"`
	Level         *float64   `json:"level,omitempty"`
	ChargingState *string    `json:"charging_state,omitempty"`
	PlugState     *string    `json:"plug_state,omitempty"`
	ChargingPower *float64   `json:"charging_power,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	MeasuredAt    *time.Time `json:"measured_at,omitempty"`
	RecordedAt    time.Time  `json:"recorded_at"`
}

// ListRecords 获取车辆最近的遥测记录
func (r *VehicleRepository) ListRecords(ctx context.Context, vin string, limit int) ([]*Record, error) {
	query := `
		SELECT id, vin, odometer, range_km, level, charging_state, plug_state, charging_power,
			latitude, longitude, measured_at, recorded_at
		FROM vehicle_records WHERE vin = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, vin, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		err := rows.Scan(
			&rec.ID,
			&rec.VIN,
			&rec.Odometer,
			&rec.Range,
			&rec.Level,
			&rec.ChargingState,
			&rec.PlugState,
			&rec.ChargingPower,
			&rec.Latitude,
			&rec.Longitude,
			&rec.MeasuredAt,
			&rec.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// nullable 不可用属性写入 NULL
func nullable[T any](a models.Attribute[T]) *T {
	if !a.Available {
		return nil
	}
	v := a.Value
	return &v
}

// hasTelemetry 是否有任一遥测属性可用
func hasTelemetry(v *models.Vehicle) bool {
	return v.Odometer.Available || v.Range.Available || v.Level.Available ||
		v.ChargingState.Available || v.PlugState.Available || v.ChargingPower.Available ||
		v.Latitude.Available || v.Longitude.Available
}

// shouldRecord 有遥测且有测量时间时才写入历史
// 没有测量时间的记录无法去重
func shouldRecord(v *models.Vehicle) bool {
	return hasTelemetry(v) && measuredAt(v) != nil
}

// measuredAt 遥测测量时间
func measuredAt(v *models.Vehicle) *time.Time {
	for _, m := range []*time.Time{v.Odometer.Measured, v.Level.Measured, v.Range.Measured, v.Latitude.Measured} {
		if m != nil {
			return m
		}
	}
	return nil
}
