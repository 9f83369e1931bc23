package models

import (
	"slices"
	"time"
)

// ChargingState 充电状态
type ChargingState string

const (
	ChargingOff     ChargingState = "off"
	ChargingActive  ChargingState = "charging"
	ChargingError   ChargingState = "error"
	ChargingUnknown ChargingState = "unknown"
)

// PlugState 充电插头连接状态
type PlugState string

const (
	PlugConnected    PlugState = "connected"
	PlugDisconnected PlugState = "disconnected"
)

// Vehicle 宿主侧车辆记录，以 VIN 为键
type Vehicle struct {
	VIN string `json:"vin"`

	// 基础信息 (来自车辆列表)
	TronityID    Attribute[string]            `json:"tronity_id"`
	Name         Attribute[string]            `json:"name"`
	Model        Attribute[string]            `json:"model"`
	Manufacturer Attribute[string]            `json:"manufacturer"`
	Images       Attribute[map[string]string] `json:"images"`

	// 遥测 (来自 last_record)
	Odometer           Attribute[float64]       `json:"odometer"` // km
	Range              Attribute[float64]       `json:"range"`    // km
	Level              Attribute[float64]       `json:"level"`    // %
	ChargingState      Attribute[ChargingState] `json:"charging_state"`
	PlugState          Attribute[PlugState]     `json:"plug_state"`
	ChargingPower      Attribute[float64]       `json:"charging_power"` // kW
	EstimatedChargeEnd Attribute[time.Time]     `json:"estimated_charge_end"`
	Latitude           Attribute[float64]       `json:"latitude"`
	Longitude          Attribute[float64]       `json:"longitude"`

	// 管理该车辆的连接器 ID
	Managers []string `json:"managers"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VehicleInfo 车辆列表条目映射结果
type VehicleInfo struct {
	VIN          string
	TronityID    Attribute[string]
	Name         Attribute[string]
	Model        Attribute[string]
	Manufacturer Attribute[string]
	Images       Attribute[map[string]string]
}

// Telemetry last_record 映射结果
type Telemetry struct {
	Odometer           Attribute[float64]
	Range              Attribute[float64]
	Level              Attribute[float64]
	ChargingState      Attribute[ChargingState]
	PlugState          Attribute[PlugState]
	ChargingPower      Attribute[float64]
	EstimatedChargeEnd Attribute[time.Time]
	Latitude           Attribute[float64]
	Longitude          Attribute[float64]
}

// NewVehicle 创建车辆记录
func NewVehicle(vin string, now time.Time) *Vehicle {
	return &Vehicle{
		VIN:       vin,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplyInfo 更新基础信息
func (v *Vehicle) ApplyInfo(info VehicleInfo, now time.Time) {
	v.TronityID = info.TronityID
	v.Name = info.Name
	v.Model = info.Model
	v.Manufacturer = info.Manufacturer
	v.Images = info.Images
	v.UpdatedAt = now
}

// ApplyTelemetry 更新遥测数据
func (v *Vehicle) ApplyTelemetry(t Telemetry, now time.Time) {
	v.Odometer = t.Odometer
	v.Range = t.Range
	v.Level = t.Level
	v.ChargingState = t.ChargingState
	v.PlugState = t.PlugState
	v.ChargingPower = t.ChargingPower
	v.EstimatedChargeEnd = t.EstimatedChargeEnd
	v.Latitude = t.Latitude
	v.Longitude = t.Longitude
	v.UpdatedAt = now
}

// IsManagedBy 是否由指定连接器管理
func (v *Vehicle) IsManagedBy(connectorID string) bool {
	return slices.Contains(v.Managers, connectorID)
}

// IsManagedSolelyBy 是否仅由指定连接器管理
func (v *Vehicle) IsManagedSolelyBy(connectorID string) bool {
	return len(v.Managers) == 1 && v.Managers[0] == connectorID
}

// AddManager 添加管理连接器
func (v *Vehicle) AddManager(connectorID string) {
	if !v.IsManagedBy(connectorID) {
		v.Managers = append(v.Managers, connectorID)
	}
}

// RemoveManager 移除管理连接器
func (v *Vehicle) RemoveManager(connectorID string) {
	v.Managers = slices.DeleteFunc(v.Managers, func(id string) bool {
		return id == connectorID
	})
}

// Clone 深拷贝
func (v *Vehicle) Clone() *Vehicle {
	c := *v
	c.Managers = slices.Clone(v.Managers)
	if v.Images.Value != nil {
		images := make(map[string]string, len(v.Images.Value))
		for k, val := range v.Images.Value {
			images[k] = val
		}
		c.Images.Value = images
	}
	return &c
}
