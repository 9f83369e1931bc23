package mapper

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/langchou/tronity-connector/internal/api/tronity"
	"github.com/langchou/tronity-connector/internal/models"
)

// ErrMissingVIN 车辆条目没有 VIN，无法作为车辆记录的键
var ErrMissingVIN = errors.New("could not parse vehicle, vin missing")

// MappingError 字段类型与预期不符
// 对应属性被标记为不可用，其余字段照常映射
type MappingError struct {
	Document string
	Field    string
	Err      error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Document, e.Field, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// 已知字段，其余字段作为额外字段上报
var (
	vehicleKeys = map[string]struct{}{
		"vin": {}, "displayName": {}, "id": {}, "name": {}, "model": {}, "manufacture": {},
		"scopes": {}, "updatedAt": {}, "valid": {}, "year": {}, "createdAt": {}, "images": {},
	}
	lastRecordKeys = map[string]struct{}{
		"odometer": {}, "range": {}, "level": {}, "charging": {}, "plugged": {}, "chargerPower": {},
		"chargeRemainingTime": {}, "latitude": {}, "longitude": {}, "timestamp": {}, "lastUpdate": {},
		"id": {}, "vehicleId": {}, "createdAt": {}, "updatedAt": {},
	}
)

// 充电状态映射
var chargingStates = map[string]models.ChargingState{
	"Charging":     models.ChargingActive,
	"Disconnected": models.ChargingOff,
	"Error":        models.ChargingError,
}

// Result 映射结果附带的诊断信息
type Result struct {
	Errors    []error  // MappingError
	ExtraKeys []string // 未识别的字段
	Unknown   []string // 未识别的枚举值
}

// decoder 对单个文档逐字段解码并收集错误
type decoder struct {
	name   string
	doc    tronity.Document
	result *Result
}

// raw 取字段原始值，缺失或 null 返回 false
func (d *decoder) raw(field string) (json.RawMessage, bool) {
	v, ok := d.doc[field]
	if !ok || len(v) == 0 || string(v) == "null" {
		return nil, false
	}
	return v, true
}

func (d *decoder) fail(field string, err error) {
	d.result.Errors = append(d.result.Errors, &MappingError{Document: d.name, Field: field, Err: err})
}

// decode 解码字段，类型不符时记录 MappingError
func decode[T any](d *decoder, field string) (T, bool) {
	var v T
	raw, ok := d.raw(field)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		d.fail(field, err)
		return v, false
	}
	return v, true
}

// attr 解码字段为属性，缺失或类型不符时为不可用
func attr[T any](d *decoder, field string, unit models.Unit, measured *time.Time, now time.Time) models.Attribute[T] {
	v, ok := decode[T](d, field)
	if !ok {
		return models.Unavailable[T](now)
	}
	return models.NewAttribute(v, unit, measured, now)
}

func (d *decoder) extraKeys(known map[string]struct{}) {
	for k := range d.doc {
		if _, ok := known[k]; !ok {
			d.result.ExtraKeys = append(d.result.ExtraKeys, k)
		}
	}
	sort.Strings(d.result.ExtraKeys)
}

// MapVehicle 映射车辆列表条目
// 没有 VIN 时返回 ErrMissingVIN
func MapVehicle(doc tronity.Document, now time.Time) (models.VehicleInfo, *Result, error) {
	result := &Result{}
	d := &decoder{name: "vehicles", doc: doc, result: result}

	vin, ok := decode[string](d, "vin")
	if !ok || vin == "" {
		return models.VehicleInfo{}, result, ErrMissingVIN
	}

	var measured *time.Time
	if s, ok := decode[string](d, "updatedAt"); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			t = t.UTC()
			measured = &t
		} else {
			d.fail("updatedAt", err)
		}
	}

	info := models.VehicleInfo{
		VIN:          vin,
		TronityID:    attr[string](d, "id", models.UnitNone, measured, now),
		Name:         attr[string](d, "displayName", models.UnitNone, measured, now),
		Model:        attr[string](d, "model", models.UnitNone, measured, now),
		Manufacturer: attr[string](d, "manufacture", models.UnitNone, measured, now),
		Images:       attr[map[string]string](d, "images", models.UnitNone, measured, now),
	}

	d.extraKeys(vehicleKeys)
	return info, result, nil
}

// MapLastRecord 映射车辆最新记录
// doc 为 nil 时所有属性不可用
func MapLastRecord(doc tronity.Document, now time.Time) (models.Telemetry, *Result) {
	result := &Result{}
	d := &decoder{name: "last_record", doc: doc, result: result}

	var measured *time.Time
	// 毫秒时间戳可能带小数或指数形式
	if ms, ok := decode[float64](d, "timestamp"); ok {
		t := models.ParseTimestamp(int64(math.Round(ms)))
		measured = &t
	}

	t := models.Telemetry{
		Odometer:      attr[float64](d, "odometer", models.UnitKm, measured, now),
		Range:         attr[float64](d, "range", models.UnitKm, measured, now),
		Level:         attr[float64](d, "level", models.UnitPercent, measured, now),
		ChargingPower: attr[float64](d, "chargerPower", models.UnitKW, measured, now),
		Latitude:      attr[float64](d, "latitude", models.UnitDegree, measured, now),
		Longitude:     attr[float64](d, "longitude", models.UnitDegree, measured, now),
	}

	t.ChargingState = models.Unavailable[models.ChargingState](now)
	if s, ok := decode[string](d, "charging"); ok {
		state, known := chargingStates[s]
		if !known {
			result.Unknown = append(result.Unknown, s)
			state = models.ChargingUnknown
		}
		t.ChargingState = models.NewAttribute(state, models.UnitNone, measured, now)
	}

	t.PlugState = models.Unavailable[models.PlugState](now)
	if plugged, ok := decode[bool](d, "plugged"); ok {
		state := models.PlugDisconnected
		if plugged {
			state = models.PlugConnected
		}
		t.PlugState = models.NewAttribute(state, models.UnitNone, measured, now)
	}

	// 剩余充电分钟数换算为预计完成时间
	t.EstimatedChargeEnd = models.Unavailable[time.Time](now)
	if minutes, ok := decode[float64](d, "chargeRemainingTime"); ok {
		end := now.Add(models.MinutesToDuration(minutes)).UTC()
		t.EstimatedChargeEnd = models.NewAttribute(end, models.UnitNone, measured, now)
	}

	d.extraKeys(lastRecordKeys)
	return t, result
}
