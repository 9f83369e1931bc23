package models

import "time"

// Attribute 带时间戳的通用属性
// Available 为 false 时 Value 无意义
type Attribute[T any] struct {
	Value     T          `json:"value"`
	Unit      Unit       `json:"unit,omitempty"`
	Available bool       `json:"available"`
	Measured  *time.Time `json:"measured,omitempty"` // 数据源测量时间
	UpdatedAt time.Time  `json:"updated_at"`         // 本地最后更新时间
}

// NewAttribute 创建可用属性
func NewAttribute[T any](value T, unit Unit, measured *time.Time, now time.Time) Attribute[T] {
	return Attribute[T]{
		Value:     value,
		Unit:      unit,
		Available: true,
		Measured:  measured,
		UpdatedAt: now,
	}
}

// Unavailable 创建不可用属性
func Unavailable[T any](now time.Time) Attribute[T] {
	return Attribute[T]{UpdatedAt: now}
}

// Get 返回值以及是否可用
func (a Attribute[T]) Get() (T, bool) {
	return a.Value, a.Available
}
