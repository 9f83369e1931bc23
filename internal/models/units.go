package models

import "time"

// Unit 属性单位
type Unit string

const (
	UnitNone    Unit = ""
	UnitKm      Unit = "km"
	UnitPercent Unit = "%"
	UnitKW      Unit = "kW"
	UnitDegree  Unit = "°"
)

// MinutesToDuration 分钟转 Duration
func MinutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}

// ParseTimestamp 解析毫秒时间戳 (UTC)
func ParseTimestamp(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
