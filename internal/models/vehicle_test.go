package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttribute(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	measured := now.Add(-time.Minute)

	a := NewAttribute(42.5, UnitKm, &measured, now)
	v, ok := a.Get()
	assert.True(t, ok)
	assert.Equal(t, 42.5, v)
	assert.Equal(t, UnitKm, a.Unit)

	u := Unavailable[float64](now)
	_, ok = u.Get()
	assert.False(t, ok)
	assert.Equal(t, now, u.UpdatedAt)

	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":0,"available":false,"updated_at":"2024-05-01T12:00:00Z"}`, string(data))
}

func TestVehicleManagers(t *testing.T) {
	v := NewVehicle("VIN1", time.Now())

	v.AddManager("a")
	v.AddManager("a")
	v.AddManager("b")
	assert.Equal(t, []string{"a", "b"}, v.Managers)
	assert.True(t, v.IsManagedBy("b"))
	assert.False(t, v.IsManagedSolelyBy("a"))

	v.RemoveManager("b")
	assert.True(t, v.IsManagedSolelyBy("a"))
	assert.False(t, v.IsManagedBy("b"))
}

func TestVehicleClone(t *testing.T) {
	now := time.Now()
	v := NewVehicle("VIN1", now)
	v.AddManager("a")
	v.Images = NewAttribute(map[string]string{"front": "f.png"}, UnitNone, nil, now)

	c := v.Clone()
	c.AddManager("b")
	c.Images.Value["front"] = "changed.png"

	assert.Equal(t, []string{"a"}, v.Managers)
	assert.Equal(t, "f.png", v.Images.Value["front"])
}

func TestApplyTelemetry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	v := NewVehicle("VIN1", now.Add(-time.Hour))

	v.ApplyTelemetry(Telemetry{
		Level:         NewAttribute(80.0, UnitPercent, nil, now),
		ChargingState: NewAttribute(ChargingActive, UnitNone, nil, now),
		Range:         Unavailable[float64](now),
	}, now)

	level, ok := v.Level.Get()
	assert.True(t, ok)
	assert.Equal(t, 80.0, level)
	assert.Equal(t, ChargingActive, v.ChargingState.Value)
	assert.False(t, v.Range.Available)
	assert.Equal(t, now, v.UpdatedAt)
}

func TestUnits(t *testing.T) {
	assert.Equal(t, 90*time.Minute, MinutesToDuration(90))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), ParseTimestamp(1714564800000))
}
