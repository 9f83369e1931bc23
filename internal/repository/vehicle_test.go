package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/tronity-connector/internal/models"
)

func TestNullable(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Nil(t, nullable(models.Unavailable[float64](now)))

	v := nullable(models.NewAttribute(42.5, models.UnitKm, nil, now))
	require.NotNil(t, v)
	assert.Equal(t, 42.5, *v)
}

func TestHasTelemetryAndMeasuredAt(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	measured := now.Add(-time.Hour)

	v := models.NewVehicle("VIN1", now)
	assert.False(t, hasTelemetry(v))
	assert.Nil(t, measuredAt(v))

	v.Level = models.NewAttribute(80.0, models.UnitPercent, &measured, now)
	assert.True(t, hasTelemetry(v))
	require.NotNil(t, measuredAt(v))
	assert.Equal(t, measured, *measuredAt(v))
}

func TestShouldRecord(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	measured := now.Add(-time.Hour)

	v := models.NewVehicle("VIN1", now)
	assert.False(t, shouldRecord(v))

	// 有遥测但没有 timestamp
	v.Odometer = models.NewAttribute(12345.0, models.UnitKm, nil, now)
	assert.False(t, shouldRecord(v))

	v.Odometer = models.NewAttribute(12345.0, models.UnitKm, &measured, now)
	assert.True(t, shouldRecord(v))
}
