package garage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/tronity-connector/internal/models"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func info(vin, name string) models.VehicleInfo {
	return models.VehicleInfo{
		VIN:  vin,
		Name: models.NewAttribute(name, models.UnitNone, nil, now),
	}
}

func vins(g *Garage) []string {
	var out []string
	for _, v := range g.List() {
		out = append(out, v.VIN)
	}
	return out
}

func TestCommit_AddsAndUpdates(t *testing.T) {
	g := New()

	level := models.Telemetry{Level: models.NewAttribute(80.0, models.UnitPercent, nil, now)}
	changed, removed := g.Commit("tronity", []Update{{Info: info("VIN1", "Car"), Telemetry: &level}}, now)
	require.Len(t, changed, 1)
	assert.Empty(t, removed)

	v, ok := g.Get("VIN1")
	require.True(t, ok)
	assert.Equal(t, "Car", v.Name.Value)
	assert.Equal(t, 80.0, v.Level.Value)
	assert.Equal(t, []string{"tronity"}, v.Managers)

	// 没有遥测的更新保留旧遥测
	later := now.Add(time.Minute)
	g.Commit("tronity", []Update{{Info: info("VIN1", "Renamed")}}, later)

	v, _ = g.Get("VIN1")
	assert.Equal(t, "Renamed", v.Name.Value)
	assert.Equal(t, 80.0, v.Level.Value)
	assert.Equal(t, now, v.CreatedAt)
	assert.Equal(t, later, v.UpdatedAt)
}

func TestCommit_RemovesUnseenVehicles(t *testing.T) {
	g := New()
	g.Commit("tronity", []Update{{Info: info("VIN1", "a")}, {Info: info("VIN2", "b")}}, now)
	g.Commit("other", []Update{{Info: info("VIN2", "b")}, {Info: info("VIN3", "c")}}, now)

	_, removed := g.Commit("tronity", nil, now)
	assert.Equal(t, []string{"VIN1"}, removed)

	// VIN2 还由 other 管理
	v, ok := g.Get("VIN2")
	require.True(t, ok)
	assert.Equal(t, []string{"other"}, v.Managers)

	assert.Equal(t, []string{"VIN2", "VIN3"}, vins(g))
}

func TestRelease(t *testing.T) {
	g := New()
	g.Commit("tronity", []Update{{Info: info("VIN1", "a")}, {Info: info("VIN2", "b")}}, now)
	g.Commit("other", []Update{{Info: info("VIN2", "b")}}, now)

	assert.Equal(t, []string{"VIN1"}, g.Release("tronity"))
	assert.Equal(t, []string{"VIN2"}, vins(g))
}

func TestGet_ReturnsCopy(t *testing.T) {
	g := New()
	i := info("VIN1", "a")
	i.Images = models.NewAttribute(map[string]string{"front": "https://img/1"}, models.UnitNone, nil, now)
	g.Commit("tronity", []Update{{Info: i}}, now)

	v, _ := g.Get("VIN1")
	v.Name.Value = "changed"
	v.Images.Value["front"] = "changed"
	v.Managers[0] = "changed"

	fresh, _ := g.Get("VIN1")
	assert.Equal(t, "a", fresh.Name.Value)
	assert.Equal(t, "https://img/1", fresh.Images.Value["front"])
	assert.Equal(t, []string{"tronity"}, fresh.Managers)
}

func TestLoad(t *testing.T) {
	g := New()
	g.Commit("tronity", []Update{{Info: info("VIN1", "live")}}, now)

	stored1 := models.NewVehicle("VIN1", now)
	stored1.Name = models.NewAttribute("stored", models.UnitNone, nil, now)
	stored2 := models.NewVehicle("VIN2", now)
	stored2.Managers = []string{"stale"}

	loaded := g.Load("tronity", []*models.Vehicle{stored2, stored1, nil, {}})
	assert.Equal(t, []string{"VIN2"}, loaded)
	assert.Equal(t, []string{"VIN1", "VIN2"}, vins(g))

	// 已存在的车辆不被覆盖
	v, _ := g.Get("VIN1")
	assert.Equal(t, "live", v.Name.Value)

	v, _ = g.Get("VIN2")
	assert.Equal(t, []string{"tronity"}, v.Managers)

	// 加载的车辆在下一次提交中未出现时被移除
	_, removed := g.Commit("tronity", []Update{{Info: info("VIN1", "live")}}, now)
	assert.Equal(t, []string{"VIN2"}, removed)
}

type fakeConnector struct{ id string }

func (f fakeConnector) ID() string      { return f.id }
func (f fakeConnector) Name() string    { return "fake" }
func (f fakeConnector) Type() string    { return "fake" }
func (f fakeConnector) Version() string { return "0" }
func (f fakeConnector) Health() models.Health {
	return models.Health{ConnectorID: f.id, Healthy: true}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeConnector{"a"})
	r.Register(fakeConnector{"b"})
	r.Register(fakeConnector{"a"})

	assert.Len(t, r.Connectors(), 3)
	assert.Equal(t, 2, r.Registrations("a"))
	assert.Equal(t, 1, r.Registrations("b"))
	assert.Len(t, r.Healths(), 3)
}
