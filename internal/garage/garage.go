package garage

import (
	"sort"
	"sync"
	"time"

	"github.com/langchou/tronity-connector/internal/models"
)

// Update 一辆车在一次轮询中的暂存更新
type Update struct {
	Info      models.VehicleInfo
	Telemetry *models.Telemetry // nil 表示本轮没有获取到遥测
}

// Garage 宿主侧车辆存储
// 读取返回副本，写入只通过 Commit / Release 进行
type Garage struct {
	mu       sync.RWMutex
	vehicles map[string]*models.Vehicle
}

// New 创建车库
func New() *Garage {
	return &Garage{
		vehicles: make(map[string]*models.Vehicle),
	}
}

// Get 获取车辆副本
func (g *Garage) Get(vin string) (*models.Vehicle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	v, ok := g.vehicles[vin]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// List 获取所有车辆副本，按 VIN 排序
func (g *Garage) List() []*models.Vehicle {
	g.mu.RLock()
	defer g.mu.RUnlock()

	vehicles := make([]*models.Vehicle, 0, len(g.vehicles))
	for _, v := range g.vehicles {
		vehicles = append(vehicles, v.Clone())
	}
	sort.Slice(vehicles, func(i, j int) bool {
		return vehicles[i].VIN < vehicles[j].VIN
	})
	return vehicles
}

// Load 加载持久化的车辆，已存在的车辆不覆盖
// 加载的车辆只由该连接器管理，返回加载的 VIN
func (g *Garage) Load(connectorID string, vehicles []*models.Vehicle) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var loaded []string
	for _, v := range vehicles {
		if v == nil || v.VIN == "" {
			continue
		}
		if _, ok := g.vehicles[v.VIN]; ok {
			continue
		}
		c := v.Clone()
		c.Managers = []string{connectorID}
		g.vehicles[c.VIN] = c
		loaded = append(loaded, c.VIN)
	}
	sort.Strings(loaded)
	return loaded
}

// Commit 原子地应用一次轮询的全部更新
// 本次未出现、且由该连接器管理的车辆会被移除（仅由该连接器管理时）或解除管理。
// 返回更新后的车辆副本和被移除的 VIN
func (g *Garage) Commit(connectorID string, updates []Update, now time.Time) (changed []*models.Vehicle, removed []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]struct{}, len(updates))
	for _, u := range updates {
		vin := u.Info.VIN
		seen[vin] = struct{}{}

		v, ok := g.vehicles[vin]
		if !ok {
			v = models.NewVehicle(vin, now)
			g.vehicles[vin] = v
		}
		v.AddManager(connectorID)
		v.ApplyInfo(u.Info, now)
		if u.Telemetry != nil {
			v.ApplyTelemetry(*u.Telemetry, now)
		}
		changed = append(changed, v.Clone())
	}

	for vin, v := range g.vehicles {
		if _, ok := seen[vin]; ok || !v.IsManagedBy(connectorID) {
			continue
		}
		if v.IsManagedSolelyBy(connectorID) {
			delete(g.vehicles, vin)
			removed = append(removed, vin)
			continue
		}
		v.RemoveManager(connectorID)
	}
	sort.Strings(removed)

	return changed, removed
}

// Release 连接器关闭时释放其管理的车辆
// 仅由该连接器管理的车辆被移除，返回被移除的 VIN
func (g *Garage) Release(connectorID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var removed []string
	for vin, v := range g.vehicles {
		switch {
		case v.IsManagedSolelyBy(connectorID):
			delete(g.vehicles, vin)
			removed = append(removed, vin)
		case v.IsManagedBy(connectorID):
			v.RemoveManager(connectorID)
		}
	}
	sort.Strings(removed)
	return removed
}
