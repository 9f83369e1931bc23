package garage

import (
	"sync"

	"github.com/langchou/tronity-connector/internal/models"
)

// Connector 宿主对连接器的通用视图
type Connector interface {
	ID() string
	Name() string
	Type() string
	Version() string
	Health() models.Health
}

// Registry 宿主的连接器注册表
// 注册表本身不去重：重复注册会让宿主对同一个连接器调用多次，
// 保证只注册一次是连接器自己的责任
type Registry struct {
	mu         sync.RWMutex
	connectors []Connector
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{}
}

// Register 注册连接器
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors = append(r.connectors, c)
}

// Connectors 获取所有注册项
func (r *Registry) Connectors() []Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connector, len(r.connectors))
	copy(out, r.connectors)
	return out
}

// Registrations 统计某个连接器 ID 的注册次数
func (r *Registry) Registrations(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.connectors {
		if c.ID() == id {
			n++
		}
	}
	return n
}

// Healths 获取所有连接器健康状态
func (r *Registry) Healths() []models.Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	healths := make([]models.Health, 0, len(r.connectors))
	for _, c := range r.connectors {
		healths = append(healths, c.Health())
	}
	return healths
}
