package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/langchou/tronity-connector/internal/api/tronity"
	"github.com/langchou/tronity-connector/internal/config"
	"github.com/langchou/tronity-connector/internal/garage"
	"github.com/langchou/tronity-connector/internal/metrics"
	"github.com/langchou/tronity-connector/internal/models"
	"github.com/langchou/tronity-connector/internal/state"
)

// Version 连接器版本，构建时通过 -ldflags 注入
var Version = "dev"

const (
	connectorName = "Tronity Connector"
	connectorType = "tronity"
)

// Recorder 车辆数据持久化
type Recorder interface {
	LoadVehicles(ctx context.Context, connectorID string) ([]*models.Vehicle, error)
	SaveVehicles(ctx context.Context, connectorID string, vehicles []*models.Vehicle) error
	DeleteVehicles(ctx context.Context, vins []string) error
}

// Broadcaster 推送车辆和健康状态
type Broadcaster interface {
	BroadcastVehicles(vehicles []*models.Vehicle, removed []string)
	BroadcastHealth(health models.Health)
	BroadcastError(connectorID, message string)
}

// Option 连接器选项
type Option func(*Connector)

// WithHTTPClient 设置 HTTP 客户端
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) { c.httpClient = client }
}

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(c *Connector) { c.clock = clk }
}

// WithTokenStore 设置 token 存储
func WithTokenStore(store tronity.TokenStore) Option {
	return func(c *Connector) { c.tokenStore = store }
}

// WithRecorder 设置持久化
func WithRecorder(r Recorder) Option {
	return func(c *Connector) { c.recorder = r }
}

// WithBroadcaster 设置推送
func WithBroadcaster(b Broadcaster) Option {
	return func(c *Connector) { c.broadcaster = b }
}

// WithAPILogger 设置 API 日志
func WithAPILogger(l *zap.Logger) Option {
	return func(c *Connector) { c.apiLogger = l }
}

// Connector Tronity 连接器实例
type Connector struct {
	cfg       config.ConnectorConfig
	logger    *zap.Logger
	apiLogger *zap.Logger
	clock     clock.Clock

	httpClient  *http.Client
	tokenStore  tronity.TokenStore
	auth        *tronity.Authenticator
	client      *tronity.Client
	registry    *garage.Registry
	garage      *garage.Garage
	machine     *state.Machine
	recorder    Recorder
	broadcaster Broadcaster

	// 注册只发生一次，与 Start/Stop 次数无关
	registerOnce sync.Once

	mu         sync.RWMutex
	running    bool
	stopCh     chan struct{}
	resetCh    chan time.Duration
	wg         sync.WaitGroup
	interval   time.Duration
	healthy    bool
	lastUpdate *time.Time
	lastError  string
}

// NewConnector 创建连接器，配置无效时返回 *config.ConfigError
func NewConnector(cfg config.ConnectorConfig, registry *garage.Registry, g *garage.Garage, logger *zap.Logger, opts ...Option) (*Connector, error) {
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}

	c := &Connector{
		cfg:      cfg,
		logger:   logger.With(zap.String("connector", cfg.ID)),
		clock:    clock.New(),
		registry: registry,
		garage:   g,
		stopCh:   make(chan struct{}),
		resetCh:  make(chan time.Duration, 1),
		interval: cfg.PollInterval(),
		healthy:  true,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.apiLogger == nil {
		c.apiLogger = c.logger
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.HTTPTimeout()}
	}

	creds := tronity.Credentials{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}
	c.auth = tronity.NewAuthenticator(c.httpClient, cfg.AuthURL, creds, c.logger)
	c.auth.SetClock(c.clock)
	c.auth.SetRetry(uint(cfg.Retries)+1, time.Second)
	c.auth.SetRefreshObserver(func(result string) {
		metrics.ObserveTokenRefresh(cfg.ID, result)
	})
	if c.tokenStore != nil {
		c.auth.SetStore(c.tokenStore)
	}

	c.client = tronity.NewClient(c.httpClient, cfg.APIHost, c.auth, c.apiLogger)
	c.client.SetObserver(func(op string, status int, elapsed time.Duration) {
		metrics.ObserveRequest(cfg.ID, op, status, elapsed)
	})

	c.machine = state.NewMachine(cfg.ID, c.clock.Now, c.onStateChange)
	metrics.SetHealthy(cfg.ID, true)

	return c, nil
}

// ID 连接器 ID
func (c *Connector) ID() string { return c.cfg.ID }

// Name 连接器名称
func (c *Connector) Name() string { return connectorName }

// Type 连接器类型
func (c *Connector) Type() string { return connectorType }

// Version 连接器版本
func (c *Connector) Version() string { return Version }

// Config 生效的配置 (凭据已隐藏)
func (c *Connector) Config() config.ConnectorConfig {
	return c.cfg.Redacted()
}

// Health 健康状态
func (c *Connector) Health() models.Health {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := models.Health{
		ConnectorID: c.cfg.ID,
		State:       c.machine.CurrentState(),
		Since:       c.machine.Since(),
		Healthy:     c.healthy,
		Running:     c.running,
		LastError:   c.lastError,
		Interval:    int(c.interval / time.Second),
	}
	if c.lastUpdate != nil {
		t := *c.lastUpdate
		h.LastUpdate = &t
	}
	return h
}

// Start 启动轮询，重复调用无副作用
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Info("Connector already running, skipping start")
		return nil
	}
	stopCh := make(chan struct{})
	c.stopCh = stopCh
	c.running = true
	c.mu.Unlock()

	c.registerOnce.Do(func() {
		c.registry.Register(c)
		c.logger.Info("Connector registered", zap.String("type", connectorType), zap.String("version", Version))
		c.loadVehicles(ctx)
	})

	if err := c.auth.Restore(ctx); err != nil {
		c.logger.Debug("No stored token", zap.Error(err))
	}

	c.logger.Info("Starting connector", zap.Duration("interval", c.PollInterval()))

	c.wg.Add(1)
	go c.pollLoop(ctx, stopCh)

	return nil
}

// loadVehicles 从持久化恢复上次保存的车辆，首次轮询前即可查询
func (c *Connector) loadVehicles(ctx context.Context) {
	if c.recorder == nil {
		return
	}

	vehicles, err := c.recorder.LoadVehicles(ctx, c.cfg.ID)
	if err != nil {
		c.logger.Warn("Failed to load stored vehicles", zap.Error(err))
		return
	}
	if loaded := c.garage.Load(c.cfg.ID, vehicles); len(loaded) > 0 {
		c.logger.Info("Loaded stored vehicles", zap.Strings("vins", loaded))
	}
}

// Stop 停止轮询，等待当前轮询结束
func (c *Connector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stopCh := c.stopCh
	c.mu.Unlock()

	c.logger.Info("Stopping connector")
	close(stopCh)
	c.wg.Wait()

	if err := c.machine.Trigger(state.EventDisconnect); err != nil {
		c.logger.Warn("Failed to update connection state", zap.Error(err))
	}
	c.logger.Info("Connector stopped")
}

// Shutdown 停止轮询，释放仅由本连接器管理的车辆并保存 token
func (c *Connector) Shutdown(ctx context.Context) error {
	c.Stop()

	removed := c.garage.Release(c.cfg.ID)
	if len(removed) > 0 {
		c.logger.Info("Released vehicles", zap.Strings("vins", removed))
		c.publish(nil, removed)
	}

	if err := c.auth.Persist(ctx); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

// PollInterval 当前轮询间隔
func (c *Connector) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

// SetInterval 修改轮询间隔，运行中立即生效
func (c *Connector) SetInterval(seconds int) error {
	if seconds < config.MinInterval {
		return &config.ConfigError{Field: "interval", Reason: fmt.Sprintf("must be at least %d seconds", config.MinInterval)}
	}

	d := time.Duration(seconds) * time.Second
	c.mu.Lock()
	c.interval = d
	// 只保留最新的间隔
	select {
	case <-c.resetCh:
	default:
	}
	c.resetCh <- d
	c.mu.Unlock()

	c.logger.Info("Poll interval changed", zap.Duration("interval", d))
	return nil
}

// Vehicles 本连接器管理的车辆
func (c *Connector) Vehicles() []*models.Vehicle {
	var out []*models.Vehicle
	for _, v := range c.garage.List() {
		if v.IsManagedBy(c.cfg.ID) {
			out = append(out, v)
		}
	}
	return out
}

// Vehicle 获取本连接器管理的车辆
func (c *Connector) Vehicle(vin string) (*models.Vehicle, bool) {
	v, ok := c.garage.Get(vin)
	if !ok || !v.IsManagedBy(c.cfg.ID) {
		return nil, false
	}
	return v, true
}

// pollLoop 轮询循环
func (c *Connector) pollLoop(ctx context.Context, stopCh chan struct{}) {
	defer c.wg.Done()

	// 启动时立即执行一次轮询
	_ = c.PollOnce(ctx)

	ticker := c.clock.Ticker(c.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			c.stopped(stopCh)
			return
		case d := <-c.resetCh:
			ticker.Reset(d)
		case <-ticker.C:
			_ = c.PollOnce(ctx)
		}
	}
}

// stopped ctx 结束时标记停止，之后可以再次 Start
func (c *Connector) stopped(stopCh chan struct{}) {
	c.mu.Lock()
	if !c.running || c.stopCh != stopCh {
		// 已由 Stop 处理
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	c.logger.Info("Connector context done, polling stopped")
	if err := c.machine.Trigger(state.EventDisconnect); err != nil {
		c.logger.Warn("Failed to update connection state", zap.Error(err))
	}
	c.publish(nil, nil)
}

// onStateChange 连接状态变化
func (c *Connector) onStateChange(connectorID string, from, to string) {
	c.logger.Info("Connection state changed", zap.String("from", from), zap.String("to", to))
}

// publish 推送车辆变化和健康状态
func (c *Connector) publish(vehicles []*models.Vehicle, removed []string) {
	if c.broadcaster == nil {
		return
	}

	if len(vehicles) > 0 || len(removed) > 0 {
		c.broadcaster.BroadcastVehicles(vehicles, removed)
	}
	c.broadcaster.BroadcastHealth(c.Health())
}
