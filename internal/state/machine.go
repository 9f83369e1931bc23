package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/langchou/tronity-connector/internal/models"
)

// 连接状态常量
const (
	StateDisconnected = string(models.ConnectionDisconnected)
	StateConnected    = string(models.ConnectionConnected)
	StateError        = string(models.ConnectionError)
)

// 事件常量
const (
	EventConnect    = "connect"
	EventFail       = "fail"
	EventDisconnect = "disconnect"
)

// Machine 连接器连接状态机
type Machine struct {
	mu            sync.RWMutex
	connectorID   string
	fsm           *fsm.FSM
	since         time.Time
	now           func() time.Time
	onStateChange func(connectorID string, from, to string)
}

// NewMachine 创建状态机，初始状态为 disconnected
func NewMachine(connectorID string, now func() time.Time, onStateChange func(connectorID string, from, to string)) *Machine {
	if now == nil {
		now = time.Now
	}

	m := &Machine{
		connectorID:   connectorID,
		now:           now,
		since:         now(),
		onStateChange: onStateChange,
	}

	m.fsm = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: EventConnect, Src: []string{StateDisconnected, StateError}, Dst: StateConnected},
			{Name: EventFail, Src: []string{StateDisconnected, StateConnected}, Dst: StateError},
			{Name: EventDisconnect, Src: []string{StateConnected, StateError}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(m.connectorID, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() models.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.ConnectionState(m.fsm.Current())
}

// Since 当前状态开始时间
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Trigger 触发事件，当前状态不接受该事件时忽略
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fsm.Can(event) {
		return nil
	}

	if err := m.fsm.Event(context.Background(), event); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return nil
		}
		return fmt.Errorf("trigger event %s: %w", event, err)
	}

	m.since = m.now()
	return nil
}
