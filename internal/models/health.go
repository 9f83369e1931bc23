package models

import "time"

// ConnectionState 连接器连接状态
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionError        ConnectionState = "error"
)

// Health 连接器健康状态 (暴露给宿主)
type Health struct {
	ConnectorID string          `json:"connector_id"`
	State       ConnectionState `json:"connection_state"`
	Since       time.Time       `json:"since"`
	Healthy     bool            `json:"healthy"`
	Running     bool            `json:"running"`
	LastUpdate  *time.Time      `json:"last_update,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Interval    int             `json:"interval"` // 秒
}
