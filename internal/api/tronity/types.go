package tronity

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// ServiceName 服务名，参与 token 存储键的计算
const ServiceName = "Tronity"

// 默认 token 有效期（响应没有 expires_in 时）
const defaultTokenTTL = time.Hour

// 过期前提前刷新的余量
const expiryMargin = time.Minute

// Credentials 客户端凭据
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Identifier 凭据对应的 token 存储键
func (c Credentials) Identifier() string {
	sum := sha512.Sum512([]byte(ServiceName + c.ClientID + ":" + c.ClientSecret))
	return "tronity-connector:" + hex.EncodeToString(sum[:])
}

// Token 认证令牌
type Token struct {
	oauth2.Token
	ExpiresIn int `json:"expires_in,omitempty"` // 秒
}

// IsValid 检查 token 在 now 时刻是否仍可用（考虑提前刷新余量）
func (t *Token) IsValid(now time.Time) bool {
	if t == nil || t.AccessToken == "" || t.Expiry.IsZero() {
		return false
	}
	return now.Add(expiryMargin).Before(t.Expiry)
}

// setExpiry 根据 expires_in 计算过期时间
func (t *Token) setExpiry(now time.Time) {
	ttl := time.Duration(t.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	t.Expiry = now.Add(ttl)
}

// TokenStore token 持久化
type TokenStore interface {
	LoadToken(ctx context.Context, id string) (*Token, error)
	SaveToken(ctx context.Context, id string, token *Token) error
}

// Document Tronity 返回的原始 JSON 对象
// 字段按需由 mapper 解析，未知字段不会导致失败
type Document map[string]json.RawMessage

// vehiclesResponse GET /tronity/vehicles 响应
type vehiclesResponse struct {
	Data []Document `json:"data"`
}

// ChargingCommand 充电控制命令
type ChargingCommand string

const (
	ChargingStart ChargingCommand = "start"
	ChargingStop  ChargingCommand = "stop"
)
