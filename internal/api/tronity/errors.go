package tronity

import (
	"errors"
	"fmt"
)

// 错误定义
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRateLimited         = errors.New("too many requests")
	ErrNotSupported        = errors.New("not supported by tronity for this vehicle")
	ErrVehicleUnreachable  = errors.New("vehicle may be unreachable")
	ErrMalformedResponse   = errors.New("malformed response")
	ErrCredentialsRejected = errors.New("credentials rejected")
	ErrTokenNotFound       = errors.New("token not found")
)

// APIError Tronity API 调用失败，下一轮轮询重试
type APIError struct {
	Op         string
	StatusCode int // 0 表示请求未得到响应
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s failed: status=%d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: status=%d body=%s: %v", e.Op, e.StatusCode, e.Body, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// AuthError 凭据交换失败
// Temporary 为 true 时（网络、5xx、429）会带退避重试
type AuthError struct {
	StatusCode int
	Temporary  bool
	Err        error
}

func (e *AuthError) Error() string {
	kind := "authentication failed"
	if e.Temporary {
		kind = "temporary authentication failure"
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", kind, e.Err)
	}
	return fmt.Sprintf("%s: status=%d: %v", kind, e.StatusCode, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsRateLimited 是否因请求过多被拒绝
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
