package tronity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v3"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Authenticator 凭据管理：获取、缓存并刷新 bearer token
// 并发调用方最多共享一次进行中的刷新
type Authenticator struct {
	httpClient *http.Client
	authURL    string
	creds      Credentials
	logger     *zap.Logger
	clock      clock.Clock
	store      TokenStore

	attempts   uint
	retryDelay time.Duration
	onRefresh  func(result string)

	mu    sync.RWMutex
	token *Token
	group singleflight.Group
}

// NewAuthenticator 创建凭据管理器
func NewAuthenticator(httpClient *http.Client, authURL string, creds Credentials, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		httpClient: httpClient,
		authURL:    authURL,
		creds:      creds,
		logger:     logger,
		clock:      clock.New(),
		attempts:   3,
		retryDelay: time.Second,
	}
}

// SetClock 设置时钟 (用于测试)
func (a *Authenticator) SetClock(clk clock.Clock) {
	a.clock = clk
}

// SetStore 设置 token 存储
func (a *Authenticator) SetStore(store TokenStore) {
	a.store = store
}

// SetRetry 设置临时失败的重试次数和初始退避
func (a *Authenticator) SetRetry(attempts uint, delay time.Duration) {
	if attempts == 0 {
		attempts = 1
	}
	a.attempts = attempts
	a.retryDelay = delay
}

// SetRefreshObserver 设置刷新结果回调 (metrics)
func (a *Authenticator) SetRefreshObserver(fn func(result string)) {
	a.onRefresh = fn
}

// Identifier token 存储键
func (a *Authenticator) Identifier() string {
	return a.creds.Identifier()
}

// GetToken 获取当前令牌副本
func (a *Authenticator) GetToken() *Token {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.token == nil {
		return nil
	}
	t := *a.token
	return &t
}

// SetToken 设置认证令牌
func (a *Authenticator) SetToken(token *Token) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

// Restore 从存储加载上次的令牌
func (a *Authenticator) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}

	token, err := a.store.LoadToken(ctx, a.Identifier())
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if token == nil {
		return ErrTokenNotFound
	}

	a.SetToken(token)
	a.logger.Info("Reusing token from previous session", zap.Time("expiry", token.Expiry))
	return nil
}

// Persist 保存当前令牌
func (a *Authenticator) Persist(ctx context.Context) error {
	token := a.GetToken()
	if a.store == nil || token == nil {
		return nil
	}
	if err := a.store.SaveToken(ctx, a.Identifier(), token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Invalidate 丢弃被 API 拒绝的令牌
func (a *Authenticator) Invalidate(accessToken string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != nil && a.token.AccessToken == accessToken {
		a.token = nil
	}
}

// validToken 返回未过期的 access token，否则返回空串
func (a *Authenticator) validToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.token.IsValid(a.clock.Now()) {
		return a.token.AccessToken
	}
	return ""
}

// GetValidToken 获取有效的 access token，必要时刷新
func (a *Authenticator) GetValidToken(ctx context.Context) (string, error) {
	if token := a.validToken(); token != "" {
		return token, nil
	}

	// 刷新由所有等待者共享，不随发起者的 ctx 取消，由 HTTP 客户端超时约束
	refreshCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan("token", func() (interface{}, error) {
		// 等待期间可能已有其他调用完成刷新
		if token := a.validToken(); token != "" {
			return token, nil
		}

		token, err := a.refresh(refreshCtx)
		if err != nil {
			return "", err
		}
		return token.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", &AuthError{Temporary: true, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refresh 带退避重试地获取新令牌
func (a *Authenticator) refresh(ctx context.Context) (*Token, error) {
	var token *Token

	err := retry.Do(
		func() error {
			var err error
			token, err = a.obtain(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(a.attempts),
		retry.Delay(a.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var authErr *AuthError
			return errors.As(err, &authErr) && authErr.Temporary
		}),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Warn("Token request failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		a.observe("error")
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			// context 取消等
			err = &AuthError{Temporary: true, Err: err}
		}
		return nil, err
	}

	a.SetToken(token)
	a.observe("ok")

	if err := a.Persist(ctx); err != nil {
		a.logger.Warn("Failed to persist token", zap.Error(err))
	}

	return token, nil
}

// obtain 有 refresh token 时先尝试刷新，失败则重新登录
func (a *Authenticator) obtain(ctx context.Context) (*Token, error) {
	current := a.GetToken()
	if current == nil || current.RefreshToken == "" {
		return a.login(ctx)
	}

	token, err := a.refreshToken(ctx, current)
	if errors.Is(err, ErrUnauthorized) {
		a.logger.Info("Refresh token rejected, logging in again")
		return a.login(ctx)
	}
	return token, err
}

// login 使用 client_id/client_secret 获取令牌
func (a *Authenticator) login(ctx context.Context) (*Token, error) {
	a.logger.Info("Fetching new token")

	data := url.Values{}
	data.Set("grant_type", "app")
	data.Set("client_id", a.creds.ClientID)
	data.Set("client_secret", a.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("create token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Temporary: true, Err: fmt.Errorf("token request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return a.decodeToken(resp)
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode, Err: ErrCredentialsRejected}
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, &AuthError{
			StatusCode: resp.StatusCode,
			Temporary:  isTemporaryStatus(resp.StatusCode),
			Err:        fmt.Errorf("token could not be fetched: %s", string(body)),
		}
	}
}

// refreshToken 使用 refresh token 换取新令牌
func (a *Authenticator) refreshToken(ctx context.Context, current *Token) (*Token, error) {
	a.logger.Info("Refreshing token")

	body, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": current.RefreshToken,
	})
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("encode refresh request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL, bytes.NewReader(body))
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("create refresh request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+current.AccessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Temporary: true, Err: fmt.Errorf("refresh request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		token, err := a.decodeToken(resp)
		if err != nil {
			return nil, err
		}
		if token.RefreshToken == "" {
			a.logger.Debug("No new refresh token given, re-using old")
			token.RefreshToken = current.RefreshToken
		}
		return token, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		return nil, &AuthError{
			StatusCode: resp.StatusCode,
			Temporary:  isTemporaryStatus(resp.StatusCode),
			Err:        errors.New("token could not be refreshed"),
		}
	}
}

// decodeToken 解析令牌响应
func (a *Authenticator) decodeToken(resp *http.Response) (*Token, error) {
	var token Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, &AuthError{StatusCode: resp.StatusCode, Temporary: true, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if token.AccessToken == "" {
		return nil, &AuthError{StatusCode: resp.StatusCode, Temporary: true, Err: fmt.Errorf("%w: no access_token", ErrMalformedResponse)}
	}

	token.setExpiry(a.clock.Now())
	return &token, nil
}

func (a *Authenticator) observe(result string) {
	if a.onRefresh != nil {
		a.onRefresh(result)
	}
}

// isTemporaryStatus 服务端临时故障
func isTemporaryStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
