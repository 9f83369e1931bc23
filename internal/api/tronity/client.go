package tronity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// API 路径
const (
	pathVehicles   = "/tronity/vehicles"
	pathLastRecord = "/tronity/vehicles/%s/last_record"
	pathControl    = "/tronity/vehicles/%s/control/%s_charging"
)

// TokenProvider 提供 bearer token
type TokenProvider interface {
	GetValidToken(ctx context.Context) (string, error)
	Invalidate(accessToken string)
}

// Client Tronity API 客户端
type Client struct {
	httpClient *http.Client
	apiHost    string
	auth       TokenProvider
	logger     *zap.Logger

	// 请求耗时回调 (metrics)
	observer func(op string, status int, elapsed time.Duration)
}

// NewClient 创建新的 Tronity API 客户端
func NewClient(httpClient *http.Client, apiHost string, auth TokenProvider, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		apiHost:    strings.TrimSuffix(apiHost, "/"),
		auth:       auth,
		logger:     logger,
	}
}

// SetObserver 设置请求耗时回调
func (c *Client) SetObserver(fn func(op string, status int, elapsed time.Duration)) {
	c.observer = fn
}

// send 发送一次带认证的请求
func (c *Client) send(ctx context.Context, op, method, path, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiHost+path, nil)
	if err != nil {
		return nil, &APIError{Op: op, Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(op, 0, elapsed)
		return nil, &APIError{Op: op, Err: fmt.Errorf("connection error: %w", err)}
	}

	c.observe(op, resp.StatusCode, elapsed)
	c.logger.Debug("Tronity request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))

	return resp, nil
}

// doRequest 执行带认证的请求，401 时重新认证并重试一次
func (c *Client) doRequest(ctx context.Context, op, method, path string) (*http.Response, error) {
	token, err := c.auth.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, op, method, path, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	c.logger.Info("Server asks for new authorization", zap.String("op", op))
	c.auth.Invalidate(token)

	token, err = c.auth.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err = c.send(ctx, op, method, path, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w even after re-authorization", ErrUnauthorized)}
	}
	return resp, nil
}

// getJSON GET 并解码 JSON
func (c *Client) getJSON(ctx context.Context, op, path string, out interface{}) error {
	resp, err := c.doRequest(ctx, op, http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusMultiStatus:
		// 正常
	case http.StatusTooManyRequests:
		return &APIError{Op: op, StatusCode: resp.StatusCode, Err: ErrRateLimited}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("could not fetch data")}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	c.logger.Debug("Tronity response", zap.String("op", op), zap.ByteString("body", body))

	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return nil
}

// ListVehicles 获取车辆列表
func (c *Client) ListVehicles(ctx context.Context) ([]Document, error) {
	var resp vehiclesResponse
	if err := c.getJSON(ctx, "list vehicles", pathVehicles, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetLastRecord 获取车辆最新记录，响应为 null 时返回 nil
func (c *Client) GetLastRecord(ctx context.Context, tronityID string) (Document, error) {
	var doc Document
	path := fmt.Sprintf(pathLastRecord, url.PathEscape(tronityID))
	if err := c.getJSON(ctx, "get last record", path, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Charging 开始或停止充电
func (c *Client) Charging(ctx context.Context, tronityID string, command ChargingCommand) error {
	if command != ChargingStart && command != ChargingStop {
		return fmt.Errorf("unknown charging command %q", command)
	}

	op := string(command) + " charging"
	path := fmt.Sprintf(pathControl, url.PathEscape(tronityID), command)

	resp, err := c.doRequest(ctx, op, http.MethodPost, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}

	switch resp.StatusCode {
	case http.StatusMethodNotAllowed:
		apiErr.Err = ErrNotSupported
	case http.StatusConflict:
		apiErr.Err = ErrVehicleUnreachable
	case http.StatusTooManyRequests:
		apiErr.Err = ErrRateLimited
	default:
		apiErr.Err = fmt.Errorf("could not %s charging", command)
	}

	c.logger.Error("Charging command failed", zap.String("op", op), zap.Int("status", resp.StatusCode), zap.String("body", apiErr.Body))
	return apiErr
}

func (c *Client) observe(op string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer(op, status, elapsed)
	}
}
