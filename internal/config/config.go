package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jdx/go-netrc"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultInterval 默认轮询间隔
	DefaultInterval = 300
	// MinInterval 最小轮询间隔
	MinInterval = 60

	DefaultConnectorID = "tronity"
	DefaultAPIHost     = "https://api.tronity.tech"
	DefaultAuthURL     = "https://api.tronity.tech/authentication"
	DefaultTimeout     = 60
	DefaultRetries     = 3

	// NetrcMachine netrc 文件中的机器名
	NetrcMachine = "Tronity"
)

// Config 进程配置
type Config struct {
	// Server
	ServerPort string
	Debug      bool

	// Database (可选，为空时不持久化)
	DatabaseURL string

	// Token 存储路径
	TokenFile string

	// 连接器配置文件路径
	ConfigFile string

	Connector ConnectorConfig
}

// ConnectorConfig 连接器配置 (JSON)
type ConnectorConfig struct {
	ID           string `json:"id,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Interval     int    `json:"interval,omitempty"` // 秒
	Netrc        string `json:"netrc,omitempty"`
	LogLevel     string `json:"log_level,omitempty"`
	APILogLevel  string `json:"api_log_level,omitempty"`

	APIHost string `json:"api_host,omitempty"`
	AuthURL string `json:"auth_url,omitempty"`
	Timeout int    `json:"timeout,omitempty"` // 秒
	Retries int    `json:"retries,omitempty"`
}

// ConfigError 配置错误，启动时致命
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load 加载配置：.env、环境变量、连接器 JSON 文件
func Load(configFile string) (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:  getEnv("PORT", "4000"),
		Debug:       getEnvBool("DEBUG", false),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		TokenFile:   getEnv("TOKEN_FILE", "tokens.json"),
		ConfigFile:  configFile,
	}
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = getEnv("CONFIG_FILE", "tronity.json")
	}

	data, err := os.ReadFile(cfg.ConfigFile)
	switch {
	case err == nil:
		if cfg.Connector, err = ParseConnectorConfig(data); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist) && configFile == "":
		// 没有配置文件时完全依赖环境变量
	default:
		return nil, &ConfigError{Field: "config file", Reason: cfg.ConfigFile, Err: err}
	}

	// 环境变量覆盖
	cfg.Connector.ClientID = getEnv("TRONITY_CLIENT_ID", cfg.Connector.ClientID)
	cfg.Connector.ClientSecret = getEnv("TRONITY_CLIENT_SECRET", cfg.Connector.ClientSecret)
	cfg.Connector.Interval = getEnvInt("TRONITY_INTERVAL", cfg.Connector.Interval)

	if err := cfg.Connector.Resolve(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseConnectorConfig 解析连接器 JSON，拒绝未知字段
func ParseConnectorConfig(data []byte) (ConnectorConfig, error) {
	var cc ConnectorConfig

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cc); err != nil {
		return cc, &ConfigError{Field: "json", Reason: "cannot decode connector config", Err: err}
	}

	return cc, nil
}

// Resolve 填充默认值、从 netrc 读取凭据并校验
func (c *ConnectorConfig) Resolve() error {
	if c.ID == "" {
		c.ID = DefaultConnectorID
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.APILogLevel == "" {
		c.APILogLevel = "warning"
	}
	if c.APIHost == "" {
		c.APIHost = DefaultAPIHost
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}

	if c.ClientID == "" || c.ClientSecret == "" {
		if err := c.loadNetrc(); err != nil {
			return err
		}
	}

	return c.Validate()
}

// loadNetrc 从 netrc 文件读取 client_id (login) 和 client_secret (password)
func (c *ConnectorConfig) loadNetrc() error {
	if c.Netrc == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return &ConfigError{Field: "netrc", Reason: "cannot determine home directory", Err: err}
		}
		c.Netrc = filepath.Join(home, ".netrc")
	}

	n, err := netrc.Parse(c.Netrc)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ConfigError{Field: "netrc", Reason: c.Netrc + " not found, create it or provide client_id and client_secret"}
		}
		return &ConfigError{Field: "netrc", Reason: "cannot parse " + c.Netrc, Err: err}
	}

	m := n.Machine(NetrcMachine)
	if m == nil {
		return &ConfigError{Field: "netrc", Reason: fmt.Sprintf("%q entry not found in %s", NetrcMachine, c.Netrc)}
	}

	c.ClientID = m.Get("login")
	c.ClientSecret = m.Get("password")
	return nil
}

// Validate 校验配置
func (c *ConnectorConfig) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return &ConfigError{Field: "client_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return &ConfigError{Field: "client_secret", Reason: "must not be empty"}
	}
	if c.Interval < MinInterval {
		return &ConfigError{Field: "interval", Reason: fmt.Sprintf("must be at least %d seconds", MinInterval)}
	}
	if c.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Reason: "must be positive"}
	}
	if c.Retries < 0 {
		return &ConfigError{Field: "retries", Reason: "must not be negative"}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return &ConfigError{Field: "log_level", Reason: c.LogLevel, Err: err}
	}
	if _, err := ParseLevel(c.APILogLevel); err != nil {
		return &ConfigError{Field: "api_log_level", Reason: c.APILogLevel, Err: err}
	}
	return nil
}

// PollInterval 轮询间隔
func (c *ConnectorConfig) PollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// HTTPTimeout 请求超时
func (c *ConnectorConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Redacted 返回去除凭据的副本，用于日志
func (c ConnectorConfig) Redacted() ConnectorConfig {
	if c.ClientID != "" {
		c.ClientID = "***"
	}
	if c.ClientSecret != "" {
		c.ClientSecret = "***"
	}
	return c
}

// ParseLevel 解析日志级别 (debug/info/warning/error)
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warning", "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
