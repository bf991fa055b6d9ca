package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// 存储驱动名称。
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

const (
	defaultServerPort     = "8080"
	defaultSQLiteRelPath  = "data/prompt-managerin.db"
	defaultSessionTTL     = 30 * 24 * time.Hour
	defaultWebhookTimeout = 10 * time.Second
	defaultWebhookTries   = 3
	defaultWebhookDelay   = 2 * time.Second
	defaultEnvironment    = "development"
	devSessionSecret      = "prompt-managerin-dev-secret"
)

// Runtime 汇总服务启动所需的全部配置。
type Runtime struct {
	Environment string
	ServerPort  string
	Store       StoreConfig
	Redis       RedisConfig
	Session     SessionConfig
	CatalogFile string

	// StaticDir 指向前端构建产物目录，为空时只提供 API。
	StaticDir      string
	AllowedOrigins []string
	RateLimits     RateLimits
	Moderation     ModerationConfig
}

// StoreConfig 描述 Record Store 使用的数据库。
type StoreConfig struct {
	Driver     string
	DSN        string
	SQLitePath string
	MySQL      MySQLConfig
}

// MySQLConfig 在未提供 STORE_DSN 时用于拼接 MySQL DSN。
type MySQLConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	Params   string
}

// RedisConfig 为空 Endpoint 时表示不启用 Redis。
type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
	Channel  string
}

// Enabled 判断是否配置了 Redis。
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// SessionConfig 描述会话令牌的签名密钥与有效期。
type SessionConfig struct {
	Secret string
	TTL    time.Duration
}

// RateLimits 按操作配置限流阈值，Limit<=0 表示不限流。
type RateLimits struct {
	CreateLimit   int
	CreateWindow  time.Duration
	ReactLimit    int
	ReactWindow   time.Duration
	UsageLimit    int
	UsageWindow   time.Duration
	ReportLimit   int
	ReportWindow  time.Duration
	CommentLimit  int
	CommentWindow time.Duration
}

// ModerationConfig 描述删除申请的通知渠道。
type ModerationConfig struct {
	AdminEmail      string
	WebhookURL      string
	WebhookAttempts int
	WebhookDelay    time.Duration
	WebhookTimeout  time.Duration
}

// LoadRuntime 读取环境变量并补齐默认值，解析失败时返回错误。
func LoadRuntime() (Runtime, error) {
	LoadEnvFiles()

	rt := Runtime{
		Environment: envString("APP_ENV", defaultEnvironment),
		ServerPort:  envString("SERVER_PORT", defaultServerPort),
		CatalogFile: normalisePath(envString("CATALOG_FILE", "")),
		StaticDir:   normalisePath(envString("STATIC_DIR", "")),
	}
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			rt.AllowedOrigins = append(rt.AllowedOrigins, origin)
		}
	}

	driver := strings.ToLower(envString("STORE_DRIVER", DriverSQLite))
	switch driver {
	case DriverSQLite, DriverMySQL, DriverPostgres:
	default:
		return Runtime{}, fmt.Errorf("unsupported STORE_DRIVER %q", driver)
	}
	rt.Store = StoreConfig{
		Driver:     driver,
		DSN:        envString("STORE_DSN", ""),
		SQLitePath: normalisePath(envString("SQLITE_PATH", defaultSQLiteRelPath)),
		MySQL: MySQLConfig{
			Host:     envString("MYSQL_HOST", ""),
			Username: envString("MYSQL_USERNAME", ""),
			Password: os.Getenv("MYSQL_PASSWORD"),
			Database: envString("MYSQL_DATABASE", "prompt_managerin"),
			Params:   envString("MYSQL_PARAMS", ""),
		},
	}
	port, err := envInt("MYSQL_PORT", 3306)
	if err != nil {
		return Runtime{}, err
	}
	rt.Store.MySQL.Port = port

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return Runtime{}, err
	}
	rt.Redis = RedisConfig{
		Endpoint: envString("REDIS_ENDPOINT", ""),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
		Channel:  envString("REDIS_CHANGE_CHANNEL", "prompt-managerin:changes"),
	}

	ttl, err := envDuration("SESSION_TTL", defaultSessionTTL)
	if err != nil {
		return Runtime{}, err
	}
	rt.Session = SessionConfig{
		Secret: envString("SESSION_SECRET", ""),
		TTL:    ttl,
	}
	if rt.Session.Secret == "" {
		if rt.Environment == "production" {
			return Runtime{}, fmt.Errorf("SESSION_SECRET is required in production")
		}
		rt.Session.Secret = devSessionSecret
	}

	if rt.RateLimits, err = loadRateLimits(); err != nil {
		return Runtime{}, err
	}

	attempts, err := envInt("MODERATION_WEBHOOK_ATTEMPTS", defaultWebhookTries)
	if err != nil {
		return Runtime{}, err
	}
	delay, err := envDuration("MODERATION_WEBHOOK_DELAY", defaultWebhookDelay)
	if err != nil {
		return Runtime{}, err
	}
	timeout, err := envDuration("MODERATION_WEBHOOK_TIMEOUT", defaultWebhookTimeout)
	if err != nil {
		return Runtime{}, err
	}
	rt.Moderation = ModerationConfig{
		AdminEmail:      envString("MODERATION_ADMIN_EMAIL", ""),
		WebhookURL:      envString("MODERATION_WEBHOOK_URL", ""),
		WebhookAttempts: attempts,
		WebhookDelay:    delay,
		WebhookTimeout:  timeout,
	}

	return rt, nil
}

func loadRateLimits() (RateLimits, error) {
	var (
		limits RateLimits
		err    error
	)
	pairs := []struct {
		limitKey  string
		windowKey string
		limit     *int
		window    *time.Duration
		defLimit  int
		defWindow time.Duration
	}{
		{"RATE_LIMIT_CREATE", "RATE_LIMIT_CREATE_WINDOW", &limits.CreateLimit, &limits.CreateWindow, 10, time.Hour},
		{"RATE_LIMIT_REACT", "RATE_LIMIT_REACT_WINDOW", &limits.ReactLimit, &limits.ReactWindow, 60, time.Minute},
		{"RATE_LIMIT_USAGE", "RATE_LIMIT_USAGE_WINDOW", &limits.UsageLimit, &limits.UsageWindow, 120, time.Minute},
		{"RATE_LIMIT_REPORT", "RATE_LIMIT_REPORT_WINDOW", &limits.ReportLimit, &limits.ReportWindow, 5, time.Hour},
		{"RATE_LIMIT_COMMENT", "RATE_LIMIT_COMMENT_WINDOW", &limits.CommentLimit, &limits.CommentWindow, 20, time.Hour},
	}
	for _, p := range pairs {
		if *p.limit, err = envInt(p.limitKey, p.defLimit); err != nil {
			return RateLimits{}, err
		}
		if *p.window, err = envDuration(p.windowKey, p.defWindow); err != nil {
			return RateLimits{}, err
		}
	}
	return limits, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

// envDuration 同时接受 Go duration（如 90s）与纯秒数。
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// normalisePath 将路径展开为绝对路径，兼容 ~ 前缀与相对路径。
func normalisePath(raw string) string {
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			raw = filepath.Join(home, strings.TrimPrefix(raw, "~"))
		}
	}
	if filepath.IsAbs(raw) {
		return raw
	}
	if abs, err := filepath.Abs(raw); err == nil {
		return abs
	}
	return raw
}
