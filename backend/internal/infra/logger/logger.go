package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogFile = "logs/prompt-managerin.log"

var (
	mu     sync.RWMutex
	global *zap.Logger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Options 描述日志输出。FilePath 为空或 "off" 时只写 stderr。
type Options struct {
	Level      string
	Encoding   string // json | console，仅影响文件输出
	FilePath   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// OptionsFromEnv 读取 LOG_* 环境变量。
func OptionsFromEnv() Options {
	opts := Options{
		Level:      envOr("LOG_LEVEL", "info"),
		Encoding:   envOr("LOG_ENCODING", "json"),
		FilePath:   envOr("LOG_FILE", filepath.FromSlash(defaultLogFile)),
		MaxSize:    positiveIntEnv("LOG_MAX_SIZE", 20),
		MaxBackups: positiveIntEnv("LOG_MAX_BACKUPS", 5),
		MaxAge:     positiveIntEnv("LOG_MAX_AGE", 15),
		Compress:   true,
	}
	if raw := strings.TrimSpace(os.Getenv("LOG_COMPRESS")); raw != "" {
		opts.Compress = raw == "1" || strings.EqualFold(raw, "true")
	}
	return opts
}

// Init 按环境变量初始化全局日志，重复调用返回已有实例。
func Init() (*zap.Logger, error) {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		return global, nil
	}
	built, err := Build(OptionsFromEnv())
	if err != nil {
		return nil, err
	}
	global = built
	return global, nil
}

// Build 组装 stderr Core 与可选的 lumberjack 滚动文件 Core，级别由全局 AtomicLevel 控制。
func Build(opts Options) (*zap.Logger, error) {
	if err := SetLevel(opts.Level); err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	stderrCfg := encCfg
	stderrCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(stderrCfg), zapcore.Lock(os.Stderr), level),
	}

	if path := strings.TrimSpace(opts.FilePath); path != "" && !strings.EqualFold(path, "off") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
			Compress:   opts.Compress,
		}
		fileEnc := zapcore.NewJSONEncoder(encCfg)
		if strings.EqualFold(opts.Encoding, "console") {
			fileEnc = zapcore.NewConsoleEncoder(encCfg)
		}
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(rotating), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// SetLevel 调整全局日志级别，已创建的 logger 立即生效。
func SetLevel(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "info"
	}
	var lvl zapcore.Level
	if err := lvl.Set(raw); err != nil {
		return fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	level.SetLevel(lvl)
	return nil
}

// L 返回全局 logger，未初始化时按环境变量初始化。
func L() *zap.Logger {
	mu.RLock()
	current := global
	mu.RUnlock()
	if current != nil {
		return current
	}
	built, err := Init()
	if err != nil {
		panic(fmt.Sprintf("logger init failed: %v", err))
	}
	return built
}

// S 返回 SugaredLogger。
func S() *zap.SugaredLogger { return L().Sugar() }

// Component 返回带 component 字段的 SugaredLogger。
func Component(name string) *zap.SugaredLogger {
	return S().With("component", name)
}

// Replace 替换全局 logger，CLI 与测试使用。
func Replace(next *zap.Logger) {
	if next == nil {
		return
	}
	mu.Lock()
	global = next
	mu.Unlock()
}

// Sync 刷新缓冲区。
func Sync() {
	mu.RLock()
	current := global
	mu.RUnlock()
	if current != nil {
		_ = current.Sync()
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func positiveIntEnv(key string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
