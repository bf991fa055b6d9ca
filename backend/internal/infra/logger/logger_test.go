package logger

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuildWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	l, err := Build(Options{Level: "debug", FilePath: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	l.Info("mirror reloaded", zap.Int("records", 3))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("log file is empty")
	}
}

func TestSetLevelAffectsExistingLoggers(t *testing.T) {
	t.Cleanup(func() { _ = SetLevel("info") })
	l, err := Build(Options{Level: "warn", FilePath: "off"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be disabled at warn")
	}
	if err := SetLevel("debug"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug should be enabled after SetLevel")
	}
	if err := SetLevel("loud"); err == nil {
		t.Fatalf("invalid level accepted")
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FILE", "off")
	t.Setenv("LOG_MAX_SIZE", "-3")
	t.Setenv("LOG_COMPRESS", "false")

	opts := OptionsFromEnv()
	if opts.Level != "info" || opts.FilePath != "off" || opts.MaxSize != 20 || opts.Compress {
		t.Fatalf("unexpected options %+v", opts)
	}
}
