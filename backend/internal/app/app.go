package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/antrhizom/prompt-managerin/backend/internal/config"
	infra "github.com/antrhizom/prompt-managerin/backend/internal/infra/client"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Resources 持有进程级的外部连接，由 Close 统一释放。
type Resources struct {
	Config config.Runtime
	DB     *gorm.DB
	SQL    *sql.DB
	Redis  *redis.Client
}

// Bootstrap 读取配置并建立存储连接。Record Store 不可用时直接返回错误，Redis 不可用时降级为单实例模式。
func Bootstrap(ctx context.Context, logger *zap.SugaredLogger) (*Resources, error) {
	cfg, err := config.LoadRuntime()
	if err != nil {
		return nil, fmt.Errorf("load runtime config: %w", err)
	}

	db, sqlDB, err := infra.OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("connect record store: %w", err)
	}
	resources := &Resources{Config: cfg, DB: db, SQL: sqlDB}

	if cfg.Redis.Enabled() {
		client, err := infra.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warnw("redis unavailable, falling back to single instance mode", "endpoint", cfg.Redis.Endpoint, "error", err)
		} else {
			resources.Redis = client
		}
	}
	return resources, nil
}

// Close 释放数据库与 Redis 连接。
func (r *Resources) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if r.SQL != nil {
		if err := r.SQL.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
