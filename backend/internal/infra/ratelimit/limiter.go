package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AllowResult 描述限流请求的结果。
type AllowResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
}

// Limiter 定义限流器的通用能力。
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (AllowResult, error)
}

// Key 拼接 "操作:身份" 形式的限流 key，身份为空时使用 anonymous。
func Key(operation string, subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return operation + ":" + subject
}

// RedisLimiter 使用 Redis INCR + TTL/EXPIRE 实现固定窗口限流，多实例共享计数。
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter 根据 Redis 客户端构造限流器，可自定义 key 前缀。
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "prompt-managerin:ratelimit"
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

// Allow 返回是否放行、剩余次数与等待时间。
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (AllowResult, error) {
	if limit <= 0 || r == nil || r.client == nil {
		return AllowResult{Allowed: true, Remaining: -1}, nil
	}
	if window <= 0 {
		window = time.Minute
	}

	namespaced := r.prefix + ":" + key
	pipe := r.client.TxPipeline()
	counter := pipe.Incr(ctx, namespaced)
	ttlCmd := pipe.TTL(ctx, namespaced)
	if _, err := pipe.Exec(ctx); err != nil {
		return AllowResult{}, err
	}

	// 计数 key 必须带过期时间，上一次 EXPIRE 失败时在这里补上。
	ttl := ttlCmd.Val()
	if ttl < 0 {
		if err := r.client.Expire(ctx, namespaced, window).Err(); err != nil {
			return AllowResult{}, err
		}
		ttl = window
	}

	count := int(counter.Val())
	if count <= limit {
		return AllowResult{Allowed: true, Remaining: limit - count}, nil
	}
	return AllowResult{Allowed: false, RetryAfter: ttl}, nil
}

// MemoryLimiter 是单实例部署或 Redis 不可用时的替代方案。
type MemoryLimiter struct {
	mu    sync.Mutex
	store map[string]entry
	now   func() time.Time
}

type entry struct {
	count   int
	expires time.Time
}

// NewMemoryLimiter 构建内存版限流器。
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{store: make(map[string]entry), now: time.Now}
}

// Allow 通过内存 map 模拟 Redis 的固定窗口限流行为。
func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (AllowResult, error) {
	if limit <= 0 || m == nil {
		return AllowResult{Allowed: true, Remaining: -1}, nil
	}
	if window <= 0 {
		window = time.Minute
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	ent, ok := m.store[key]
	if !ok || !now.Before(ent.expires) {
		m.store[key] = entry{count: 1, expires: now.Add(window)}
		m.sweepLocked(now)
		return AllowResult{Allowed: true, Remaining: limit - 1}, nil
	}

	ent.count++
	m.store[key] = ent
	if ent.count > limit {
		return AllowResult{Allowed: false, RetryAfter: ent.expires.Sub(now)}, nil
	}
	return AllowResult{Allowed: true, Remaining: limit - ent.count}, nil
}

// sweepLocked 顺带清理过期 key，防止 map 无限增长。
func (m *MemoryLimiter) sweepLocked(now time.Time) {
	if len(m.store) < 1024 {
		return
	}
	for key, ent := range m.store {
		if !now.Before(ent.expires) {
			delete(m.store, key)
		}
	}
}

// FallbackLimiter 优先使用 primary，出错时记录日志并改用 secondary。
type FallbackLimiter struct {
	primary   Limiter
	secondary Limiter
	logger    *zap.SugaredLogger
}

// NewFallbackLimiter 组合两个限流器，logger 为空时不输出日志。
func NewFallbackLimiter(primary, secondary Limiter, logger *zap.SugaredLogger) *FallbackLimiter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FallbackLimiter{primary: primary, secondary: secondary, logger: logger}
}

// Allow 实现 Limiter。
func (f *FallbackLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (AllowResult, error) {
	if f.primary != nil {
		res, err := f.primary.Allow(ctx, key, limit, window)
		if err == nil {
			return res, nil
		}
		f.logger.Warnw("primary rate limiter failed, using fallback", "key", key, "error", err)
	}
	if f.secondary == nil {
		return AllowResult{Allowed: true, Remaining: -1}, nil
	}
	return f.secondary.Allow(ctx, key, limit, window)
}
