package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antrhizom/prompt-managerin/backend/internal/infra/ratelimit"

	"github.com/mojocn/base64Captcha"
	"github.com/redis/go-redis/v9"
)

var (
	ErrCaptchaNotFound = errors.New("captcha not found or expired")
	ErrCaptchaMismatch = errors.New("captcha code mismatch")
	ErrRateLimited     = errors.New("captcha requests too frequent")
)

// Options 描述验证码图像参数与申请频率。
type Options struct {
	Prefix          string
	TTL             time.Duration
	Width           int
	Height          int
	Length          int
	MaxSkew         float64
	DotCount        int
	RateLimitPerMin int
	RateLimitWindow time.Duration
}

const (
	defaultPrefix  = "prompt-managerin:captcha"
	defaultTTL     = 5 * time.Minute
	defaultWidth   = 240
	defaultHeight  = 80
	defaultLength  = 5
	defaultMaxSkew = 0.7
	defaultDot     = 80
)

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.Prefix) == "" {
		o.Prefix = defaultPrefix
	}
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.Height <= 0 {
		o.Height = defaultHeight
	}
	if o.Length <= 0 {
		o.Length = defaultLength
	}
	if o.MaxSkew <= 0 {
		o.MaxSkew = defaultMaxSkew
	}
	if o.DotCount <= 0 {
		o.DotCount = defaultDot
	}
	if o.RateLimitPerMin < 0 {
		o.RateLimitPerMin = 0
	}
	if o.RateLimitWindow <= 0 {
		o.RateLimitWindow = time.Minute
	}
	return o
}

// Manager 负责生成数字验证码、保存答案并在申请访问码前校验。
type Manager struct {
	driver  base64Captcha.Driver
	store   base64Captcha.Store
	limiter ratelimit.Limiter
	opts    Options
}

// NewManager 组装验证码管理器。store 为空时使用进程内存储，limiter 为空时不限流。
func NewManager(store base64Captcha.Store, limiter ratelimit.Limiter, opts Options) *Manager {
	opts = opts.withDefaults()
	if store == nil {
		store = base64Captcha.NewMemoryStore(base64Captcha.GCLimitNumber, opts.TTL)
	}
	return &Manager{
		driver:  base64Captcha.NewDriverDigit(opts.Height, opts.Width, opts.Length, opts.MaxSkew, opts.DotCount),
		store:   store,
		limiter: limiter,
		opts:    opts,
	}
}

// Generate 返回验证码 ID 与 base64 图像，subject 一般是客户端 IP。
func (m *Manager) Generate(ctx context.Context, subject string) (string, string, error) {
	if err := m.checkRateLimit(ctx, subject); err != nil {
		return "", "", err
	}

	id, content, answer := m.driver.GenerateIdQuestionAnswer()
	item, err := m.driver.DrawCaptcha(content)
	if err != nil {
		return "", "", fmt.Errorf("draw captcha: %w", err)
	}
	if err := m.store.Set(id, strings.ToLower(answer)); err != nil {
		return "", "", fmt.Errorf("store captcha: %w", err)
	}
	return id, item.EncodeB64string(), nil
}

// Verify 校验答案，无论成功与否都会清除该验证码。
func (m *Manager) Verify(_ context.Context, id string, answer string) error {
	if strings.TrimSpace(id) == "" {
		return ErrCaptchaNotFound
	}
	stored := m.store.Get(id, true)
	if stored == "" {
		return ErrCaptchaNotFound
	}
	if !strings.EqualFold(strings.TrimSpace(answer), stored) {
		return ErrCaptchaMismatch
	}
	return nil
}

func (m *Manager) checkRateLimit(ctx context.Context, subject string) error {
	if m.limiter == nil || m.opts.RateLimitPerMin <= 0 || strings.TrimSpace(subject) == "" {
		return nil
	}
	res, err := m.limiter.Allow(ctx, ratelimit.Key("captcha", subject), m.opts.RateLimitPerMin, m.opts.RateLimitWindow)
	if err != nil {
		return fmt.Errorf("captcha rate limit: %w", err)
	}
	if !res.Allowed {
		return ErrRateLimited
	}
	return nil
}

// RedisStore 把验证码答案保存在 Redis，多实例部署时共享。
type RedisStore struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

var _ base64Captcha.Store = (*RedisStore)(nil)

// NewRedisStore 创建 Redis 存储，prefix/ttl 为空时使用默认值。
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, timeout: 2 * time.Second}
}

// Set 实现 base64Captcha.Store。
func (s *RedisStore) Set(id string, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Set(ctx, s.key(id), value, s.ttl).Err()
}

// Get 实现 base64Captcha.Store，读取失败时返回空串。
func (s *RedisStore) Get(id string, clear bool) string {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	var (
		value string
		err   error
	)
	if clear {
		value, err = s.client.GetDel(ctx, s.key(id)).Result()
	} else {
		value, err = s.client.Get(ctx, s.key(id)).Result()
	}
	if err != nil {
		return ""
	}
	return value
}

// Verify 实现 base64Captcha.Store。
func (s *RedisStore) Verify(id, answer string, clear bool) bool {
	stored := s.Get(id, clear)
	return stored != "" && strings.EqualFold(strings.TrimSpace(answer), stored)
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}
