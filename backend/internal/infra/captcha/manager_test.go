package captcha

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/antrhizom/prompt-managerin/backend/internal/infra/ratelimit"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestManagerGenerateAndVerify(t *testing.T) {
	client := newRedisClient(t)
	manager := NewManager(NewRedisStore(client, "test-captcha", time.Minute), nil, Options{Length: 4})

	ctx := context.Background()
	id, image, err := manager.Generate(ctx, "127.0.0.1")
	if err != nil {
		t.Fatalf("generate captcha: %v", err)
	}
	if id == "" || image == "" {
		t.Fatalf("expected id and image, got %q / %d bytes", id, len(image))
	}

	stored, err := client.Get(ctx, "test-captcha:"+id).Result()
	if err != nil {
		t.Fatalf("get stored answer: %v", err)
	}
	if len(stored) != 4 {
		t.Fatalf("unexpected answer length %q", stored)
	}
	if err := manager.Verify(ctx, id, " "+stored+" "); err != nil {
		t.Fatalf("verify captcha: %v", err)
	}
	if _, err := client.Get(ctx, "test-captcha:"+id).Result(); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected captcha entry to be deleted after verify, got %v", err)
	}
	if err := manager.Verify(ctx, id, stored); !errors.Is(err, ErrCaptchaNotFound) {
		t.Fatalf("captcha reused: %v", err)
	}
}

func TestManagerVerifyMismatchClearsAnswer(t *testing.T) {
	manager := NewManager(nil, nil, Options{})
	ctx := context.Background()

	id, _, err := manager.Generate(ctx, "")
	if err != nil {
		t.Fatalf("generate captcha: %v", err)
	}
	if err := manager.Verify(ctx, id, "not-a-digit"); !errors.Is(err, ErrCaptchaMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := manager.Verify(ctx, id, "whatever"); !errors.Is(err, ErrCaptchaNotFound) {
		t.Fatalf("expected answer cleared, got %v", err)
	}
	if err := manager.Verify(ctx, " ", "x"); !errors.Is(err, ErrCaptchaNotFound) {
		t.Fatalf("empty id accepted: %v", err)
	}
}

func TestManagerRateLimit(t *testing.T) {
	manager := NewManager(nil, ratelimit.NewMemoryLimiter(), Options{RateLimitPerMin: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, _, err := manager.Generate(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
	}
	if _, _, err := manager.Generate(ctx, "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if _, _, err := manager.Generate(ctx, "10.0.0.2"); err != nil {
		t.Fatalf("other subject limited: %v", err)
	}
}

func TestLoadOptionsFromEnv(t *testing.T) {
	t.Setenv(envCaptchaEnabled, "")
	if _, enabled, err := LoadOptionsFromEnv(); enabled || err != nil {
		t.Fatalf("captcha should be disabled: %v %v", enabled, err)
	}

	t.Setenv(envCaptchaEnabled, "on")
	t.Setenv(envCaptchaTTL, "2m")
	t.Setenv(envCaptchaLength, "6")
	opts, enabled, err := LoadOptionsFromEnv()
	if err != nil || !enabled {
		t.Fatalf("load options: %v %v", enabled, err)
	}
	if opts.TTL != 2*time.Minute || opts.Length != 6 {
		t.Fatalf("unexpected options %+v", opts)
	}

	t.Setenv(envCaptchaMaxSkew, "steep")
	if _, _, err := LoadOptionsFromEnv(); err == nil {
		t.Fatalf("invalid skew accepted")
	}
}
