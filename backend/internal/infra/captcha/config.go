package captcha

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envCaptchaEnabled         = "CAPTCHA_ENABLED"
	envCaptchaPrefix          = "CAPTCHA_PREFIX"
	envCaptchaTTL             = "CAPTCHA_TTL"
	envCaptchaWidth           = "CAPTCHA_WIDTH"
	envCaptchaHeight          = "CAPTCHA_HEIGHT"
	envCaptchaLength          = "CAPTCHA_LENGTH"
	envCaptchaMaxSkew         = "CAPTCHA_MAX_SKEW"
	envCaptchaDotCount        = "CAPTCHA_DOT_COUNT"
	envCaptchaRateLimit       = "CAPTCHA_RATE_LIMIT_PER_MIN"
	envCaptchaRateLimitWindow = "CAPTCHA_RATE_LIMIT_WINDOW"
)

// LoadOptionsFromEnv 读取 CAPTCHA_* 变量，返回配置以及是否启用。
// 启用时任何字段解析失败都会返回错误，以便启动阶段直接终止。
func LoadOptionsFromEnv() (Options, bool, error) {
	if !isTruthy(strings.TrimSpace(os.Getenv(envCaptchaEnabled))) {
		return Options{}, false, nil
	}

	opts := Options{Prefix: strings.TrimSpace(os.Getenv(envCaptchaPrefix))}
	var err error
	if opts.TTL, err = durationEnv(envCaptchaTTL); err != nil {
		return Options{}, false, err
	}
	if opts.RateLimitWindow, err = durationEnv(envCaptchaRateLimitWindow); err != nil {
		return Options{}, false, err
	}
	ints := []struct {
		key    string
		target *int
	}{
		{envCaptchaWidth, &opts.Width},
		{envCaptchaHeight, &opts.Height},
		{envCaptchaLength, &opts.Length},
		{envCaptchaDotCount, &opts.DotCount},
		{envCaptchaRateLimit, &opts.RateLimitPerMin},
	}
	for _, item := range ints {
		raw := strings.TrimSpace(os.Getenv(item.key))
		if raw == "" {
			continue
		}
		value, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return Options{}, false, fmt.Errorf("parse %s: %w", item.key, convErr)
		}
		*item.target = value
	}
	if raw := strings.TrimSpace(os.Getenv(envCaptchaMaxSkew)); raw != "" {
		skew, convErr := strconv.ParseFloat(raw, 64)
		if convErr != nil {
			return Options{}, false, fmt.Errorf("parse %s: %w", envCaptchaMaxSkew, convErr)
		}
		opts.MaxSkew = skew
	}
	return opts, true, nil
}

func durationEnv(key string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
