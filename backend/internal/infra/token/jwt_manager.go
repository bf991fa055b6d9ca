package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer           = "prompt-managerin"
	claimSessionType = "session"
	defaultTTL       = 30 * 24 * time.Hour
)

var (
	// ErrTokenInvalid 表示签名、过期时间或类型校验失败。
	ErrTokenInvalid = errors.New("session token invalid")
	// ErrSecretMissing 表示未配置签名密钥。
	ErrSecretMissing = errors.New("session secret missing")
)

// SessionClaims 是会话令牌携带的身份信息。访问码只是建议性标识，不承担鉴权职责。
type SessionClaims struct {
	Code        string `json:"code"`
	DisplayName string `json:"name"`
	Type        string `json:"typ"`
	jwt.RegisteredClaims
}

// Session 是签发结果。
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// JWTManager 使用对称密钥签发与解析会话令牌。
type JWTManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTManager 创建管理器，ttl 非正时默认 30 天。
func NewJWTManager(secret string, ttl time.Duration) (*JWTManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretMissing
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &JWTManager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue 为访问码与显示名称签发 HS256 令牌。
func (m *JWTManager) Issue(code, displayName string) (Session, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := SessionClaims{
		Code:        code,
		DisplayName: displayName,
		Type:        claimSessionType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   code,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session token: %w", err)
	}
	return Session{Token: signed, ExpiresAt: expiresAt}, nil
}

// Parse 校验签名与过期时间，返回令牌中的身份。
func (m *JWTManager) Parse(raw string) (SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SessionClaims{}, ErrTokenInvalid
	}
	claims := SessionClaims{}
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid || claims.Type != claimSessionType || strings.TrimSpace(claims.Code) == "" {
		return SessionClaims{}, ErrTokenInvalid
	}
	return claims, nil
}
