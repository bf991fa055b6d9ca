package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	userdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/user"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/captcha"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/token"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidCode      = errors.New("access code must be 6 characters A-Z or 0-9")
	ErrCodeUnknown      = errors.New("access code not registered")
	ErrNameRequired     = errors.New("display name required")
	ErrCaptchaRequired  = errors.New("captcha is required")
	ErrCaptchaInvalid   = errors.New("captcha verification failed")
	ErrCodeSpaceCrowded = errors.New("no unused access code found")
)

const (
	// CodeLength 是访问码长度。
	CodeLength      = 6
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts = 8
	maxNameLength   = 64
)

// IdentityStore 由 repository.UserRepository 实现。
type IdentityStore interface {
	FindByCode(ctx context.Context, code string) (*userdomain.Identity, error)
	Exists(ctx context.Context, code string) (bool, error)
	Upsert(ctx context.Context, code string, displayName string) (*userdomain.Identity, error)
}

// TokenIssuer 签发会话令牌。
type TokenIssuer interface {
	Issue(code, displayName string) (token.Session, error)
}

// CaptchaVerifier 校验图形验证码，为 nil 时申请新访问码不需要验证码。
type CaptchaVerifier interface {
	Verify(ctx context.Context, id string, answer string) error
}

// CaptchaAnswer 是客户端提交的验证码。
type CaptchaAnswer struct {
	ID     string `json:"captcha_id"`
	Answer string `json:"captcha_answer"`
}

// LoginResult 是登录成功后返回给客户端的内容。
type LoginResult struct {
	Identity userdomain.Identity `json:"identity"`
	Session  token.Session       `json:"session"`
	// Migrated 表示提交的访问码带有旧前缀 user_，客户端应改存去掉前缀后的值。
	Migrated bool `json:"migrated"`
}

// Service 负责访问码的分配、查询与登录。访问码只用于归属判断，不是鉴权凭据。
type Service struct {
	users    IdentityStore
	tokens   TokenIssuer
	captcha  CaptchaVerifier
	logger   *zap.SugaredLogger
	generate func() (string, error)
}

// NewService 创建会话服务，logger 为空时使用 Nop。
func NewService(users IdentityStore, tokens TokenIssuer, verifier CaptchaVerifier, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		users:    users,
		tokens:   tokens,
		captcha:  verifier,
		logger:   logger,
		generate: GenerateCode,
	}
}

// CaptchaEnabled 表示申请访问码是否需要验证码。
func (s *Service) CaptchaEnabled() bool {
	return s.captcha != nil
}

// GenerateCode 用 crypto/rand 从 A-Z0-9 中生成 6 位访问码。
func GenerateCode() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode 去掉空白与旧前缀 user_ 并转为大写；第二个返回值表示是否去掉了旧前缀。
func NormalizeCode(raw string) (string, bool) {
	code := strings.TrimSpace(raw)
	code, migrated := strings.CutPrefix(code, userdomain.LegacyCodePrefix)
	return strings.ToUpper(code), migrated
}

// ValidCode 判断访问码格式。
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// NewCode 分配一个尚未登记的访问码。访问码在登录时才写入存储。
func (s *Service) NewCode(ctx context.Context, answer CaptchaAnswer) (string, error) {
	if s.captcha != nil {
		if strings.TrimSpace(answer.ID) == "" || strings.TrimSpace(answer.Answer) == "" {
			return "", ErrCaptchaRequired
		}
		if err := s.captcha.Verify(ctx, answer.ID, answer.Answer); err != nil {
			if errors.Is(err, captcha.ErrCaptchaNotFound) || errors.Is(err, captcha.ErrCaptchaMismatch) {
				return "", ErrCaptchaInvalid
			}
			return "", fmt.Errorf("verify captcha: %w", err)
		}
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return "", err
		}
		taken, err := s.users.Exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
		s.logger.Debugw("generated access code already taken", "attempt", attempt+1)
	}
	return "", ErrCodeSpaceCrowded
}

// Lookup 返回访问码对应的身份，用于登录表单自动填充展示名。
func (s *Service) Lookup(ctx context.Context, raw string) (userdomain.Identity, error) {
	code, _ := NormalizeCode(raw)
	if !ValidCode(code) {
		return userdomain.Identity{}, ErrInvalidCode
	}
	identity, err := s.users.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return userdomain.Identity{}, ErrCodeUnknown
		}
		return userdomain.Identity{}, fmt.Errorf("lookup identity: %w", err)
	}
	return *identity, nil
}

// Login 登记访问码并覆盖展示名，然后签发会话令牌。
func (s *Service) Login(ctx context.Context, raw string, displayName string) (LoginResult, error) {
	code, migrated := NormalizeCode(raw)
	if !ValidCode(code) {
		return LoginResult{}, ErrInvalidCode
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		return LoginResult{}, ErrNameRequired
	}
	if runes := []rune(name); len(runes) > maxNameLength {
		name = string(runes[:maxNameLength])
	}

	identity, err := s.users.Upsert(ctx, code, name)
	if err != nil {
		return LoginResult{}, err
	}
	session, err := s.tokens.Issue(identity.Code, identity.DisplayName)
	if err != nil {
		return LoginResult{}, err
	}
	if migrated {
		s.logger.Infow("legacy access code migrated", "code", code)
	}
	s.logger.Infow("session started", "code", code)
	return LoginResult{Identity: *identity, Session: session, Migrated: migrated}, nil
}
