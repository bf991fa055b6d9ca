package middleware

import (
	"net/http"
	"strings"

	userdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/user"
	response "github.com/antrhizom/prompt-managerin/backend/internal/infra/common"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/token"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const actorContextKey = "session.actor"

// TokenParser 解析会话令牌，由 token.JWTManager 实现。
type TokenParser interface {
	Parse(raw string) (token.SessionClaims, error)
}

// SessionMiddleware 解析可选的 Bearer 令牌并把身份放入上下文。令牌缺失或无效时按匿名请求继续处理。
type SessionMiddleware struct {
	tokens TokenParser
	logger *zap.SugaredLogger
}

// NewSessionMiddleware 创建会话中间件。
func NewSessionMiddleware(tokens TokenParser, logger *zap.SugaredLogger) *SessionMiddleware {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SessionMiddleware{tokens: tokens, logger: logger}
}

// Handle 返回 Gin 中间件。
func (m *SessionMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if ok && m.tokens != nil {
			claims, err := m.tokens.Parse(raw)
			if err != nil {
				m.logger.Debugw("ignore invalid session token", "path", c.FullPath(), "error", err)
			} else {
				c.Set(actorContextKey, userdomain.Actor{Code: claims.Code, DisplayName: claims.DisplayName})
			}
		}
		c.Next()
	}
}

// RequireActor 拒绝没有有效会话的请求。
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ActorFrom(c); !ok {
			response.Fail(c, http.StatusUnauthorized, response.ErrIdentityMissing, "Bitte zuerst mit deinem Zugangscode anmelden.", nil)
			return
		}
		c.Next()
	}
}

// ActorFrom 读取中间件写入的身份。
func ActorFrom(c *gin.Context) (userdomain.Actor, bool) {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return userdomain.Actor{}, false
	}
	actor, ok := value.(userdomain.Actor)
	if !ok || !actor.Identified() {
		return userdomain.Actor{}, false
	}
	return actor, true
}

func bearerToken(header string) (string, bool) {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(header[7:])
	return raw, raw != ""
}
