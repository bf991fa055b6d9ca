package handler

import (
	"context"
	"errors"
	"net/http"

	response "github.com/antrhizom/prompt-managerin/backend/internal/infra/common"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/captcha"
	appLogger "github.com/antrhizom/prompt-managerin/backend/internal/infra/logger"
	"github.com/antrhizom/prompt-managerin/backend/internal/middleware"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CaptchaIssuer 生成图形验证码，由 captcha.Manager 实现。
type CaptchaIssuer interface {
	Generate(ctx context.Context, subject string) (string, string, error)
}

// SessionHandler 处理访问码申请、查询与登录。
type SessionHandler struct {
	service *session.Service
	captcha CaptchaIssuer
	logger  *zap.SugaredLogger
}

// NewSessionHandler 创建 SessionHandler，captcha 为空时不提供验证码接口。
func NewSessionHandler(service *session.Service, issuer CaptchaIssuer) *SessionHandler {
	return &SessionHandler{
		service: service,
		captcha: issuer,
		logger:  appLogger.Component("session.handler"),
	}
}

type loginRequest struct {
	Code        string `json:"code" binding:"required,access_code"`
	DisplayName string `json:"display_name" binding:"required,max=64"`
}

// Captcha 返回新的图形验证码。
func (h *SessionHandler) Captcha(c *gin.Context) {
	if h.captcha == nil || !h.service.CaptchaEnabled() {
		response.Success(c, http.StatusOK, gin.H{"enabled": false}, nil)
		return
	}
	id, image, err := h.captcha.Generate(c.Request.Context(), c.ClientIP())
	if err != nil {
		if errors.Is(err, captcha.ErrRateLimited) {
			response.Fail(c, http.StatusTooManyRequests, response.ErrTooManyRequests, "Zu viele Anfragen. Bitte warte kurz.", nil)
			return
		}
		h.scope("captcha").Errorw("generate captcha failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "Captcha konnte nicht erstellt werden.", nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"enabled":      true,
		"captcha_id":   id,
		"image_base64": image,
	}, nil)
}

// NewCode 分配一个未使用的访问码。
func (h *SessionHandler) NewCode(c *gin.Context) {
	var answer session.CaptchaAnswer
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&answer); err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "Ungültige Eingabe.", nil)
			return
		}
	}
	code, err := h.service.NewCode(c.Request.Context(), answer)
	if err != nil {
		h.fail(c, "new_code", err)
		return
	}
	response.Created(c, gin.H{"code": code}, nil)
}

// Lookup 返回访问码对应的展示名。
func (h *SessionHandler) Lookup(c *gin.Context) {
	identity, err := h.service.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, "lookup", err)
		return
	}
	response.Success(c, http.StatusOK, identity, nil)
}

// Login 登记访问码与展示名并签发会话令牌。
func (h *SessionHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "Bitte Zugangscode (6 Zeichen) und Namen angeben.", fieldErrors(err))
		return
	}
	result, err := h.service.Login(c.Request.Context(), req.Code, req.DisplayName)
	if err != nil {
		h.fail(c, "login", err)
		return
	}
	response.Success(c, http.StatusOK, result, nil)
}

// Me 返回当前会话身份。
func (h *SessionHandler) Me(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrIdentityMissing, "Bitte zuerst mit deinem Zugangscode anmelden.", nil)
		return
	}
	response.Success(c, http.StatusOK, actor, nil)
}

func (h *SessionHandler) fail(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidCode):
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "Der Zugangscode besteht aus 6 Zeichen (A-Z, 0-9).", nil)
	case errors.Is(err, session.ErrNameRequired):
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, "Bitte gib einen Namen an.", nil)
	case errors.Is(err, session.ErrCodeUnknown):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound, "Zugangscode unbekannt.", nil)
	case errors.Is(err, session.ErrCaptchaRequired):
		response.Fail(c, http.StatusBadRequest, response.ErrCaptchaRequired, "Bitte löse zuerst das Captcha.", nil)
	case errors.Is(err, session.ErrCaptchaInvalid):
		response.Fail(c, http.StatusBadRequest, response.ErrCaptchaInvalid, "Captcha falsch oder abgelaufen.", nil)
	case errors.Is(err, session.ErrCodeSpaceCrowded):
		h.scope(action).Warnw("no free access code", "error", err)
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal, "Kein freier Zugangscode gefunden. Bitte erneut versuchen.", nil)
	default:
		h.scope(action).Errorw("session operation failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "Aktion fehlgeschlagen. Bitte versuche es später erneut.", nil)
	}
}

func (h *SessionHandler) scope(action string) *zap.SugaredLogger {
	return h.logger.With("action", action)
}
