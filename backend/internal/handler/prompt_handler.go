package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	userdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/user"
	response "github.com/antrhizom/prompt-managerin/backend/internal/infra/common"
	appLogger "github.com/antrhizom/prompt-managerin/backend/internal/infra/logger"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/ratelimit"
	"github.com/antrhizom/prompt-managerin/backend/internal/middleware"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/mirror"
	promptsvc "github.com/antrhizom/prompt-managerin/backend/internal/service/prompt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultStreamHeartbeat = 25 * time.Second

// RateLimit 是单个操作的限流阈值，Limit<=0 表示不限流。
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// PromptRateLimits 配置各写操作的限流阈值。
type PromptRateLimits struct {
	Create  RateLimit
	React   RateLimit
	Usage   RateLimit
	Report  RateLimit
	Comment RateLimit
}

// SnapshotWatcher 订阅镜像快照，由 mirror.Mirror 实现。
type SnapshotWatcher interface {
	Watch() (<-chan *mirror.Snapshot, func())
}

// PromptHandler 承接 Prompt 列表、详情与写操作的 HTTP 请求。
type PromptHandler struct {
	service   *promptsvc.Service
	watcher   SnapshotWatcher
	limiter   ratelimit.Limiter
	limits    PromptRateLimits
	logger    *zap.SugaredLogger
	heartbeat time.Duration
}

// NewPromptHandler 创建 PromptHandler。
func NewPromptHandler(service *promptsvc.Service, watcher SnapshotWatcher, limiter ratelimit.Limiter, limits PromptRateLimits) *PromptHandler {
	return &PromptHandler{
		service:   service,
		watcher:   watcher,
		limiter:   limiter,
		limits:    limits,
		logger:    appLogger.Component("prompt.handler"),
		heartbeat: defaultStreamHeartbeat,
	}
}

// promptRequest 是创建与编辑共用的请求体；tags_input 兼容逗号分隔的标签输入框。
type promptRequest struct {
	promptsvc.Draft
	TagsInput string `json:"tags_input"`
}

func (r promptRequest) draft() promptsvc.Draft {
	d := r.Draft
	if strings.TrimSpace(r.TagsInput) != "" {
		d.Tags = append(d.Tags, promptsvc.SplitTags(r.TagsInput)...)
	}
	return d
}

type ratingRequest struct {
	Symbol string `json:"symbol" binding:"required,reaction"`
}

type deletionRequest struct {
	Reason string `json:"reason" binding:"required,max=2000"`
}

type commentRequest struct {
	Text string `json:"text" binding:"required,max=4000"`
}

// List 返回过滤排序后的 Prompt 列表与可选标签。
func (h *PromptHandler) List(c *gin.Context) {
	criteria := promptsvc.CriteriaFromQuery(c.Request.URL.Query())
	result := h.service.List(criteria)
	response.Success(c, http.StatusOK, gin.H{
		"items":    result.Items,
		"tags":     result.Tags,
		"criteria": result.Criteria,
	}, response.MetaList{
		Total:    result.Total,
		Matched:  result.Matched,
		Version:  result.Version,
		SortedBy: string(result.Criteria.SortKey),
	})
}

// Stream 以 SSE 推送过滤后的列表：连接建立时推送一次，之后每次镜像替换都推送一次。
func (h *PromptHandler) Stream(c *gin.Context) {
	log := h.scope("stream")
	if h.watcher == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal, "Live-Aktualisierung ist nicht verfügbar.", nil)
		return
	}
	criteria := promptsvc.CriteriaFromQuery(c.Request.URL.Query())
	updates, cancel := h.watcher.Watch()
	defer cancel()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("prompts", h.service.List(criteria))
	c.Writer.Flush()
	log.Debugw("stream opened", "client", c.ClientIP())

	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case _, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("prompts", h.service.List(criteria))
			return true
		case now := <-heartbeat.C:
			c.SSEvent("heartbeat", now.Unix())
			return true
		}
	})
	log.Debugw("stream closed", "client", c.ClientIP())
}

// Get 返回单条 Prompt，已软删除的记录也可查看。
func (h *PromptHandler) Get(c *gin.Context) {
	id, ok := promptID(c)
	if !ok {
		return
	}
	rec, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "detail", err)
		return
	}
	response.Success(c, http.StatusOK, rec, nil)
}

// Download 以纯文本附件返回 Prompt，并把使用次数加一。
func (h *PromptHandler) Download(c *gin.Context) {
	log := h.scope("download")
	id, ok := promptID(c)
	if !ok {
		return
	}
	if !h.allow(c, "usage", h.limits.Usage) {
		return
	}
	out, err := h.service.ExportText(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "download", err)
		return
	}
	if err := h.service.RecordUsage(c.Request.Context(), id); err != nil {
		log.Warnw("record usage on download failed", "prompt_id", id, "error", err)
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": out.FileName})
	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(out.Body))
}

// Create 新建 Prompt。
func (h *PromptHandler) Create(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "Ungültige Eingabe.", gin.H{"detail": err.Error()})
		return
	}
	if !h.allow(c, "create", h.limits.Create) {
		return
	}
	rec, err := h.service.Create(c.Request.Context(), actorOf(c), req.draft())
	if err != nil {
		h.fail(c, "create", err)
		return
	}
	response.Created(c, rec, nil)
}

// EditDraft 返回作者自己 Prompt 的编辑表单预填值。
func (h *PromptHandler) EditDraft(c *gin.Context) {
	id, ok := promptID(c)
	if !ok {
		return
	}
	draft, err := h.service.EditDraft(c.Request.Context(), actorOf(c), id)
	if err != nil {
		h.fail(c, "edit_draft", err)
		return
	}
	response.Success(c, http.StatusOK, draft, nil)
}

// Update 覆盖作者自己 Prompt 的可编辑字段。
func (h *PromptHandler) Update(c *gin.Context) {
	id, ok := promptID(c)
	if !ok {
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "Ungültige Eingabe.", gin.H{"detail": err.Error()})
		return
	}
	rec, err := h.service.Update(c.Request.Context(), actorOf(c), id, req.draft())
	if err != nil {
		h.fail(c, "update", err)
		return
	}
	response.Success(c, http.StatusOK, rec, nil)
}

// Delete 软删除作者自己的 Prompt。
func (h *PromptHandler) Delete(c *gin.Context) {
	id, ok := promptID(c)
	if !ok {
		return
	}
	if err := h.service.SoftDelete(c.Request.Context(), actorOf(c), id); err != nil {
		h.fail(c, "delete", err)
		return
	}
	response.NoContent(c)
}

// Rate 为 Prompt 增加一个反馈。
func (h *PromptHandler) Rate(c *gin.Context) {
	id, ok := promptID(c)
	if !ok {
		return
	}
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "Unbekannte Bewertung.", fieldErrors(err))
		return
	}
	if !h.allow(c, "react", h.limits.React) {
		return
	}
	if err := h.service.Rate(c.Request.Context(), id, req.Symbol); err != nil {
		h.fail(c, "rate", err)
		return
	}
	response.NoContent(c)
}

// RecordUsage 在复制 Prompt 后把使用次数加一。
func (h *PromptHandler) RecordUsage(c *gin.Context) {
	id, ok := promptID(c)
	if !ok {
		return
	}
	if !h.allow(c, "usage", h.limits.Usage) {
		return
	}
	if err := h.service.RecordUsage(c.Request.Context(), id); err != nil {
		h.fail(c, "usage", err)
		return
	}
	response.NoContent(c)
}

// RequestDeletion 提交删除申请并通知管理员。
func (h *PromptHandler) RequestDeletion(c *gin.Context) {
	id, ok := promptID(c)
	if !ok {
		return
	}
	var req deletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "Bitte gib einen Grund an.", fieldErrors(err))
		return
	}
	if !h.allow(c, "report", h.limits.Report) {
		return
	}
	if err := h.service.RequestDeletion(c.Request.Context(), actorOf(c), id, req.Reason); err != nil {
		h.fail(c, "request_deletion", err)
		return
	}
	response.Created(c, gin.H{"prompt_id": id, "message": "Löschanfrage wurde gestellt."}, nil)
}

// AddComment 追加评论。
func (h *PromptHandler) AddComment(c *gin.Context) {
	id, ok := promptID(c)
	if !ok {
		return
	}
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "Kommentar darf nicht leer sein.", fieldErrors(err))
		return
	}
	if !h.allow(c, "comment", h.limits.Comment) {
		return
	}
	comment, err := h.service.AddComment(c.Request.Context(), actorOf(c), id, req.Text)
	if err != nil {
		h.fail(c, "comment", err)
		return
	}
	response.Created(c, comment, nil)
}

// ModerationQueue 返回存在删除申请的 Prompt。
func (h *PromptHandler) ModerationQueue(c *gin.Context) {
	items := h.service.ModerationQueue()
	response.Success(c, http.StatusOK, gin.H{"items": items}, response.MetaList{Total: len(items), Matched: len(items)})
}

// fail 把业务错误映射为统一响应。
func (h *PromptHandler) fail(c *gin.Context, action string, err error) {
	var verr *promptsvc.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Fail(c, http.StatusBadRequest, response.ErrValidation, verr.Message, gin.H{"field": verr.Field})
	case errors.Is(err, promptsvc.ErrActorRequired):
		response.Fail(c, http.StatusUnauthorized, response.ErrIdentityMissing, "Bitte zuerst mit deinem Zugangscode anmelden.", nil)
	case errors.Is(err, promptsvc.ErrPromptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound, "Prompt nicht gefunden.", nil)
	case errors.Is(err, promptsvc.ErrNotOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, "Nur eigene Prompts können bearbeitet oder gelöscht werden.", nil)
	case errors.Is(err, promptsvc.ErrOwnerRequest):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, "Eigene Prompts kannst du direkt löschen.", nil)
	case errors.Is(err, promptsvc.ErrDuplicateDeletionRequest):
		response.Fail(c, http.StatusConflict, response.ErrConflict, "Du hast bereits eine Löschanfrage für diesen Prompt gestellt.", nil)
	case errors.Is(err, promptsvc.ErrInvalidReaction):
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "Unbekannte Bewertung.", nil)
	case errors.Is(err, promptsvc.ErrReasonEmpty):
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "Bitte gib einen Grund an.", nil)
	case errors.Is(err, promptsvc.ErrCommentEmpty):
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "Kommentar darf nicht leer sein.", nil)
	default:
		h.scope(action).Errorw("prompt operation failed", "prompt_id", c.Param("id"), "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "Aktion fehlgeschlagen. Bitte versuche es später erneut.", nil)
	}
}

// allow 按 "操作:访问码" 限流，匿名请求按客户端 IP 计数；限流器故障时放行。
func (h *PromptHandler) allow(c *gin.Context, operation string, limit RateLimit) bool {
	if h.limiter == nil || limit.Limit <= 0 {
		return true
	}
	subject := c.ClientIP()
	if actor, ok := middleware.ActorFrom(c); ok {
		subject = actor.Code
	}
	key := ratelimit.Key(operation, subject)
	res, err := h.limiter.Allow(c.Request.Context(), key, limit.Limit, limit.Window)
	if err != nil {
		h.logger.Warnw("ratelimit error", "key", key, "error", err)
		return true
	}
	if res.Allowed {
		return true
	}
	retry := int(res.RetryAfter.Seconds())
	response.Fail(c, http.StatusTooManyRequests, response.ErrTooManyRequests, "Zu viele Anfragen. Bitte warte kurz.", gin.H{"retry_after_seconds": retry})
	return false
}

func (h *PromptHandler) scope(action string) *zap.SugaredLogger {
	return h.logger.With("action", action)
}

func promptID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" || len(id) > 64 {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "invalid prompt id", nil)
		return "", false
	}
	return id, true
}

func actorOf(c *gin.Context) userdomain.Actor {
	actor, _ := middleware.ActorFrom(c)
	return actor
}
