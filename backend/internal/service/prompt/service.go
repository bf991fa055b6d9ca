package prompt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
	userdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/user"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/livequery"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/metrics"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/tracing"
	"github.com/antrhizom/prompt-managerin/backend/internal/repository"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/mirror"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrPromptNotFound           = errors.New("prompt not found")
	ErrNotOwner                 = errors.New("prompt belongs to another contributor")
	ErrOwnerRequest             = errors.New("owners delete their prompts directly")
	ErrDuplicateDeletionRequest = errors.New("deletion already requested by this code")
	ErrInvalidReaction          = errors.New("unknown reaction symbol")
	ErrActorRequired            = errors.New("access code required")
	ErrCommentEmpty             = errors.New("comment text required")
	ErrReasonEmpty              = errors.New("deletion reason required")
)

const (
	anonymousName       = "Anonym"
	notificationTimeout = 30 * time.Second
)

// Store 是 Record Store 的写入与按 ID 读取能力，由 repository.PromptRepository 实现。
type Store interface {
	Create(ctx context.Context, entity *promptdomain.Prompt) error
	Import(ctx context.Context, entity *promptdomain.Prompt) error
	FindByID(ctx context.Context, id string) (*promptdomain.Prompt, error)
	UpdateContent(ctx context.Context, id string, fields map[string]any) error
	IncrementReaction(ctx context.Context, id string, symbol string) error
	IncrementUsage(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string, deletedBy string, at time.Time) error
	AppendDeletionRequest(ctx context.Context, req *promptdomain.DeletionRequest) error
	AppendComment(ctx context.Context, comment *promptdomain.Comment) error
}

// Publisher 发布集合变更信号。
type Publisher interface {
	Publish(ctx context.Context, ev livequery.Event) error
}

// SnapshotSource 提供本地镜像的当前快照。
type SnapshotSource interface {
	Snapshot() *mirror.Snapshot
}

// CatalogSource 提供当前生效的枚举目录。
type CatalogSource interface {
	Get() promptdomain.Catalog
}

// Notifier 把删除申请转发给管理员。
type Notifier interface {
	Name() string
	NotifyDeletionRequest(ctx context.Context, notice promptdomain.DeletionNotice) error
}

// Service 实现 Prompt 的写操作与基于镜像的读取。写操作只落库并发布变更信号，从不修改镜像。
type Service struct {
	store     Store
	events    Publisher
	snapshots SnapshotSource
	catalog   CatalogSource
	notifiers []Notifier
	logger    *zap.SugaredLogger
	now       func() time.Time

	pending sync.WaitGroup
}

// NewService 构建 Service，logger 为空时使用 Nop。
func NewService(store Store, events Publisher, snapshots SnapshotSource, catalog CatalogSource, logger *zap.SugaredLogger, notifiers ...Notifier) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:     store,
		events:    events,
		snapshots: snapshots,
		catalog:   catalog,
		notifiers: notifiers,
		logger:    logger,
		now:       time.Now,
	}
}

// ListResult 是列表接口的返回结构。
type ListResult struct {
	Items    []promptdomain.Record `json:"items"`
	Tags     []string              `json:"tags"`
	Total    int                   `json:"total"`
	Matched  int                   `json:"matched"`
	Version  uint64                `json:"version"`
	Criteria Criteria              `json:"criteria"`
}

// List 在当前快照上执行过滤与排序。
func (s *Service) List(criteria Criteria) ListResult {
	snap := s.snapshots.Snapshot()
	if criteria.SortKey == "" {
		criteria.SortKey = SortRecency
	}
	items := Apply(snap.Records, criteria, s.catalog.Get().Taxonomy())
	return ListResult{
		Items:    items,
		Tags:     AllTags(snap.Records),
		Total:    len(snap.Records),
		Matched:  len(items),
		Version:  snap.Version,
		Criteria: criteria,
	}
}

// Get 直接从 Record Store 读取，已软删除的记录也可按 ID 查看。
func (s *Service) Get(ctx context.Context, id string) (promptdomain.Record, error) {
	entity, err := s.find(ctx, id)
	if err != nil {
		return promptdomain.Record{}, err
	}
	return entity.Record(), nil
}

// ModerationQueue 返回仍可见且存在删除申请的记录，按最新申请时间倒序。
func (s *Service) ModerationQueue() []promptdomain.Record {
	snap := s.snapshots.Snapshot()
	out := make([]promptdomain.Record, 0)
	for _, rec := range snap.Records {
		if len(rec.DeletionRequests) > 0 {
			out = append(out, rec)
		}
	}
	latest := func(rec promptdomain.Record) time.Time {
		var ts time.Time
		for _, req := range rec.DeletionRequests {
			if req.Timestamp.After(ts) {
				ts = req.Timestamp
			}
		}
		return ts
	}
	sort.SliceStable(out, func(i, j int) bool { return latest(out[i]).After(latest(out[j])) })
	return out
}

// Create 校验草稿并新建记录，计数清零，创建时间由存储写入。
func (s *Service) Create(ctx context.Context, actor userdomain.Actor, draft Draft) (promptdomain.Record, error) {
	ctx, finish := s.begin(ctx, "create", "")
	var err error
	defer func() { finish(err) }()

	if !actor.Identified() {
		err = ErrActorRequired
		return promptdomain.Record{}, err
	}
	draft = draft.Normalize()
	if err = draft.Validate(s.catalog.Get(), nil); err != nil {
		return promptdomain.Record{}, err
	}

	entity := draft.entity(actor.Code)
	if err = s.store.Create(ctx, entity); err != nil {
		return promptdomain.Record{}, err
	}
	s.publish(ctx, livequery.EventCreated, entity.ID)
	s.logger.Infow("prompt created", "prompt_id", entity.ID, "created_by", actor.Code)
	return entity.Record(), nil
}

// EditDraft 以作者自己的记录预填编辑表单。
func (s *Service) EditDraft(ctx context.Context, actor userdomain.Actor, id string) (Draft, error) {
	if !actor.Identified() {
		return Draft{}, ErrActorRequired
	}
	entity, err := s.findVisible(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if !actor.Owns(entity.CreatedBy) {
		return Draft{}, ErrNotOwner
	}
	return DraftFromRecord(entity.Record()), nil
}

// Update 仅允许作者覆盖可编辑字段，并发编辑以最后一次写入为准。
func (s *Service) Update(ctx context.Context, actor userdomain.Actor, id string, draft Draft) (promptdomain.Record, error) {
	ctx, finish := s.begin(ctx, "update", id)
	var err error
	defer func() { finish(err) }()

	if !actor.Identified() {
		err = ErrActorRequired
		return promptdomain.Record{}, err
	}
	var entity *promptdomain.Prompt
	if entity, err = s.findVisible(ctx, id); err != nil {
		return promptdomain.Record{}, err
	}
	if !actor.Owns(entity.CreatedBy) {
		err = ErrNotOwner
		return promptdomain.Record{}, err
	}
	draft = draft.Normalize()
	if err = draft.Validate(s.catalog.Get(), entity.Record().OutputFormats); err != nil {
		return promptdomain.Record{}, err
	}
	if err = s.mapNotFound(s.store.UpdateContent(ctx, id, draft.contentFields())); err != nil {
		return promptdomain.Record{}, err
	}
	s.publish(ctx, livequery.EventUpdated, id)

	draft.applyTo(entity)
	return entity.Record(), nil
}

// Rate 对指定反馈符号做存储端原子加一。
func (s *Service) Rate(ctx context.Context, id string, symbol string) error {
	ctx, finish := s.begin(ctx, "rate", id)
	var err error
	defer func() { finish(err) }()

	if !promptdomain.IsReaction(symbol) {
		err = ErrInvalidReaction
		return err
	}
	if err = s.mapNotFound(s.store.IncrementReaction(ctx, id, symbol)); err != nil {
		return err
	}
	s.publish(ctx, livequery.EventRated, id)
	return nil
}

// RecordUsage 在复制或下载时对使用次数做原子加一。
func (s *Service) RecordUsage(ctx context.Context, id string) error {
	ctx, finish := s.begin(ctx, "usage", id)
	var err error
	defer func() { finish(err) }()

	if err = s.mapNotFound(s.store.IncrementUsage(ctx, id)); err != nil {
		return err
	}
	s.publish(ctx, livequery.EventUsed, id)
	return nil
}

// SoftDelete 由作者标记删除，记录保留以便审计。
func (s *Service) SoftDelete(ctx context.Context, actor userdomain.Actor, id string) error {
	ctx, finish := s.begin(ctx, "soft_delete", id)
	var err error
	defer func() { finish(err) }()

	if !actor.Identified() {
		err = ErrActorRequired
		return err
	}
	var entity *promptdomain.Prompt
	if entity, err = s.findVisible(ctx, id); err != nil {
		return err
	}
	if !actor.Owns(entity.CreatedBy) {
		err = ErrNotOwner
		return err
	}
	if err = s.mapNotFound(s.store.SoftDelete(ctx, id, actor.Code, s.now())); err != nil {
		return err
	}
	s.publish(ctx, livequery.EventDeleted, id)
	s.logger.Infow("prompt soft deleted", "prompt_id", id, "deleted_by", actor.Code)
	return nil
}

// RequestDeletion 由非作者提交删除申请，每个访问码对同一记录只能申请一次。
// 写入成功后异步通知管理员，通知失败不影响结果。
func (s *Service) RequestDeletion(ctx context.Context, actor userdomain.Actor, id string, reason string) error {
	ctx, finish := s.begin(ctx, "request_deletion", id)
	var err error
	defer func() { finish(err) }()

	if !actor.Identified() {
		err = ErrActorRequired
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		err = ErrReasonEmpty
		return err
	}
	var entity *promptdomain.Prompt
	if entity, err = s.findVisible(ctx, id); err != nil {
		return err
	}
	if actor.Owns(entity.CreatedBy) {
		err = ErrOwnerRequest
		return err
	}
	for _, existing := range entity.DeletionRequests {
		if existing.RequesterCode == actor.Code {
			err = ErrDuplicateDeletionRequest
			return err
		}
	}

	req := &promptdomain.DeletionRequest{
		PromptID:      id,
		RequesterCode: actor.Code,
		RequesterName: actor.NameOr(anonymousName),
		Reason:        reason,
		CreatedAt:     s.now(),
	}
	if err = s.store.AppendDeletionRequest(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicateDeletionRequest) {
			err = ErrDuplicateDeletionRequest
		}
		return err
	}
	s.publish(ctx, livequery.EventDeletionRequested, id)
	s.notify(ctx, promptdomain.DeletionNotice{
		PromptID:      id,
		PromptTitle:   entity.Title,
		CreatedBy:     entity.CreatedBy,
		RequesterCode: req.RequesterCode,
		RequesterName: req.RequesterName,
		Reason:        req.Reason,
		RequestedAt:   req.CreatedAt,
	})
	return nil
}

// AddComment 追加一条评论。
func (s *Service) AddComment(ctx context.Context, actor userdomain.Actor, id string, text string) (promptdomain.CommentEntry, error) {
	ctx, finish := s.begin(ctx, "comment", id)
	var err error
	defer func() { finish(err) }()

	if !actor.Identified() {
		err = ErrActorRequired
		return promptdomain.CommentEntry{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		err = ErrCommentEmpty
		return promptdomain.CommentEntry{}, err
	}
	if _, err = s.findVisible(ctx, id); err != nil {
		return promptdomain.CommentEntry{}, err
	}
	comment := &promptdomain.Comment{
		ID:         uuid.NewString(),
		PromptID:   id,
		AuthorCode: actor.Code,
		AuthorName: actor.NameOr(anonymousName),
		Text:       text,
		CreatedAt:  s.now(),
	}
	if err = s.store.AppendComment(ctx, comment); err != nil {
		return promptdomain.CommentEntry{}, err
	}
	s.publish(ctx, livequery.EventCommented, id)
	return promptdomain.CommentEntry{
		ID:         comment.ID,
		AuthorCode: comment.AuthorCode,
		AuthorName: comment.AuthorName,
		Text:       comment.Text,
		Timestamp:  comment.CreatedAt,
	}, nil
}

// Wait 等待尚未完成的通知投递，用于优雅退出与测试。
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) notify(ctx context.Context, notice promptdomain.DeletionNotice) {
	if len(s.notifiers) == 0 {
		s.logger.Infow("deletion requested, no notifier configured", "prompt_id", notice.PromptID, "requester", notice.RequesterCode)
		return
	}
	base := context.WithoutCancel(ctx)
	for _, n := range s.notifiers {
		s.pending.Add(1)
		go func(n Notifier) {
			defer s.pending.Done()
			nctx, cancel := context.WithTimeout(base, notificationTimeout)
			defer cancel()
			if err := n.NotifyDeletionRequest(nctx, notice); err != nil {
				metrics.RecordNotification(n.Name(), "error")
				s.logger.Warnw("deletion notice failed", "channel", n.Name(), "prompt_id", notice.PromptID, "error", err)
				return
			}
			metrics.RecordNotification(n.Name(), "success")
		}(n)
	}
}

func (s *Service) publish(ctx context.Context, kind livequery.EventKind, id string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, livequery.Event{Kind: kind, PromptID: id}); err != nil {
		s.logger.Warnw("publish change event failed", "kind", kind, "prompt_id", id, "error", err)
	}
}

// begin 开启 span，返回的 finish 负责记录指标并结束 span。
func (s *Service) begin(ctx context.Context, op string, id string) (context.Context, func(error)) {
	ctx, span := tracing.Start(ctx, "prompt."+op, attribute.String("prompt.id", id))
	return ctx, func(err error) {
		result := "success"
		var verr *ValidationError
		switch {
		case err == nil:
		case errors.As(err, &verr):
			result = "invalid"
		case errors.Is(err, ErrPromptNotFound), errors.Is(err, ErrNotOwner), errors.Is(err, ErrOwnerRequest),
			errors.Is(err, ErrDuplicateDeletionRequest), errors.Is(err, ErrInvalidReaction),
			errors.Is(err, ErrActorRequired), errors.Is(err, ErrCommentEmpty), errors.Is(err, ErrReasonEmpty):
			result = "rejected"
		default:
			result = "error"
			tracing.Fail(span, err)
		}
		metrics.RecordMutation(op, result)
		span.End()
	}
}

func (s *Service) find(ctx context.Context, id string) (*promptdomain.Prompt, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrPromptNotFound
	}
	entity, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapNotFound(err)
	}
	return entity, nil
}

func (s *Service) findVisible(ctx context.Context, id string) (*promptdomain.Prompt, error) {
	entity, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity.Deleted {
		return nil, ErrPromptNotFound
	}
	return entity, nil
}

func (s *Service) mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPromptNotFound
	}
	if err != nil {
		return fmt.Errorf("prompt store: %w", err)
	}
	return nil
}
