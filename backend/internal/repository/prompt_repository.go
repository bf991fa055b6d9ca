package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrDuplicateDeletionRequest 表示同一访问码已对该 Prompt 提交过删除申请。
var ErrDuplicateDeletionRequest = errors.New("deletion request already exists")

// PromptRepository 封装 prompts 及其子表的读写，每个方法只触达一条 Prompt。
type PromptRepository struct {
	db *gorm.DB
}

// NewPromptRepository 创建 Prompt 仓储。
func NewPromptRepository(db *gorm.DB) *PromptRepository {
	return &PromptRepository{db: db}
}

// AutoMigrate 创建或更新 Prompt 相关的表结构。
func (r *PromptRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&promptdomain.Prompt{},
		&promptdomain.DeletionRequest{},
		&promptdomain.Comment{},
	)
}

// Create 写入新的 Prompt，ID 为空时自动分配 UUID，计数字段一律从 0 开始。
func (r *PromptRepository) Create(ctx context.Context, entity *promptdomain.Prompt) error {
	if entity == nil {
		return errors.New("prompt entity is nil")
	}
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	entity.RatingThumbsUp, entity.RatingHeart, entity.RatingFire, entity.RatingStar, entity.RatingIdea = 0, 0, 0, 0, 0
	entity.UsageCount = 0
	entity.Deleted = false
	entity.DeletedAt = nil
	entity.DeletedBy = ""
	if err := r.db.WithContext(ctx).Omit("DeletionRequests", "Comments").Create(entity).Error; err != nil {
		return fmt.Errorf("create prompt: %w", err)
	}
	return nil
}

// Import 原样写入一条 Prompt（包括计数、时间戳与子表），用于数据迁移。
func (r *PromptRepository) Import(ctx context.Context, entity *promptdomain.Prompt) error {
	if entity == nil {
		return errors.New("prompt entity is nil")
	}
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	for i := range entity.Comments {
		if entity.Comments[i].ID == "" {
			entity.Comments[i].ID = uuid.NewString()
		}
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("import prompt: %w", err)
	}
	return nil
}

// FindByID 按主键读取 Prompt，已软删除的记录同样可以查到。
func (r *PromptRepository) FindByID(ctx context.Context, id string) (*promptdomain.Prompt, error) {
	var entity promptdomain.Prompt
	err := r.preloaded(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// ListAll 返回全部 Prompt（含软删除），按创建时间倒序。
func (r *PromptRepository) ListAll(ctx context.Context) ([]promptdomain.Prompt, error) {
	var items []promptdomain.Prompt
	if err := r.preloaded(ctx).Order("created_at DESC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return items, nil
}

// UpdateContent 覆盖可编辑字段，后写入者生效。
func (r *PromptRepository) UpdateContent(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("update prompt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementReaction 在存储侧原子地为指定反馈计数加一。
func (r *PromptRepository) IncrementReaction(ctx context.Context, id string, symbol string) error {
	column, ok := promptdomain.ReactionColumn(symbol)
	if !ok {
		return fmt.Errorf("unknown reaction %q", symbol)
	}
	return r.increment(ctx, id, column)
}

// IncrementUsage 在存储侧原子地为使用次数加一。
func (r *PromptRepository) IncrementUsage(ctx context.Context, id string) error {
	return r.increment(ctx, id, "usage_count")
}

func (r *PromptRepository) increment(ctx context.Context, id string, column string) error {
	result := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Where("id = ? AND deleted = ?", id, false).
		UpdateColumn(column, gorm.Expr(column+" + 1"))
	if result.Error != nil {
		return fmt.Errorf("increment %s: %w", column, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SoftDelete 标记删除并记录审计字段，记录本身不会被物理删除。
func (r *PromptRepository) SoftDelete(ctx context.Context, id string, deletedBy string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]any{
			"deleted":    true,
			"deleted_at": at,
			"deleted_by": deletedBy,
		})
	if result.Error != nil {
		return fmt.Errorf("soft delete prompt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AppendDeletionRequest 追加一条删除申请；同一访问码重复提交返回 ErrDuplicateDeletionRequest。
func (r *PromptRepository) AppendDeletionRequest(ctx context.Context, req *promptdomain.DeletionRequest) error {
	if req == nil {
		return errors.New("deletion request is nil")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&promptdomain.DeletionRequest{}).
			Where("prompt_id = ? AND requester_code = ?", req.PromptID, req.RequesterCode).
			Count(&count).Error; err != nil {
			return fmt.Errorf("count deletion requests: %w", err)
		}
		if count > 0 {
			return ErrDuplicateDeletionRequest
		}
		if err := tx.Create(req).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateDeletionRequest
			}
			return fmt.Errorf("create deletion request: %w", err)
		}
		return nil
	})
}

// AppendComment 追加一条评论。
func (r *PromptRepository) AppendComment(ctx context.Context, comment *promptdomain.Comment) error {
	if comment == nil {
		return errors.New("comment is nil")
	}
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (r *PromptRepository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("DeletionRequests", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		})
}
