package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/antrhizom/prompt-managerin/backend/internal/domain/user"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 维护访问码与展示名的映射。
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建身份仓储实例，接收共享的 *gorm.DB。
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// AutoMigrate 创建或更新 users 表。
func (r *UserRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&user.Identity{})
}

// FindByCode 通过访问码查找身份，不存在时返回 gorm.ErrRecordNotFound。
func (r *UserRepository) FindByCode(ctx context.Context, code string) (*user.Identity, error) {
	var identity user.Identity
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&identity).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

// Exists 判断访问码是否已被占用。
func (r *UserRepository) Exists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&user.Identity{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count identity: %w", err)
	}
	return count > 0, nil
}

// Upsert 首次登录时创建身份，之后的登录覆盖展示名。
func (r *UserRepository) Upsert(ctx context.Context, code string, displayName string) (*user.Identity, error) {
	now := time.Now()
	identity := user.Identity{
		Code:        code,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "updated_at"}),
		}).
		Create(&identity).Error
	if err != nil {
		return nil, fmt.Errorf("upsert identity: %w", err)
	}
	return r.FindByCode(ctx, code)
}
