package user

import "time"

// LegacyCodePrefix 是早期版本保存访问码时附带的前缀。
const LegacyCodePrefix = "user_"

// Identity 记录访问码与展示名的对应关系，以访问码为主键。
type Identity struct {
	Code        string    `gorm:"primaryKey;size:64" json:"code"`     // 6 位访问码
	DisplayName string    `gorm:"size:128;not null" json:"display_name"` // 展示名，每次登录覆盖
	CreatedAt   time.Time `json:"created_at"`                          // 首次登录时间
	UpdatedAt   time.Time `json:"updated_at"`                          // 最近一次登录时间
}

// TableName 返回身份表名。
func (Identity) TableName() string {
	return "users"
}
