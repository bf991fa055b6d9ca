package user

import "strings"

// Actor 是当前请求携带的会话身份，只用于归属判断，不是鉴权凭据。
type Actor struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
}

// Identified 表示请求是否带有访问码。
func (a Actor) Identified() bool {
	return strings.TrimSpace(a.Code) != ""
}

// NameOr 返回展示名，为空时返回 fallback。
func (a Actor) NameOr(fallback string) string {
	if name := strings.TrimSpace(a.DisplayName); name != "" {
		return name
	}
	return fallback
}

// Owns 判断 createdBy 是否属于该访问码，兼容带旧前缀 user_ 的历史数据。
func (a Actor) Owns(createdBy string) bool {
	return Owns(createdBy, a.Code)
}

// Owns 判断记录作者字段是否等于 code 或 "user_"+code。
func Owns(createdBy, code string) bool {
	if code == "" {
		return false
	}
	return createdBy == code || createdBy == LegacyCodePrefix+code
}
