package prompt

import "time"

// DeletionNotice 是发给管理员的删除申请通知内容。
type DeletionNotice struct {
	PromptID      string    `json:"prompt_id"`
	PromptTitle   string    `json:"prompt_title"`
	CreatedBy     string    `json:"created_by"`
	RequesterCode string    `json:"requester_code"`
	RequesterName string    `json:"requester_name"`
	Reason        string    `json:"reason"`
	RequestedAt   time.Time `json:"requested_at"`
}
