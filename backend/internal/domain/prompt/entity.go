package prompt

import (
	"bytes"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 固定的五个反馈符号，顺序即前端展示顺序。
const (
	ReactionThumbsUp = "👍"
	ReactionHeart    = "❤️"
	ReactionFire     = "🔥"
	ReactionStar     = "⭐"
	ReactionIdea     = "💡"
)

// Reactions 返回全部反馈符号，调用方可以安全修改返回的切片。
func Reactions() []string {
	return []string{ReactionThumbsUp, ReactionHeart, ReactionFire, ReactionStar, ReactionIdea}
}

// IsReaction 判断符号是否属于固定的五个反馈之一。
func IsReaction(symbol string) bool {
	_, ok := reactionColumns[symbol]
	return ok
}

// ReactionColumn 返回反馈符号对应的计数列名。
func ReactionColumn(symbol string) (string, bool) {
	column, ok := reactionColumns[symbol]
	return column, ok
}

var reactionColumns = map[string]string{
	ReactionThumbsUp: "rating_thumbs_up",
	ReactionHeart:    "rating_heart",
	ReactionFire:     "rating_fire",
	ReactionStar:     "rating_star",
	ReactionIdea:     "rating_idea",
}

// Prompt 是 prompts 表的持久化结构，列表/映射字段以 JSON 列存储。
type Prompt struct {
	ID                        string         `gorm:"primaryKey;size:36"`                   // UUID 主键，创建时由仓储分配。
	Title                     string         `gorm:"size:255;not null"`                    // 标题，必填。
	Description               string         `gorm:"type:text"`                            // 简短描述。
	PromptText                string         `gorm:"type:text;not null"`                   // Prompt 正文，必填。
	SupplementaryInstructions string         `gorm:"type:text"`                            // 补充说明。
	Comment                   string         `gorm:"type:text"`                            // 作者备注。
	PlatformsAndModels        datatypes.JSON `gorm:"type:json"`                            // 平台 -> 模型列表。
	PlatformFeatures          datatypes.JSON `gorm:"type:json"`                            // 平台 -> 功能列表，可为空。
	OutputFormats             datatypes.JSON `gorm:"type:json"`                            // 输出格式列表。
	UseCases                  datatypes.JSON `gorm:"type:json"`                            // 应用场景标签（分类或子分类）。
	Tags                      datatypes.JSON `gorm:"type:json"`                            // 自由标签。
	RatingThumbsUp            int64          `gorm:"not null;default:0"`                   // 👍 计数。
	RatingHeart               int64          `gorm:"not null;default:0"`                   // ❤️ 计数。
	RatingFire                int64          `gorm:"not null;default:0"`                   // 🔥 计数。
	RatingStar                int64          `gorm:"not null;default:0"`                   // ⭐ 计数。
	RatingIdea                int64          `gorm:"not null;default:0"`                   // 💡 计数。
	UsageCount                int64          `gorm:"not null;default:0"`                   // 复制/下载次数。
	CreatedBy                 string         `gorm:"size:64;index"`                        // 作者访问码（可能带旧前缀 user_）。
	CreatedByRole             string         `gorm:"size:128"`                             // 作者角色。
	EducationLevel            string         `gorm:"size:128"`                             // 教育阶段，可为空。
	Links                     string         `gorm:"type:text"`                            // 参考链接。
	ProblemStatement          string         `gorm:"type:text"`                            // 问题描述。
	SolutionDescription       string         `gorm:"type:text"`                            // 解决思路。
	Difficulties              string         `gorm:"type:text"`                            // 遇到的困难。
	FinalProductLink          string         `gorm:"type:text"`                            // 成品链接。
	Deleted                   bool           `gorm:"not null;default:false;index"`         // 软删除标记。
	DeletedAt                 *time.Time     // 软删除时间。
	DeletedBy                 string         `gorm:"size:64"`                              // 执行软删除的访问码。
	CreatedAt                 time.Time      `gorm:"index"`                                // 创建时间，由存储写入。
	UpdatedAt                 time.Time      // 最近更新时间。

	DeletionRequests []DeletionRequest `gorm:"foreignKey:PromptID;constraint:OnDelete:CASCADE"`
	Comments         []Comment         `gorm:"foreignKey:PromptID;constraint:OnDelete:CASCADE"`
}

// TableName 返回 Prompt 表名。
func (Prompt) TableName() string {
	return "prompts"
}

// DeletionRequest 记录非作者提交的删除申请，同一访问码对同一 Prompt 只能提交一次。
type DeletionRequest struct {
	ID            uint      `gorm:"primaryKey"`
	PromptID      string    `gorm:"size:36;not null;uniqueIndex:uk_deletion_request_prompt_requester,priority:1"`
	RequesterCode string    `gorm:"size:64;not null;uniqueIndex:uk_deletion_request_prompt_requester,priority:2"`
	RequesterName string    `gorm:"size:128"`
	Reason        string    `gorm:"type:text;not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// TableName 返回删除申请表名。
func (DeletionRequest) TableName() string {
	return "prompt_deletion_requests"
}

// Comment 是只追加的评论记录。
type Comment struct {
	ID         string    `gorm:"primaryKey;size:36"`
	PromptID   string    `gorm:"size:36;not null;index:idx_prompt_comments_prompt"`
	AuthorCode string    `gorm:"size:64;not null"`
	AuthorName string    `gorm:"size:128"`
	Text       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName 返回评论表名。
func (Comment) TableName() string {
	return "prompt_comments"
}

// RatingSum 返回所有反馈计数之和。
func (p *Prompt) RatingSum() int64 {
	if p == nil {
		return 0
	}
	return p.RatingThumbsUp + p.RatingHeart + p.RatingFire + p.RatingStar + p.RatingIdea
}

// Ratings 以符号为键返回反馈计数，始终包含五个符号。
func (p *Prompt) Ratings() map[string]int64 {
	ratings := make(map[string]int64, len(reactionColumns))
	for _, symbol := range Reactions() {
		ratings[symbol] = 0
	}
	if p == nil {
		return ratings
	}
	ratings[ReactionThumbsUp] = p.RatingThumbsUp
	ratings[ReactionHeart] = p.RatingHeart
	ratings[ReactionFire] = p.RatingFire
	ratings[ReactionStar] = p.RatingStar
	ratings[ReactionIdea] = p.RatingIdea
	return ratings
}

// Record 将持久化实体解码为只读视图。JSON 列损坏时按空值处理，不返回错误。
func (p *Prompt) Record() Record {
	if p == nil {
		return Record{}
	}
	rec := Record{
		CoreFields: CoreFields{
			ID:                        p.ID,
			Title:                     p.Title,
			Description:               p.Description,
			PromptText:                p.PromptText,
			SupplementaryInstructions: p.SupplementaryInstructions,
			Comment:                   p.Comment,
			PlatformsAndModels:        decodeStringSetMap(p.PlatformsAndModels),
			OutputFormats:             decodeStrings(p.OutputFormats),
			UseCases:                  decodeStrings(p.UseCases),
			Tags:                      decodeStrings(p.Tags),
			Ratings:                   p.Ratings(),
			UsageCount:                p.UsageCount,
			CreatedBy:                 p.CreatedBy,
			CreatedByRole:             p.CreatedByRole,
			CreatedAt:                 p.CreatedAt,
			Deleted:                   p.Deleted,
			DeletedAt:                 p.DeletedAt,
			DeletedBy:                 p.DeletedBy,
			DeletionRequests:          make([]DeletionEntry, 0, len(p.DeletionRequests)),
		},
		OptionalFields: OptionalFields{
			PlatformFeatures:    decodeStringSetMap(p.PlatformFeatures),
			EducationLevel:      p.EducationLevel,
			Comments:            make([]CommentEntry, 0, len(p.Comments)),
			Links:               p.Links,
			ProblemStatement:    p.ProblemStatement,
			SolutionDescription: p.SolutionDescription,
			Difficulties:        p.Difficulties,
			FinalProductLink:    p.FinalProductLink,
		},
	}
	rec.platformOrder = decodeKeyOrder(p.PlatformsAndModels)
	for _, req := range p.DeletionRequests {
		rec.DeletionRequests = append(rec.DeletionRequests, DeletionEntry{
			RequesterCode: req.RequesterCode,
			RequesterName: req.RequesterName,
			Reason:        req.Reason,
			Timestamp:     req.CreatedAt,
		})
	}
	for _, c := range p.Comments {
		rec.Comments = append(rec.Comments, CommentEntry{
			ID:         c.ID,
			AuthorCode: c.AuthorCode,
			AuthorName: c.AuthorName,
			Text:       c.Text,
			Timestamp:  c.CreatedAt,
		})
	}
	return rec
}

// EncodeJSON 把切片或映射编码为 JSON 列值，nil 会写成空数组/空对象。
func EncodeJSON(value any) datatypes.JSON {
	switch v := value.(type) {
	case []string:
		if v == nil {
			return datatypes.JSON("[]")
		}
	case map[string][]string:
		if v == nil {
			return datatypes.JSON("{}")
		}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(raw)
}

func decodeStrings(raw datatypes.JSON) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return out
	}
	return items
}

func decodeStringSetMap(raw datatypes.JSON) map[string][]string {
	out := map[string][]string{}
	if len(raw) == 0 {
		return out
	}
	var items map[string][]string
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for key, values := range items {
		if values == nil {
			values = []string{}
		}
		out[key] = values
	}
	return out
}

// decodeKeyOrder 按出现顺序返回 JSON 对象的键，重复键只保留第一次。
func decodeKeyOrder(raw datatypes.JSON) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	var keys []string
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}
