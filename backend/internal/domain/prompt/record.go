package prompt

import (
	"sort"
	"time"
)

// CoreFields 是每条 Prompt 都具备的字段。
type CoreFields struct {
	ID                        string              `json:"id"`
	Title                     string              `json:"title"`
	Description               string              `json:"description"`
	PromptText                string              `json:"prompt_text"`
	SupplementaryInstructions string              `json:"supplementary_instructions"`
	Comment                   string              `json:"comment"`
	PlatformsAndModels        map[string][]string `json:"platforms_and_models"`
	OutputFormats             []string            `json:"output_formats"`
	UseCases                  []string            `json:"use_cases"`
	Tags                      []string            `json:"tags"`
	Ratings                   map[string]int64    `json:"ratings"`
	UsageCount                int64               `json:"usage_count"`
	CreatedBy                 string              `json:"created_by"`
	CreatedByRole             string              `json:"created_by_role"`
	CreatedAt                 time.Time           `json:"created_at"`
	Deleted                   bool                `json:"deleted"`
	DeletedAt                 *time.Time          `json:"deleted_at,omitempty"`
	DeletedBy                 string              `json:"deleted_by,omitempty"`
	DeletionRequests          []DeletionEntry     `json:"deletion_requests"`
}

// OptionalFields 是随数据演进陆续加入的字段，缺失时保持零值。
type OptionalFields struct {
	PlatformFeatures    map[string][]string `json:"platform_features,omitempty"`
	EducationLevel      string              `json:"education_level,omitempty"`
	Comments            []CommentEntry      `json:"comments,omitempty"`
	Links               string              `json:"links,omitempty"`
	ProblemStatement    string              `json:"problem_statement,omitempty"`
	SolutionDescription string              `json:"solution_description,omitempty"`
	Difficulties        string              `json:"difficulties,omitempty"`
	FinalProductLink    string              `json:"final_product_link,omitempty"`
}

// Record 是 Prompt 的只读视图，过滤、排序与统计都基于它计算。
type Record struct {
	CoreFields
	OptionalFields

	// platformOrder 是 platforms_and_models 在存储中的键顺序。
	platformOrder []string
}

// DeletionEntry 是删除申请的视图结构。
type DeletionEntry struct {
	RequesterCode string    `json:"requester_code"`
	RequesterName string    `json:"requester_name"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// CommentEntry 是评论的视图结构。
type CommentEntry struct {
	ID         string    `json:"id"`
	AuthorCode string    `json:"author_code"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// RatingSum 汇总 ratings 中全部计数，缺失的符号按 0 计。
func (r Record) RatingSum() int64 {
	var sum int64
	for _, count := range r.Ratings {
		sum += count
	}
	return sum
}

// Platforms 按存储时的键顺序返回平台名，顺序信息缺失或不一致时按字母序。
func (r Record) Platforms() []string {
	if len(r.platformOrder) == len(r.PlatformsAndModels) {
		consistent := true
		for _, name := range r.platformOrder {
			if _, ok := r.PlatformsAndModels[name]; !ok {
				consistent = false
				break
			}
		}
		if consistent {
			return append([]string(nil), r.platformOrder...)
		}
	}
	names := make([]string, 0, len(r.PlatformsAndModels))
	for name := range r.PlatformsAndModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasDeletionRequestFrom 判断指定访问码是否已经提交过删除申请。
func (r Record) HasDeletionRequestFrom(code string) bool {
	for _, req := range r.DeletionRequests {
		if req.RequesterCode == code {
			return true
		}
	}
	return false
}
