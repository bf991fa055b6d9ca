package prompt

import (
	"fmt"
	"sort"
	"strings"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
)

// ValidationError 描述一个必填项或取值校验失败，Message 直接展示给用户。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Draft 是创建或编辑表单提交的全部字段。
type Draft struct {
	Title                     string              `json:"title" yaml:"title"`
	Description               string              `json:"description" yaml:"description"`
	PromptText                string              `json:"prompt_text" yaml:"prompt_text"`
	SupplementaryInstructions string              `json:"supplementary_instructions" yaml:"supplementary_instructions"`
	Comment                   string              `json:"comment" yaml:"comment"`
	PlatformsAndModels        map[string][]string `json:"platforms_and_models" yaml:"platforms_and_models"`
	PlatformFeatures          map[string][]string `json:"platform_features" yaml:"platform_features"`
	OutputFormats             []string            `json:"output_formats" yaml:"output_formats"`
	UseCases                  []string            `json:"use_cases" yaml:"use_cases"`
	Tags                      []string            `json:"tags" yaml:"tags"`
	Role                      string              `json:"role" yaml:"role"`
	EducationLevel            string              `json:"education_level" yaml:"education_level"`
	Links                     string              `json:"links" yaml:"links"`
	ProblemStatement          string              `json:"problem_statement" yaml:"problem_statement"`
	SolutionDescription       string              `json:"solution_description" yaml:"solution_description"`
	Difficulties              string              `json:"difficulties" yaml:"difficulties"`
	FinalProductLink          string              `json:"final_product_link" yaml:"final_product_link"`
}

// SplitTags 按逗号拆分标签输入并去掉空项。
func SplitTags(raw string) []string {
	tags := []string{}
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

// Normalize 修剪文本字段，去掉空模型列表的平台以及重复或空白的标签。
func (d Draft) Normalize() Draft {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.PromptText = strings.TrimSpace(d.PromptText)
	d.SupplementaryInstructions = strings.TrimSpace(d.SupplementaryInstructions)
	d.Comment = strings.TrimSpace(d.Comment)
	d.Role = strings.TrimSpace(d.Role)
	d.EducationLevel = strings.TrimSpace(d.EducationLevel)
	d.Links = strings.TrimSpace(d.Links)
	d.ProblemStatement = strings.TrimSpace(d.ProblemStatement)
	d.SolutionDescription = strings.TrimSpace(d.SolutionDescription)
	d.Difficulties = strings.TrimSpace(d.Difficulties)
	d.FinalProductLink = strings.TrimSpace(d.FinalProductLink)
	d.PlatformsAndModels = compactSetMap(d.PlatformsAndModels)
	d.PlatformFeatures = compactSetMap(d.PlatformFeatures)
	d.OutputFormats = compactList(d.OutputFormats)
	d.UseCases = compactList(d.UseCases)
	d.Tags = compactList(d.Tags)
	return d
}

// Validate 检查必填项。输出格式必须来自目录，kept 中的格式（编辑时记录原有的值）除外。
// 应先调用 Normalize。
func (d Draft) Validate(catalog promptdomain.Catalog, kept []string) error {
	switch {
	case d.Title == "" || d.PromptText == "":
		field := "title"
		if d.Title != "" {
			field = "prompt_text"
		}
		return &ValidationError{Field: field, Message: "Titel und Prompt-Text sind Pflichtfelder!"}
	case d.Role == "":
		return &ValidationError{Field: "role", Message: "Bitte wähle deine Rolle aus!"}
	case len(d.PlatformsAndModels) == 0:
		return &ValidationError{Field: "platforms_and_models", Message: "Bitte mindestens eine Plattform mit Modell auswählen!"}
	case len(d.OutputFormats) == 0:
		return &ValidationError{Field: "output_formats", Message: "Bitte mindestens ein Output-Format auswählen!"}
	case len(d.UseCases) == 0:
		return &ValidationError{Field: "use_cases", Message: "Bitte mindestens einen Anwendungsfall auswählen!"}
	}
	for _, format := range d.OutputFormats {
		if !catalog.HasOutputFormat(format) && !contains(kept, format) {
			return &ValidationError{Field: "output_formats", Message: fmt.Sprintf("Unbekanntes Output-Format: %s", format)}
		}
	}
	return nil
}

// contentFields 返回编辑时整体覆盖的列。
func (d Draft) contentFields() map[string]any {
	return map[string]any{
		"title":                      d.Title,
		"description":                d.Description,
		"prompt_text":                d.PromptText,
		"supplementary_instructions": d.SupplementaryInstructions,
		"comment":                    d.Comment,
		"platforms_and_models":       promptdomain.EncodeJSON(d.PlatformsAndModels),
		"platform_features":          promptdomain.EncodeJSON(d.PlatformFeatures),
		"output_formats":             promptdomain.EncodeJSON(d.OutputFormats),
		"use_cases":                  promptdomain.EncodeJSON(d.UseCases),
		"tags":                       promptdomain.EncodeJSON(d.Tags),
		"created_by_role":            d.Role,
		"education_level":            d.EducationLevel,
		"links":                      d.Links,
		"problem_statement":          d.ProblemStatement,
		"solution_description":       d.SolutionDescription,
		"difficulties":               d.Difficulties,
		"final_product_link":         d.FinalProductLink,
	}
}

// entity 构造新建记录，计数与删除标记由仓储清零。
func (d Draft) entity(createdBy string) *promptdomain.Prompt {
	return &promptdomain.Prompt{
		Title:                     d.Title,
		Description:               d.Description,
		PromptText:                d.PromptText,
		SupplementaryInstructions: d.SupplementaryInstructions,
		Comment:                   d.Comment,
		PlatformsAndModels:        promptdomain.EncodeJSON(d.PlatformsAndModels),
		PlatformFeatures:          promptdomain.EncodeJSON(d.PlatformFeatures),
		OutputFormats:             promptdomain.EncodeJSON(d.OutputFormats),
		UseCases:                  promptdomain.EncodeJSON(d.UseCases),
		Tags:                      promptdomain.EncodeJSON(d.Tags),
		CreatedBy:                 createdBy,
		CreatedByRole:             d.Role,
		EducationLevel:            d.EducationLevel,
		Links:                     d.Links,
		ProblemStatement:          d.ProblemStatement,
		SolutionDescription:       d.SolutionDescription,
		Difficulties:              d.Difficulties,
		FinalProductLink:          d.FinalProductLink,
	}
}

// applyTo 把可编辑字段写回已加载的实体，计数、作者与删除状态保持不变。
func (d Draft) applyTo(entity *promptdomain.Prompt) {
	fresh := d.entity(entity.CreatedBy)
	fresh.ID = entity.ID
	fresh.RatingThumbsUp = entity.RatingThumbsUp
	fresh.RatingHeart = entity.RatingHeart
	fresh.RatingFire = entity.RatingFire
	fresh.RatingStar = entity.RatingStar
	fresh.RatingIdea = entity.RatingIdea
	fresh.UsageCount = entity.UsageCount
	fresh.Deleted = entity.Deleted
	fresh.DeletedAt = entity.DeletedAt
	fresh.DeletedBy = entity.DeletedBy
	fresh.CreatedAt = entity.CreatedAt
	fresh.UpdatedAt = entity.UpdatedAt
	fresh.DeletionRequests = entity.DeletionRequests
	fresh.Comments = entity.Comments
	*entity = *fresh
}

// DraftFromRecord 以已有记录预填编辑表单。
func DraftFromRecord(rec promptdomain.Record) Draft {
	return Draft{
		Title:                     rec.Title,
		Description:               rec.Description,
		PromptText:                rec.PromptText,
		SupplementaryInstructions: rec.SupplementaryInstructions,
		Comment:                   rec.Comment,
		PlatformsAndModels:        rec.PlatformsAndModels,
		PlatformFeatures:          rec.PlatformFeatures,
		OutputFormats:             rec.OutputFormats,
		UseCases:                  rec.UseCases,
		Tags:                      rec.Tags,
		Role:                      rec.CreatedByRole,
		EducationLevel:            rec.EducationLevel,
		Links:                     rec.Links,
		ProblemStatement:          rec.ProblemStatement,
		SolutionDescription:       rec.SolutionDescription,
		Difficulties:              rec.Difficulties,
		FinalProductLink:          rec.FinalProductLink,
	}
}

func compactList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func compactSetMap(values map[string][]string) map[string][]string {
	out := make(map[string][]string, len(values))
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		name := strings.TrimSpace(key)
		items := compactList(values[key])
		if name == "" || len(items) == 0 {
			continue
		}
		out[name] = append(out[name], items...)
	}
	return out
}
