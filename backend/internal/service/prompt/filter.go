package prompt

import (
	"net/url"
	"sort"
	"strings"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
)

// SortKey 决定列表的排序方式，三种方式都是降序。
type SortKey string

const (
	SortRecency SortKey = "recency"
	SortUsage   SortKey = "usage"
	SortRating  SortKey = "rating"
)

// ParseSortKey 解析排序参数，兼容旧前端的德语取值，未知值回退到 recency。
func ParseSortKey(raw string) SortKey {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "usage", "nutzung":
		return SortUsage
	case "rating", "bewertung":
		return SortRating
	default:
		return SortRecency
	}
}

// Criteria 是当前生效的全部过滤条件，空字段表示不限制。
type Criteria struct {
	SearchText   string  `json:"search_text,omitempty" yaml:"search_text,omitempty"`
	Platform     string  `json:"platform,omitempty" yaml:"platform,omitempty"`
	OutputFormat string  `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	UseCase      string  `json:"use_case,omitempty" yaml:"use_case,omitempty"`
	Tag          string  `json:"tag,omitempty" yaml:"tag,omitempty"`
	Role         string  `json:"role,omitempty" yaml:"role,omitempty"`
	SortKey      SortKey `json:"sort,omitempty" yaml:"sort,omitempty"`
}

// CriteriaFromQuery 从查询字符串构造过滤条件，英文键优先，德语键作为别名。
// 搜索词保持原样，不做 trim，以便 "# " 这类输入与旧前端行为一致。
func CriteriaFromQuery(values url.Values) Criteria {
	pick := func(keys ...string) string {
		for _, key := range keys {
			if v := values.Get(key); v != "" {
				return v
			}
		}
		return ""
	}
	return Criteria{
		SearchText:   pick("q", "suche"),
		Platform:     pick("platform", "plattform"),
		OutputFormat: pick("format", "output_format"),
		UseCase:      pick("use_case", "anwendungsfall"),
		Tag:          pick("tag"),
		Role:         pick("role", "rolle"),
		SortKey:      ParseSortKey(pick("sort", "sortierung")),
	}
}

// Query 把条件编码回查询字符串（德语键），用于仪表盘跳转链接。
func (c Criteria) Query() string {
	values := url.Values{}
	set := func(key, value string) {
		if value != "" {
			values.Set(key, value)
		}
	}
	set("suche", c.SearchText)
	set("plattform", c.Platform)
	set("format", c.OutputFormat)
	set("anwendungsfall", c.UseCase)
	set("tag", c.Tag)
	set("rolle", c.Role)
	if c.SortKey != "" && c.SortKey != SortRecency {
		set("sort", string(c.SortKey))
	}
	return values.Encode()
}

// Apply 过滤后稳定排序，返回新切片，不修改输入。已软删除的记录始终被排除。
func Apply(records []promptdomain.Record, criteria Criteria, taxonomy map[string][]string) []promptdomain.Record {
	out := Filter(records, criteria, taxonomy)
	Sort(out, criteria.SortKey)
	return out
}

// Filter 返回同时满足全部非空条件的记录，保持输入顺序。
func Filter(records []promptdomain.Record, criteria Criteria, taxonomy map[string][]string) []promptdomain.Record {
	out := make([]promptdomain.Record, 0, len(records))
	for _, rec := range records {
		if Matches(rec, criteria, taxonomy) {
			out = append(out, rec)
		}
	}
	return out
}

// Matches 判断单条记录是否满足条件。
func Matches(rec promptdomain.Record, criteria Criteria, taxonomy map[string][]string) bool {
	if rec.Deleted {
		return false
	}
	if !matchesSearch(rec, criteria.SearchText) {
		return false
	}
	if criteria.Platform != "" {
		if _, ok := rec.PlatformsAndModels[criteria.Platform]; !ok {
			return false
		}
	}
	if criteria.OutputFormat != "" && !contains(rec.OutputFormats, criteria.OutputFormat) {
		return false
	}
	if criteria.UseCase != "" && !matchesUseCase(rec.UseCases, criteria.UseCase, taxonomy) {
		return false
	}
	if criteria.Tag != "" && !contains(rec.Tags, criteria.Tag) {
		return false
	}
	if criteria.Role != "" && rec.CreatedByRole != criteria.Role {
		return false
	}
	return true
}

// matchesSearch 以 # 开头时只在标签中查找，否则同时查找标题、描述、正文与标签。
func matchesSearch(rec promptdomain.Record, search string) bool {
	if search == "" {
		return true
	}
	if rest, ok := strings.CutPrefix(search, "#"); ok {
		return anyTagContains(rec.Tags, strings.ToLower(rest))
	}
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(rec.Title), needle) ||
		strings.Contains(strings.ToLower(rec.Description), needle) ||
		strings.Contains(strings.ToLower(rec.PromptText), needle) ||
		anyTagContains(rec.Tags, needle)
}

func anyTagContains(tags []string, needle string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// matchesUseCase 精确匹配，或在 wanted 为一级分类时匹配其任一子分类。
func matchesUseCase(useCases []string, wanted string, taxonomy map[string][]string) bool {
	if contains(useCases, wanted) {
		return true
	}
	subs, ok := taxonomy[wanted]
	if !ok {
		return false
	}
	for _, uc := range useCases {
		if contains(subs, uc) {
			return true
		}
	}
	return false
}

// Sort 按 key 原地稳定降序排序。
func Sort(records []promptdomain.Record, key SortKey) {
	switch key {
	case SortUsage:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].UsageCount > records[j].UsageCount
		})
	case SortRating:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].RatingSum() > records[j].RatingSum()
		})
	default:
		// 零值时间排在最后，等价于按 0 处理。
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		})
	}
}

// AllTags 返回未删除记录中出现过的全部标签，去重后按字典序排列。
func AllTags(records []promptdomain.Record) []string {
	seen := make(map[string]struct{})
	tags := make([]string, 0)
	for _, rec := range records {
		if rec.Deleted {
			continue
		}
		for _, tag := range rec.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
