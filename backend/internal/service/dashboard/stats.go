package dashboard

import (
	"sort"
	"strings"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
	promptsvc "github.com/antrhizom/prompt-managerin/backend/internal/service/prompt"
)

const (
	topModels       = 10
	topHashtags     = 15
	topContributors = 5
	topRecords      = 5
)

// CountEntry 是一个分组计数，Query 为跳转到已过滤列表的查询串，无对应过滤条件时为空。
type CountEntry struct {
	Label string `json:"label" yaml:"label"`
	Count int    `json:"count" yaml:"count"`
	Query string `json:"query,omitempty" yaml:"query,omitempty"`
}

// RecordEntry 是排行榜中的一条 Prompt。
type RecordEntry struct {
	ID         string `json:"id" yaml:"id"`
	Title      string `json:"title" yaml:"title"`
	CreatedBy  string `json:"created_by" yaml:"created_by"`
	RatingSum  int64  `json:"rating_sum" yaml:"rating_sum"`
	UsageCount int64  `json:"usage_count" yaml:"usage_count"`
	Query      string `json:"query" yaml:"query"`
}

// Stats 是仪表盘的全部统计结果，每次快照变化时整体重算。
type Stats struct {
	Version          uint64        `json:"version" yaml:"version"`
	Records          int           `json:"records" yaml:"records"`
	Contributors     int           `json:"contributors" yaml:"contributors"`
	TotalRatings     int64         `json:"total_ratings" yaml:"total_ratings"`
	TotalUsage       int64         `json:"total_usage" yaml:"total_usage"`
	ByOutputFormat   []CountEntry  `json:"by_output_format" yaml:"by_output_format"`
	ByPlatform       []CountEntry  `json:"by_platform" yaml:"by_platform"`
	TopModels        []CountEntry  `json:"top_models" yaml:"top_models"`
	ByUseCase        []CountEntry  `json:"by_use_case" yaml:"by_use_case"`
	ByRole           []CountEntry  `json:"by_role" yaml:"by_role"`
	ByEducationLevel []CountEntry  `json:"by_education_level" yaml:"by_education_level"`
	TopHashtags      []CountEntry  `json:"top_hashtags" yaml:"top_hashtags"`
	TopContributors  []CountEntry  `json:"top_contributors" yaml:"top_contributors"`
	TopRated         []RecordEntry `json:"top_rated" yaml:"top_rated"`
	TopUsed          []RecordEntry `json:"top_used" yaml:"top_used"`
}

// counter 按首次出现的顺序记录键，排序时用作并列项的次序。
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter(seed ...string) *counter {
	c := &counter{counts: make(map[string]int, len(seed))}
	for _, key := range seed {
		c.touch(key)
	}
	return c
}

func (c *counter) touch(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
		c.counts[key] = 0
	}
}

func (c *counter) add(key string) {
	c.touch(key)
	c.counts[key]++
}

// ranked 按计数降序返回，limit <= 0 表示不截断。
func (c *counter) ranked(limit int, query func(label string) string) []CountEntry {
	out := make([]CountEntry, 0, len(c.order))
	for _, key := range c.order {
		entry := CountEntry{Label: key, Count: c.counts[key]}
		if query != nil {
			entry.Query = query(key)
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func criteriaQuery(build func(label string) promptsvc.Criteria) func(string) string {
	return func(label string) string { return build(label).Query() }
}

// Compute 对整个镜像做一次完整统计。缺失字段按空值处理，从不失败。
func Compute(records []promptdomain.Record, catalog promptdomain.Catalog) Stats {
	catalog = catalog.Normalize()

	formats := newCounter(catalog.OutputFormats...)
	platforms := newCounter()
	models := newCounter()
	useCases := newCounter(catalog.UseCaseLabels()...)
	roles := newCounter(catalog.Roles...)
	levels := newCounter(catalog.EducationLevels...)
	hashtags := newCounter()
	contributors := newCounter()
	distinct := make(map[string]struct{})

	var stats Stats
	active := make([]promptdomain.Record, 0, len(records))
	for _, rec := range records {
		if rec.Deleted {
			continue
		}
		active = append(active, rec)

		distinct[rec.CreatedBy] = struct{}{}
		contributors.add(rec.CreatedBy)
		stats.TotalRatings += rec.RatingSum()
		stats.TotalUsage += rec.UsageCount

		for _, format := range rec.OutputFormats {
			formats.add(format)
		}
		for _, platform := range rec.Platforms() {
			platforms.add(platform)
			for _, model := range rec.PlatformsAndModels[platform] {
				models.add(model)
			}
		}
		for _, uc := range rec.UseCases {
			useCases.add(uc)
		}

		role := rec.CreatedByRole
		if role == "" {
			role = catalog.DefaultRole
		}
		roles.add(role)

		if rec.EducationLevel != "" {
			levels.add(rec.EducationLevel)
		}
		for _, tag := range rec.Tags {
			if clean := strings.ToLower(strings.TrimSpace(tag)); clean != "" {
				hashtags.add(clean)
			}
		}
	}

	stats.Records = len(active)
	stats.Contributors = len(distinct)
	stats.ByOutputFormat = formats.ranked(0, criteriaQuery(func(l string) promptsvc.Criteria {
		return promptsvc.Criteria{OutputFormat: l}
	}))
	stats.ByPlatform = platforms.ranked(0, criteriaQuery(func(l string) promptsvc.Criteria {
		return promptsvc.Criteria{Platform: l}
	}))
	stats.TopModels = models.ranked(topModels, nil)
	stats.ByUseCase = useCases.ranked(0, criteriaQuery(func(l string) promptsvc.Criteria {
		return promptsvc.Criteria{UseCase: l}
	}))
	stats.ByRole = roles.ranked(0, criteriaQuery(func(l string) promptsvc.Criteria {
		return promptsvc.Criteria{Role: l}
	}))
	stats.ByEducationLevel = levels.ranked(0, nil)
	stats.TopHashtags = hashtags.ranked(topHashtags, criteriaQuery(func(l string) promptsvc.Criteria {
		return promptsvc.Criteria{SearchText: "#" + l}
	}))
	stats.TopContributors = contributors.ranked(topContributors, nil)

	rated := append([]promptdomain.Record(nil), active...)
	promptsvc.Sort(rated, promptsvc.SortRating)
	stats.TopRated = leaderboard(rated)

	used := append([]promptdomain.Record(nil), active...)
	promptsvc.Sort(used, promptsvc.SortUsage)
	stats.TopUsed = leaderboard(used)
	return stats
}

func leaderboard(sorted []promptdomain.Record) []RecordEntry {
	if len(sorted) > topRecords {
		sorted = sorted[:topRecords]
	}
	out := make([]RecordEntry, 0, len(sorted))
	for _, rec := range sorted {
		out = append(out, RecordEntry{
			ID:         rec.ID,
			Title:      rec.Title,
			CreatedBy:  rec.CreatedBy,
			RatingSum:  rec.RatingSum(),
			UsageCount: rec.UsageCount,
			Query:      promptsvc.Criteria{SearchText: rec.Title}.Query(),
		})
	}
	return out
}
