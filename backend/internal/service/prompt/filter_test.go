package prompt

import (
	"net/url"
	"reflect"
	"testing"
	"time"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
)

func record(id string, mutate func(r *promptdomain.Record)) promptdomain.Record {
	rec := promptdomain.Record{}
	rec.ID = id
	rec.Title = "Titel " + id
	rec.PromptText = "Text " + id
	if mutate != nil {
		mutate(&rec)
	}
	return rec
}

func ids(records []promptdomain.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

var testTaxonomy = promptdomain.DefaultCatalog().Taxonomy()

// TestApplyScenario 覆盖三条记录的端到端场景：过滤、按使用次数和按反馈排序。
func TestApplyScenario(t *testing.T) {
	records := []promptdomain.Record{
		record("R1", func(r *promptdomain.Record) {
			r.OutputFormats = []string{"Text"}
			r.UsageCount = 5
			r.Ratings = map[string]int64{"👍": 2}
		}),
		record("R2", func(r *promptdomain.Record) {
			r.OutputFormats = []string{"PDF"}
			r.UsageCount = 1
			r.Ratings = map[string]int64{"👍": 5}
		}),
		record("R3", func(r *promptdomain.Record) {
			r.Deleted = true
			r.OutputFormats = []string{"Text"}
			r.UsageCount = 100
		}),
	}

	if got := ids(Apply(records, Criteria{OutputFormat: "Text"}, testTaxonomy)); !reflect.DeepEqual(got, []string{"R1"}) {
		t.Fatalf("filter by Text = %v, want [R1]", got)
	}
	if got := ids(Apply(records, Criteria{SortKey: SortUsage}, testTaxonomy)); !reflect.DeepEqual(got, []string{"R1", "R2"}) {
		t.Fatalf("sort by usage = %v, want [R1 R2]", got)
	}
	if got := ids(Apply(records, Criteria{SortKey: SortRating}, testTaxonomy)); !reflect.DeepEqual(got, []string{"R2", "R1"}) {
		t.Fatalf("sort by rating = %v, want [R2 R1]", got)
	}
}

func TestHashtagSearchOnlyMatchesTags(t *testing.T) {
	records := []promptdomain.Record{
		record("title-hit", func(r *promptdomain.Record) { r.Title = "Quiz für Mathe" }),
		record("tag-hit", func(r *promptdomain.Record) { r.Tags = []string{"MatheQuiz"} }),
	}

	if got := ids(Apply(records, Criteria{SearchText: "#quiz"}, testTaxonomy)); !reflect.DeepEqual(got, []string{"tag-hit"}) {
		t.Fatalf("hashtag search = %v, want [tag-hit]", got)
	}
	got := ids(Apply(records, Criteria{SearchText: "QUIZ"}, testTaxonomy))
	if !reflect.DeepEqual(got, []string{"title-hit", "tag-hit"}) {
		t.Fatalf("free text search = %v, want both records", got)
	}
	if got := ids(Apply(records, Criteria{SearchText: "#"}, testTaxonomy)); !reflect.DeepEqual(got, []string{"tag-hit"}) {
		t.Fatalf("bare # should match every record with tags, got %v", got)
	}
}

func TestSearchMatchesDescriptionAndBody(t *testing.T) {
	records := []promptdomain.Record{
		record("desc", func(r *promptdomain.Record) { r.Description = "Eine Lernkontrolle" }),
		record("body", func(r *promptdomain.Record) { r.PromptText = "Erstelle eine LERNKONTROLLE" }),
		record("none", nil),
	}
	got := ids(Apply(records, Criteria{SearchText: "lernkontrolle"}, testTaxonomy))
	if !reflect.DeepEqual(got, []string{"desc", "body"}) {
		t.Fatalf("search = %v", got)
	}
}

func TestUseCaseCategoryFallback(t *testing.T) {
	records := []promptdomain.Record{
		record("leaf", func(r *promptdomain.Record) { r.UseCases = []string{"Excel"} }),
		record("category", func(r *promptdomain.Record) { r.UseCases = []string{"Design Office Programme"} }),
		record("other", func(r *promptdomain.Record) { r.UseCases = []string{"Flyer"} }),
	}

	got := ids(Apply(records, Criteria{UseCase: "Design Office Programme"}, testTaxonomy))
	if !reflect.DeepEqual(got, []string{"leaf", "category"}) {
		t.Fatalf("category filter = %v, want [leaf category]", got)
	}
	got = ids(Apply(records, Criteria{UseCase: "Excel"}, testTaxonomy))
	if !reflect.DeepEqual(got, []string{"leaf"}) {
		t.Fatalf("leaf filter = %v, want [leaf]", got)
	}
}

// TestCriteriaNeverWidenResult 每增加一个条件，结果集只会缩小。
func TestCriteriaNeverWidenResult(t *testing.T) {
	records := []promptdomain.Record{
		record("a", func(r *promptdomain.Record) {
			r.PlatformsAndModels = map[string][]string{"fobizz": {"GPT-4o"}}
			r.OutputFormats = []string{"Text"}
			r.Tags = []string{"deutsch"}
			r.CreatedByRole = "👨‍🏫 Lehrperson"
		}),
		record("b", func(r *promptdomain.Record) {
			r.PlatformsAndModels = map[string][]string{"fobizz": {"Mistral"}}
			r.OutputFormats = []string{"PDF"}
			r.CreatedByRole = "👨‍🏫 Lehrperson"
		}),
		record("c", func(r *promptdomain.Record) {
			r.PlatformsAndModels = map[string][]string{"DeepL Write": {"DeepL Write"}}
			r.OutputFormats = []string{"Text"}
		}),
	}

	steps := []Criteria{
		{},
		{Platform: "fobizz"},
		{Platform: "fobizz", Role: "👨‍🏫 Lehrperson"},
		{Platform: "fobizz", Role: "👨‍🏫 Lehrperson", OutputFormat: "Text"},
		{Platform: "fobizz", Role: "👨‍🏫 Lehrperson", OutputFormat: "Text", Tag: "deutsch"},
		{Platform: "fobizz", Role: "👨‍🏫 Lehrperson", OutputFormat: "Text", Tag: "Deutsch"},
	}
	want := []int{3, 2, 2, 1, 1, 0}
	prev := len(records) + 1
	for i, c := range steps {
		got := len(Apply(records, c, testTaxonomy))
		if got != want[i] {
			t.Fatalf("step %d: got %d records, want %d", i, got, want[i])
		}
		if got > prev {
			t.Fatalf("step %d widened result from %d to %d", i, prev, got)
		}
		prev = got
	}
}

func TestSortIsStableAndTreatsMissingAsZero(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	records := []promptdomain.Record{
		record("no-time", nil),
		record("old", func(r *promptdomain.Record) { r.CreatedAt = base.Add(-time.Hour) }),
		record("new", func(r *promptdomain.Record) {
			r.CreatedAt = base
			r.Ratings = map[string]int64{"❤️": 1, "🔥": 1}
		}),
		record("tie", func(r *promptdomain.Record) {
			r.CreatedAt = base
			r.Ratings = map[string]int64{"💡": 2}
		}),
	}

	if got := ids(Apply(records, Criteria{}, testTaxonomy)); !reflect.DeepEqual(got, []string{"new", "tie", "old", "no-time"}) {
		t.Fatalf("recency order = %v", got)
	}
	if got := ids(Apply(records, Criteria{SortKey: SortRating}, testTaxonomy)); !reflect.DeepEqual(got, []string{"new", "tie", "no-time", "old"}) {
		t.Fatalf("rating order = %v", got)
	}
	if got := ids(Apply(records, Criteria{SortKey: SortUsage}, testTaxonomy)); !reflect.DeepEqual(got, []string{"no-time", "old", "new", "tie"}) {
		t.Fatalf("usage order with all zero should keep input order, got %v", got)
	}
}

func TestApplyIsPure(t *testing.T) {
	records := []promptdomain.Record{
		record("x", func(r *promptdomain.Record) { r.UsageCount = 1 }),
		record("y", func(r *promptdomain.Record) { r.UsageCount = 9 }),
	}
	first := Apply(records, Criteria{SortKey: SortUsage}, testTaxonomy)
	second := Apply(records, Criteria{SortKey: SortUsage}, testTaxonomy)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated Apply differs")
	}
	if records[0].ID != "x" {
		t.Fatalf("Apply must not reorder its input")
	}
}

func TestCriteriaFromQueryAliases(t *testing.T) {
	values := url.Values{}
	values.Set("rolle", "🎓 Lernende")
	values.Set("plattform", "fobizz")
	values.Set("anwendungsfall", "Prüfungen")
	values.Set("suche", " #quiz")
	values.Set("sort", "bewertung")

	c := CriteriaFromQuery(values)
	want := Criteria{
		SearchText: " #quiz",
		Platform:   "fobizz",
		UseCase:    "Prüfungen",
		Role:       "🎓 Lernende",
		SortKey:    SortRating,
	}
	if c != want {
		t.Fatalf("criteria = %+v, want %+v", c, want)
	}

	values.Set("role", "🔧 Sonstige")
	if got := CriteriaFromQuery(values).Role; got != "🔧 Sonstige" {
		t.Fatalf("english key should win, got %q", got)
	}

	parsed, err := url.ParseQuery(Criteria{Role: "🎓 Lernende", SortKey: SortUsage}.Query())
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	if parsed.Get("rolle") != "🎓 Lernende" || parsed.Get("sort") != "usage" {
		t.Fatalf("unexpected encoded query %v", parsed)
	}
}

func TestAllTagsSkipsDeleted(t *testing.T) {
	records := []promptdomain.Record{
		record("a", func(r *promptdomain.Record) { r.Tags = []string{"mathe", "quiz"} }),
		record("b", func(r *promptdomain.Record) { r.Tags = []string{"deutsch", "quiz"} }),
		record("c", func(r *promptdomain.Record) {
			r.Deleted = true
			r.Tags = []string{"geheim"}
		}),
	}
	if got := AllTags(records); !reflect.DeepEqual(got, []string{"deutsch", "mathe", "quiz"}) {
		t.Fatalf("AllTags = %v", got)
	}
}
