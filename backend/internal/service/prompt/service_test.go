package prompt

import (
	"context"
	"errors"
	"sync"
	"testing"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
	userdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/user"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/livequery"
	"github.com/antrhizom/prompt-managerin/backend/internal/repository"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/mirror"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type staticCatalog struct{}

func (staticCatalog) Get() promptdomain.Catalog { return promptdomain.DefaultCatalog() }

type recordingNotifier struct {
	mu      sync.Mutex
	notices []promptdomain.DeletionNotice
	err     error
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) NotifyDeletionRequest(_ context.Context, notice promptdomain.DeletionNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) received() []promptdomain.DeletionNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]promptdomain.DeletionNotice(nil), n.notices...)
}

type fixture struct {
	svc      *Service
	repo     *repository.PromptRepository
	mirror   *mirror.Mirror
	hub      *livequery.Hub
	notifier *recordingNotifier
}

func setupPromptService(t *testing.T) *fixture {
	t.Helper()

	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := repository.NewPromptRepository(db)
	if err := repo.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	hub := livequery.NewHub(nil)
	m := mirror.New(repo, nil, nil)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	notifier := &recordingNotifier{}
	svc := NewService(repo, hub, m, staticCatalog{}, nil, notifier)
	return &fixture{svc: svc, repo: repo, mirror: m, hub: hub, notifier: notifier}
}

func (f *fixture) refresh(t *testing.T) {
	t.Helper()
	if err := f.mirror.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh mirror: %v", err)
	}
}

func validDraft(title string) Draft {
	return Draft{
		Title:              "  " + title + "  ",
		PromptText:         "Erstelle ein Quiz",
		PlatformsAndModels: map[string][]string{"fobizz": {"GPT-4o"}, "Perplexity": {}},
		OutputFormats:      []string{"Text", "Text"},
		UseCases:           []string{"Fragenvielfalt"},
		Tags:               SplitTags("mathe, , quiz"),
		Role:               "👨‍🏫 Lehrperson",
	}
}

var (
	alice = userdomain.Actor{Code: "ALICE1", DisplayName: "Alice"}
	bob   = userdomain.Actor{Code: "BOB234"}
)

func TestCreateNormalizesAndZeroesCounters(t *testing.T) {
	f := setupPromptService(t)
	ctx := context.Background()

	events, cancel := f.hub.Subscribe()
	defer cancel()

	rec, err := f.svc.Create(ctx, alice, validDraft("Mathe-Quiz"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Title != "Mathe-Quiz" || rec.CreatedBy != "ALICE1" {
		t.Fatalf("unexpected record: %+v", rec.CoreFields)
	}
	if _, ok := rec.PlatformsAndModels["Perplexity"]; ok {
		t.Fatalf("platform without models should be dropped")
	}
	if len(rec.OutputFormats) != 1 || len(rec.Tags) != 2 {
		t.Fatalf("lists not compacted: formats=%v tags=%v", rec.OutputFormats, rec.Tags)
	}
	if rec.UsageCount != 0 || rec.RatingSum() != 0 {
		t.Fatalf("counters should start at zero")
	}

	select {
	case ev := <-events:
		if ev.Kind != livequery.EventCreated || ev.PromptID != rec.ID {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatalf("expected change event after create")
	}

	f.refresh(t)
	list := f.svc.List(Criteria{})
	if list.Total != 1 || list.Matched != 1 || list.Items[0].ID != rec.ID {
		t.Fatalf("unexpected list %+v", list)
	}
	if list.Criteria.SortKey != SortRecency {
		t.Fatalf("empty sort key should default to recency, got %q", list.Criteria.SortKey)
	}
}

func TestCreateValidation(t *testing.T) {
	f := setupPromptService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(d *Draft)
		message string
	}{
		{"title", func(d *Draft) { d.Title = "   " }, "Titel und Prompt-Text sind Pflichtfelder!"},
		{"role", func(d *Draft) { d.Role = "" }, "Bitte wähle deine Rolle aus!"},
		{"platform", func(d *Draft) { d.PlatformsAndModels = map[string][]string{"fobizz": {" "}} }, "Bitte mindestens eine Plattform mit Modell auswählen!"},
		{"format", func(d *Draft) { d.OutputFormats = nil }, "Bitte mindestens ein Output-Format auswählen!"},
		{"use case", func(d *Draft) { d.UseCases = []string{""} }, "Bitte mindestens einen Anwendungsfall auswählen!"},
		{"unknown format", func(d *Draft) { d.OutputFormats = []string{"Fax"} }, "Unbekanntes Output-Format: Fax"},
	}
	for _, tc := range cases {
		draft := validDraft("Titel")
		tc.mutate(&draft)
		_, err := f.svc.Create(ctx, alice, draft)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		if verr.Message != tc.message {
			t.Fatalf("%s: message = %q, want %q", tc.name, verr.Message, tc.message)
		}
	}

	if _, err := f.svc.Create(ctx, userdomain.Actor{}, validDraft("x")); !errors.Is(err, ErrActorRequired) {
		t.Fatalf("expected ErrActorRequired, got %v", err)
	}
}

func TestUpdateRequiresOwnerAndKeepsCounters(t *testing.T) {
	f := setupPromptService(t)
	ctx := context.Background()

	legacy := validDraft("Alt").Normalize().entity(userdomain.LegacyCodePrefix + alice.Code)
	if err := f.repo.Create(ctx, legacy); err != nil {
		t.Fatalf("seed legacy prompt: %v", err)
	}
	if err := f.svc.Rate(ctx, legacy.ID, promptdomain.ReactionStar); err != nil {
		t.Fatalf("rate: %v", err)
	}

	draft := validDraft("Neu")
	if _, err := f.svc.Update(ctx, bob, legacy.ID, draft); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	updated, err := f.svc.Update(ctx, alice, legacy.ID, draft)
	if err != nil {
		t.Fatalf("owner update with legacy prefix: %v", err)
	}
	if updated.Title != "Neu" || updated.CreatedBy != userdomain.LegacyCodePrefix+alice.Code {
		t.Fatalf("unexpected updated record %+v", updated.CoreFields)
	}
	if updated.Ratings[promptdomain.ReactionStar] != 1 {
		t.Fatalf("update must keep rating counters, got %v", updated.Ratings)
	}

	stored, err := f.svc.Get(ctx, legacy.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Title != "Neu" || stored.Ratings[promptdomain.ReactionStar] != 1 {
		t.Fatalf("stored record not updated: %+v", stored.CoreFields)
	}

	draft.Role = ""
	var verr *ValidationError
	if _, err := f.svc.Update(ctx, alice, legacy.ID, draft); !errors.As(err, &verr) {
		t.Fatalf("update should validate role, got %v", err)
	}
}

func TestUpdateKeepsLegacyOutputFormats(t *testing.T) {
	f := setupPromptService(t)
	ctx := context.Background()

	legacy := validDraft("Alt").Normalize().entity(alice.Code)
	legacy.OutputFormats = promptdomain.EncodeJSON([]string{"Text", "Fax"})
	if err := f.repo.Create(ctx, legacy); err != nil {
		t.Fatalf("seed legacy prompt: %v", err)
	}

	draft := validDraft("Neu")
	draft.OutputFormats = []string{"Fax", "Text"}
	updated, err := f.svc.Update(ctx, alice, legacy.ID, draft)
	if err != nil {
		t.Fatalf("formats already on the record must be accepted: %v", err)
	}
	if len(updated.OutputFormats) != 2 || updated.OutputFormats[0] != "Fax" {
		t.Fatalf("unexpected formats %v", updated.OutputFormats)
	}

	draft.OutputFormats = []string{"Text", "Telex"}
	var verr *ValidationError
	if _, err := f.svc.Update(ctx, alice, legacy.ID, draft); !errors.As(err, &verr) || verr.Message != "Unbekanntes Output-Format: Telex" {
		t.Fatalf("new unknown format should be rejected, got %v", err)
	}
}

func TestEditDraftPrefillsOwnRecord(t *testing.T) {
	f := setupPromptService(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, alice, validDraft("Vorlage"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	draft, err := f.svc.EditDraft(ctx, alice, rec.ID)
	if err != nil {
		t.Fatalf("edit draft: %v", err)
	}
	if draft.Title != "Vorlage" || draft.Role != "👨‍🏫 Lehrperson" || len(draft.OutputFormats) != 1 {
		t.Fatalf("unexpected prefill %+v", draft)
	}
	if models := draft.PlatformsAndModels["fobizz"]; len(models) != 1 || models[0] != "GPT-4o" {
		t.Fatalf("platforms not prefilled: %v", draft.PlatformsAndModels)
	}

	if _, err := f.svc.EditDraft(ctx, bob, rec.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := f.svc.EditDraft(ctx, userdomain.Actor{}, rec.ID); !errors.Is(err, ErrActorRequired) {
		t.Fatalf("expected ErrActorRequired, got %v", err)
	}
	if _, err := f.svc.EditDraft(ctx, alice, "missing"); !errors.Is(err, ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound, got %v", err)
	}
}

func TestConcurrentRatingsAreNotLost(t *testing.T) {
	f := setupPromptService(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, alice, validDraft("Beliebt"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- f.svc.Rate(ctx, rec.ID, promptdomain.ReactionThumbsUp)
		}()
		go func() {
			defer wg.Done()
			errs <- f.svc.RecordUsage(ctx, rec.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	got, err := f.svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Ratings[promptdomain.ReactionThumbsUp] != n || got.UsageCount != n {
		t.Fatalf("expected %d thumbs and uses, got %d / %d", n, got.Ratings[promptdomain.ReactionThumbsUp], got.UsageCount)
	}

	if err := f.svc.Rate(ctx, rec.ID, "🙂"); !errors.Is(err, ErrInvalidReaction) {
		t.Fatalf("expected ErrInvalidReaction, got %v", err)
	}
	if err := f.svc.Rate(ctx, "missing", promptdomain.ReactionFire); !errors.Is(err, ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound, got %v", err)
	}
}

func TestSoftDeleteHidesRecord(t *testing.T) {
	f := setupPromptService(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, alice, validDraft("Weg damit"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.SoftDelete(ctx, bob, rec.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := f.svc.SoftDelete(ctx, alice, rec.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	f.refresh(t)

	if list := f.svc.List(Criteria{}); list.Matched != 0 {
		t.Fatalf("deleted record still listed: %+v", list.Items)
	}
	got, err := f.svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("deleted record should stay readable by id: %v", err)
	}
	if !got.Deleted || got.DeletedBy != alice.Code || got.DeletedAt == nil {
		t.Fatalf("audit fields missing: %+v", got.CoreFields)
	}
	if err := f.svc.Rate(ctx, rec.ID, promptdomain.ReactionHeart); !errors.Is(err, ErrPromptNotFound) {
		t.Fatalf("rating a deleted record should fail, got %v", err)
	}
	if err := f.svc.SoftDelete(ctx, alice, rec.ID); !errors.Is(err, ErrPromptNotFound) {
		t.Fatalf("second delete should report not found, got %v", err)
	}
}

func TestRequestDeletion(t *testing.T) {
	f := setupPromptService(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, alice, validDraft("Fragwürdig"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.svc.RequestDeletion(ctx, alice, rec.ID, "meins"); !errors.Is(err, ErrOwnerRequest) {
		t.Fatalf("owner request should be rejected, got %v", err)
	}
	if err := f.svc.RequestDeletion(ctx, bob, rec.ID, "   "); !errors.Is(err, ErrReasonEmpty) {
		t.Fatalf("expected ErrReasonEmpty, got %v", err)
	}
	if err := f.svc.RequestDeletion(ctx, bob, rec.ID, "  Urheberrecht  "); err != nil {
		t.Fatalf("request deletion: %v", err)
	}
	if err := f.svc.RequestDeletion(ctx, bob, rec.ID, "nochmal"); !errors.Is(err, ErrDuplicateDeletionRequest) {
		t.Fatalf("expected ErrDuplicateDeletionRequest, got %v", err)
	}
	f.svc.Wait()

	notices := f.notifier.received()
	if len(notices) != 1 {
		t.Fatalf("expected one notice, got %d", len(notices))
	}
	notice := notices[0]
	if notice.RequesterName != "Anonym" || notice.Reason != "Urheberrecht" || notice.PromptTitle != "Fragwürdig" {
		t.Fatalf("unexpected notice %+v", notice)
	}

	f.refresh(t)
	queue := f.svc.ModerationQueue()
	if len(queue) != 1 || queue[0].ID != rec.ID {
		t.Fatalf("unexpected moderation queue %+v", queue)
	}
	if !queue[0].HasDeletionRequestFrom(bob.Code) {
		t.Fatalf("request not visible in snapshot")
	}
}

func TestRequestDeletionSurvivesNotifierFailure(t *testing.T) {
	f := setupPromptService(t)
	f.notifier.err = errors.New("smtp down")
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, alice, validDraft("Robust"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.RequestDeletion(ctx, bob, rec.ID, "Spam"); err != nil {
		t.Fatalf("notifier failure must not fail the request: %v", err)
	}
	f.svc.Wait()

	got, err := f.svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.DeletionRequests) != 1 {
		t.Fatalf("deletion request not stored")
	}
}

func TestAddComment(t *testing.T) {
	f := setupPromptService(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, alice, validDraft("Diskussion"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.AddComment(ctx, bob, rec.ID, "  "); !errors.Is(err, ErrCommentEmpty) {
		t.Fatalf("expected ErrCommentEmpty, got %v", err)
	}
	comment, err := f.svc.AddComment(ctx, bob, rec.ID, " Super Idee ")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if comment.Text != "Super Idee" || comment.AuthorName != "Anonym" || comment.ID == "" {
		t.Fatalf("unexpected comment %+v", comment)
	}

	got, err := f.svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Comments) != 1 || got.Comments[0].AuthorCode != bob.Code {
		t.Fatalf("comment not stored: %+v", got.Comments)
	}
}
