package prompt

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
)

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatJSON, "JSON": FormatJSON, "yml": FormatYAML, "txt": FormatText}
	for raw, want := range cases {
		got, err := ParseFormat(raw)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseFormat("csv"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestYAMLExportCanBeReadBack(t *testing.T) {
	rec := record("r1", func(r *promptdomain.Record) {
		r.Tags = []string{"mathe"}
		r.Ratings = map[string]int64{promptdomain.ReactionFire: 3}
		r.UsageCount = 7
		r.CreatedAt = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	})

	var buf bytes.Buffer
	if err := WriteExport(&buf, []promptdomain.Record{rec}, FormatYAML, time.Now()); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if !strings.Contains(buf.String(), "prompt_text:") {
		t.Fatalf("yaml should use json field names:\n%s", buf.String())
	}

	doc, err := ReadExport(buf.Bytes())
	if err != nil {
		t.Fatalf("read yaml: %v", err)
	}
	if len(doc.Prompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(doc.Prompts))
	}
	got := doc.Prompts[0]
	if got.UsageCount != 7 || got.Ratings[promptdomain.ReactionFire] != 3 || !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("unexpected record after read: %+v", got.CoreFields)
	}
}

func TestReadExportRejectsInvalidDocument(t *testing.T) {
	raw := []byte(`{"version": 1, "prompts": [{"id": "x", "prompt_text": "ohne Titel"}]}`)
	if _, err := ReadExport(raw); err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
	if _, err := ReadExport([]byte(`{"prompts": [{"id": "x", "title": "t", "prompt_text": "p", "usage_count": -1}]}`)); err == nil {
		t.Fatalf("negative usage count should be rejected")
	}
}

func TestImportSkipsExistingIDs(t *testing.T) {
	f := setupPromptService(t)
	ctx := context.Background()

	existing, err := f.svc.Create(ctx, alice, validDraft("Vorhanden"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	imported := record("import-1", func(r *promptdomain.Record) {
		r.CreatedBy = "user_CAROL9"
		r.UsageCount = 12
		r.Ratings = map[string]int64{promptdomain.ReactionThumbsUp: 4}
		r.DeletionRequests = []promptdomain.DeletionEntry{
			{RequesterCode: "DAVE77", RequesterName: "Dave", Reason: "veraltet", Timestamp: time.Now()},
			{RequesterCode: "DAVE77", RequesterName: "Dave", Reason: "doppelt", Timestamp: time.Now()},
		}
		r.Comments = []promptdomain.CommentEntry{{AuthorCode: "EVE001", Text: "danke"}}
	})

	result, err := f.svc.Import(ctx, ExportDocument{Prompts: []promptdomain.Record{existing, imported}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Imported != 1 || len(result.Skipped) != 1 || result.Skipped[0] != existing.ID {
		t.Fatalf("unexpected result %+v", result)
	}

	got, err := f.svc.Get(ctx, "import-1")
	if err != nil {
		t.Fatalf("get imported: %v", err)
	}
	if got.UsageCount != 12 || got.Ratings[promptdomain.ReactionThumbsUp] != 4 {
		t.Fatalf("counters not preserved: %+v", got.CoreFields)
	}
	if len(got.DeletionRequests) != 1 || len(got.Comments) != 1 {
		t.Fatalf("children not imported: requests=%d comments=%d", len(got.DeletionRequests), len(got.Comments))
	}
}

func TestExportText(t *testing.T) {
	f := setupPromptService(t)
	ctx := context.Background()

	draft := validDraft("Quiz: Brüche & Dezimalzahlen")
	draft.SupplementaryInstructions = "Nur 5 Fragen"
	rec, err := f.svc.Create(ctx, alice, draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := f.svc.ExportText(ctx, rec.ID)
	if err != nil {
		t.Fatalf("export text: %v", err)
	}
	if out.FileName != "quiz-brüche-dezimalzahlen.txt" {
		t.Fatalf("unexpected file name %q", out.FileName)
	}
	for _, want := range []string{"Quiz: Brüche & Dezimalzahlen", "--- Prompt ---\nErstelle ein Quiz", "Ergänzende Anweisungen", "fobizz: GPT-4o", "Tags: mathe, quiz"} {
		if !strings.Contains(out.Body, want) {
			t.Fatalf("body misses %q:\n%s", want, out.Body)
		}
	}

	if err := f.svc.SoftDelete(ctx, alice, rec.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := f.svc.ExportText(ctx, rec.ID); !errors.Is(err, ErrPromptNotFound) {
		t.Fatalf("deleted prompt should not be exportable, got %v", err)
	}
	if got := fileName("!!!"); got != "prompt.txt" {
		t.Fatalf("fallback file name = %q", got)
	}
}
