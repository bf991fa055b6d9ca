package prompt

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/livequery"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Format 是导出格式。
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"

	exportVersion = 1
)

// ErrUnknownFormat 表示不支持的导出格式。
var ErrUnknownFormat = errors.New("unknown export format")

//go:embed schema/export.schema.json
var exportSchemaRaw []byte

var (
	exportSchemaOnce sync.Once
	exportSchema     *jsonschema.Schema
	exportSchemaErr  error
)

// ExportDocument 是 JSON/YAML 导出文件的顶层结构。
type ExportDocument struct {
	Version    int                   `json:"version"`
	ExportedAt time.Time             `json:"exported_at"`
	Prompts    []promptdomain.Record `json:"prompts"`
}

// TextExport 是单条 Prompt 的纯文本下载内容。
type TextExport struct {
	FileName string
	Body     string
}

// ImportResult 汇总一次导入的结果。
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  []string `json:"skipped"`
}

// ParseFormat 解析格式名，空值视为 json。
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "text", "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, raw)
	}
}

// WriteExport 按格式写出记录集合。
func WriteExport(w io.Writer, records []promptdomain.Record, format Format, exportedAt time.Time) error {
	doc := ExportDocument{Version: exportVersion, ExportedAt: exportedAt.UTC(), Prompts: records}
	if doc.Prompts == nil {
		doc.Prompts = []promptdomain.Record{}
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(doc)
	case FormatYAML:
		// 先经 JSON 转成通用结构，使 YAML 键名与 JSON 一致。
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode export: %w", err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("encode export: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encode yaml export: %w", err)
		}
		return enc.Close()
	case FormatText:
		for i, rec := range records {
			if i > 0 {
				if _, err := io.WriteString(w, "\n==========\n\n"); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, RenderText(rec)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// ReadExport 解析 JSON 或 YAML 导出文件，并先用内置 JSON Schema 校验结构。
func ReadExport(raw []byte) (ExportDocument, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return ExportDocument{}, fmt.Errorf("parse export: %w", err)
	}
	normalized, err := json.Marshal(generic)
	if err != nil {
		return ExportDocument{}, fmt.Errorf("normalize export: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(normalized))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return ExportDocument{}, fmt.Errorf("normalize export: %w", err)
	}

	schema, err := compiledExportSchema()
	if err != nil {
		return ExportDocument{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return ExportDocument{}, fmt.Errorf("export does not match schema: %w", err)
	}

	var out ExportDocument
	if err := json.Unmarshal(normalized, &out); err != nil {
		return ExportDocument{}, fmt.Errorf("decode export: %w", err)
	}
	return out, nil
}

func compiledExportSchema() (*jsonschema.Schema, error) {
	exportSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("export.schema.json", bytes.NewReader(exportSchemaRaw)); err != nil {
			exportSchemaErr = fmt.Errorf("load export schema: %w", err)
			return
		}
		exportSchema, exportSchemaErr = compiler.Compile("export.schema.json")
		if exportSchemaErr != nil {
			exportSchemaErr = fmt.Errorf("compile export schema: %w", exportSchemaErr)
		}
	})
	return exportSchema, exportSchemaErr
}

// Import 写入导出文件中的记录，已存在的 ID 会被跳过；全部写完后只发布一次变更信号。
func (s *Service) Import(ctx context.Context, doc ExportDocument) (ImportResult, error) {
	ctx, finish := s.begin(ctx, "import", "")
	var err error
	defer func() { finish(err) }()

	result := ImportResult{Skipped: []string{}}
	for _, rec := range doc.Prompts {
		if _, findErr := s.find(ctx, rec.ID); findErr == nil {
			result.Skipped = append(result.Skipped, rec.ID)
			continue
		} else if !errors.Is(findErr, ErrPromptNotFound) {
			err = findErr
			return result, err
		}
		if err = s.store.Import(ctx, entityFromRecord(rec)); err != nil {
			return result, err
		}
		result.Imported++
	}
	if result.Imported > 0 {
		s.publish(ctx, livequery.EventImported, "")
	}
	s.logger.Infow("prompts imported", "imported", result.Imported, "skipped", len(result.Skipped))
	return result, nil
}

// ExportText 生成单条可见 Prompt 的纯文本文件。
func (s *Service) ExportText(ctx context.Context, id string) (TextExport, error) {
	entity, err := s.findVisible(ctx, id)
	if err != nil {
		return TextExport{}, err
	}
	rec := entity.Record()
	return TextExport{FileName: fileName(rec.Title), Body: RenderText(rec)}, nil
}

// RenderText 把记录渲染为纯文本。
func RenderText(rec promptdomain.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", rec.Title, strings.Repeat("=", len([]rune(rec.Title))))
	if rec.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", rec.Description)
	}
	if len(rec.PlatformsAndModels) > 0 {
		b.WriteString("Plattformen:\n")
		for _, name := range rec.Platforms() {
			fmt.Fprintf(&b, "  - %s: %s\n", name, strings.Join(rec.PlatformsAndModels[name], ", "))
		}
	}
	writeList(&b, "Output-Formate", rec.OutputFormats)
	writeList(&b, "Anwendungsfälle", rec.UseCases)
	writeList(&b, "Tags", rec.Tags)
	if rec.CreatedByRole != "" {
		fmt.Fprintf(&b, "Rolle: %s\n", rec.CreatedByRole)
	}
	if rec.EducationLevel != "" {
		fmt.Fprintf(&b, "Bildungsstufe: %s\n", rec.EducationLevel)
	}
	fmt.Fprintf(&b, "\n--- Prompt ---\n%s\n", rec.PromptText)
	if rec.SupplementaryInstructions != "" {
		fmt.Fprintf(&b, "\n--- Ergänzende Anweisungen ---\n%s\n", rec.SupplementaryInstructions)
	}
	if rec.Comment != "" {
		fmt.Fprintf(&b, "\n--- Kommentar ---\n%s\n", rec.Comment)
	}
	return b.String()
}

func writeList(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(values, ", "))
}

func fileName(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	name := strings.TrimRight(b.String(), "-")
	if name == "" {
		name = "prompt"
	}
	return name + ".txt"
}

func entityFromRecord(rec promptdomain.Record) *promptdomain.Prompt {
	entity := &promptdomain.Prompt{
		ID:                        rec.ID,
		Title:                     rec.Title,
		Description:               rec.Description,
		PromptText:                rec.PromptText,
		SupplementaryInstructions: rec.SupplementaryInstructions,
		Comment:                   rec.Comment,
		PlatformsAndModels:        promptdomain.EncodeJSON(rec.PlatformsAndModels),
		PlatformFeatures:          promptdomain.EncodeJSON(rec.PlatformFeatures),
		OutputFormats:             promptdomain.EncodeJSON(rec.OutputFormats),
		UseCases:                  promptdomain.EncodeJSON(rec.UseCases),
		Tags:                      promptdomain.EncodeJSON(rec.Tags),
		RatingThumbsUp:            rec.Ratings[promptdomain.ReactionThumbsUp],
		RatingHeart:               rec.Ratings[promptdomain.ReactionHeart],
		RatingFire:                rec.Ratings[promptdomain.ReactionFire],
		RatingStar:                rec.Ratings[promptdomain.ReactionStar],
		RatingIdea:                rec.Ratings[promptdomain.ReactionIdea],
		UsageCount:                rec.UsageCount,
		CreatedBy:                 rec.CreatedBy,
		CreatedByRole:             rec.CreatedByRole,
		EducationLevel:            rec.EducationLevel,
		Links:                     rec.Links,
		ProblemStatement:          rec.ProblemStatement,
		SolutionDescription:       rec.SolutionDescription,
		Difficulties:              rec.Difficulties,
		FinalProductLink:          rec.FinalProductLink,
		Deleted:                   rec.Deleted,
		DeletedAt:                 rec.DeletedAt,
		DeletedBy:                 rec.DeletedBy,
		CreatedAt:                 rec.CreatedAt,
	}
	seen := make(map[string]struct{}, len(rec.DeletionRequests))
	for _, req := range rec.DeletionRequests {
		if _, dup := seen[req.RequesterCode]; dup {
			continue
		}
		seen[req.RequesterCode] = struct{}{}
		entity.DeletionRequests = append(entity.DeletionRequests, promptdomain.DeletionRequest{
			PromptID:      rec.ID,
			RequesterCode: req.RequesterCode,
			RequesterName: req.RequesterName,
			Reason:        req.Reason,
			CreatedAt:     req.Timestamp,
		})
	}
	for _, c := range rec.Comments {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		entity.Comments = append(entity.Comments, promptdomain.Comment{
			ID:         id,
			PromptID:   rec.ID,
			AuthorCode: c.AuthorCode,
			AuthorName: c.AuthorName,
			Text:       c.Text,
			CreatedAt:  c.Timestamp,
		})
	}
	return entity
}
