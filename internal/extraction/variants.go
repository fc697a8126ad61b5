package extraction

import (
	"context"

	"github.com/knoguchi/ingestor/internal/aiclient"
	"github.com/knoguchi/ingestor/internal/domain"
)

// TextExtractor handles text/* content: AI template text_entities (or
// text_entities_custom when entityTypes is set), regex fallback.
type TextExtractor struct{ AI AIBackend }

func (x *TextExtractor) Extract(ctx context.Context, content, contentType string, opts Options) Result {
	template := aiclient.TemplateTextEntities
	if len(opts.EntityTypes) > 0 {
		template = aiclient.TemplateTextEntitiesCustom
	}
	return runPipeline(ctx, x.AI, template, content, opts, textRuleFallback)
}

// CodeExtractor handles source-code content types (text/x-*, text/javascript,
// text/typescript, ...): AI template code with Language resolved from
// extension then content heuristics; regex fallback tagged TECHNOLOGY.
type CodeExtractor struct {
	AI  AIBackend
	Ext string // file extension, when known, used to resolve Language
}

func (x *CodeExtractor) Extract(ctx context.Context, content, contentType string, opts Options) Result {
	opts.Language = detectLanguage(x.Ext, content)
	return runPipeline(ctx, x.AI, aiclient.TemplateCode, content, opts, codeRuleFallback)
}

// DocumentExtractor handles application/pdf and word-processor content
// types: extract text first via a collaborator, then apply the text
// pipeline (spec.md §4.3 document row). TextOf is the "extract text first"
// collaborator — a thin seam so PDF/DOC parsing can be swapped in without
// touching the extraction pipeline; it defaults to treating content as
// already-extracted text when nil.
type DocumentExtractor struct {
	AI     AIBackend
	TextOf func(raw string) (string, error)
}

func (x *DocumentExtractor) Extract(ctx context.Context, content, contentType string, opts Options) Result {
	text := content
	if x.TextOf != nil {
		extracted, err := x.TextOf(content)
		if err != nil {
			return Result{Success: false, Error: err}
		}
		text = extracted
	}
	return runPipeline(ctx, x.AI, aiclient.TemplatePDF, text, opts, textRuleFallback)
}

// ImageExtractor handles image/* content: AI template image, sending a path
// or encoded bytes; no rule fallback — empty result with success=true
// (spec.md §4.3 image row).
type ImageExtractor struct{ AI AIBackend }

func (x *ImageExtractor) Extract(ctx context.Context, content, contentType string, opts Options) Result {
	if content == "" {
		return Result{Success: false, Error: emptyContentErr()}
	}
	return timed(func() ([]domain.ExtractedEntity, error) {
		if x.AI == nil {
			return nil, nil
		}
		result, err := x.AI.Analyze(ctx, content, aiclient.TemplateImage, aiclient.Options{})
		if err != nil {
			return nil, nil // no fallback; empty result, success=true
		}
		merged := NormalizeAndMerge(result.Entities)
		return Filter(merged, opts), nil
	})
}

// VideoMetadata is the result of the metadata-extraction collaborator for
// video/* content (spec.md §4.3 video row: "derive entities from metadata
// only").
type VideoMetadata struct {
	DurationSeconds float64
	Width, Height   int
	Tags            []string
}

// VideoExtractor handles video/* content: no AI template, entities derived
// purely from embedded tags/keywords via the metadata collaborator.
type VideoExtractor struct {
	MetadataOf func(raw string) (VideoMetadata, error)
}

func (x *VideoExtractor) Extract(ctx context.Context, content, contentType string, opts Options) Result {
	if content == "" {
		return Result{Success: false, Error: emptyContentErr()}
	}
	return timed(func() ([]domain.ExtractedEntity, error) {
		if x.MetadataOf == nil {
			return nil, nil
		}
		meta, err := x.MetadataOf(content)
		if err != nil {
			return nil, err
		}
		var entities []domain.ExtractedEntity
		for _, tag := range meta.Tags {
			entities = append(entities, domain.ExtractedEntity{
				Name: tag,
				Type: domain.EntityTypeOther,
				Mentions: []domain.ExtractedMention{{
					Context:   tag,
					Relevance: 0.5,
				}},
			})
		}
		merged := NormalizeAndMerge(entities)
		return Filter(merged, opts), nil
	})
}

// GenericExtractor is the */* fallback: AI template generic, text regex sweep.
type GenericExtractor struct{ AI AIBackend }

func (x *GenericExtractor) Extract(ctx context.Context, content, contentType string, opts Options) Result {
	return runPipeline(ctx, x.AI, aiclient.TemplateGeneric, content, opts, textRuleFallback)
}

