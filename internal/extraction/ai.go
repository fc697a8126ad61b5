package extraction

import (
	"context"

	"github.com/knoguchi/ingestor/internal/aiclient"
	"github.com/knoguchi/ingestor/internal/domain"
)

// AIBackend is the subset of aiclient.Client every extractor needs. Extractors
// depend on this interface, not the concrete client, so tests can supply a
// mock fulfilling the same capability (spec.md §9: "the 'mock' variant is a
// test double fulfilling the same capability").
type AIBackend interface {
	Analyze(ctx context.Context, text, templateName string, opts aiclient.Options) (aiclient.Result, error)
}

// runPipeline implements the shared "Algorithm — single extractor invocation"
// of spec.md §4.3 steps 1,3-6 (step 2, language/content-type refinement, is
// the caller's concern): attempt AI extraction, fall back to rules on AI
// error or empty AI result, normalize/merge/filter, attach stats.
func runPipeline(ctx context.Context, ai AIBackend, template string, content string, opts Options, ruleFallback func(string) []domain.ExtractedEntity) Result {
	if content == "" {
		return Result{Success: false, Error: emptyContentErr()}
	}

	return timed(func() ([]domain.ExtractedEntity, error) {
		var entities []domain.ExtractedEntity

		if ai != nil {
			aiOpts := aiclient.Options{EntityTypes: opts.EntityTypes, Context: opts.Context, Language: opts.Language}
			result, err := ai.Analyze(ctx, content, template, aiOpts)
			if err == nil {
				entities = result.Entities
			}
			if (err != nil || len(entities) == 0) && ruleFallback != nil {
				entities = append(entities, ruleFallback(content)...)
			}
		} else if ruleFallback != nil {
			entities = ruleFallback(content)
		}

		merged := NormalizeAndMerge(entities)
		filtered := Filter(merged, opts)
		return filtered, nil
	})
}

type pipelineError struct{ msg string }

func (e *pipelineError) Error() string { return e.msg }

func emptyContentErr() error { return &pipelineError{msg: "empty-content"} }
