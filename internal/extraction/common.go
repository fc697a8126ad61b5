package extraction

import (
	"strings"

	"github.com/knoguchi/ingestor/internal/domain"
)

// mergeKey identifies entities that should be merged: same type and
// normalized name (spec.md §4.3 Merge).
type mergeKey struct {
	normalizedName string
	entityType     domain.EntityType
}

// NormalizeAndMerge implements the three "Common concerns" of spec.md §4.3
// that every extractor shares: per-type normalization, unknown-type folding,
// and merge-by-(type, normalizedName) with mention concatenation and
// longer-description-wins.
func NormalizeAndMerge(entities []domain.ExtractedEntity) []domain.ExtractedEntity {
	merged := make(map[mergeKey]*domain.ExtractedEntity)
	var order []mergeKey

	for _, e := range entities {
		t, _ := ValidateType(e.Type)
		normalized := NormalizeName(e.Name, t)
		key := mergeKey{normalizedName: normalized, entityType: t}

		existing, ok := merged[key]
		if !ok {
			copyE := e
			copyE.Type = t
			copyE.Name = normalized
			merged[key] = &copyE
			order = append(order, key)
			continue
		}
		existing.Mentions = append(existing.Mentions, e.Mentions...)
		if len(e.Description) > len(existing.Description) {
			existing.Description = e.Description
		}
	}

	out := make([]domain.ExtractedEntity, 0, len(order))
	for _, key := range order {
		out = append(out, *merged[key])
	}
	return out
}

// Filter applies confidenceThreshold (drop entities whose max-mention
// relevance is below it), restricts to requested types, and caps at
// maxEntities (spec.md §4.3 Filter).
func Filter(entities []domain.ExtractedEntity, opts Options) []domain.ExtractedEntity {
	threshold := opts.ConfidenceThreshold
	maxEntities := opts.MaxEntities
	if maxEntities <= 0 {
		maxEntities = 50
	}

	allowed := map[string]bool{}
	for _, t := range opts.EntityTypes {
		allowed[strings.ToLower(t)] = true
	}

	var out []domain.ExtractedEntity
	for _, e := range entities {
		if len(allowed) > 0 && !allowed[strings.ToLower(string(e.Type))] {
			continue
		}
		if maxMentionRelevance(e.Mentions) < threshold {
			continue
		}
		out = append(out, e)
		if len(out) >= maxEntities {
			break
		}
	}
	return out
}

func maxMentionRelevance(mentions []domain.ExtractedMention) float64 {
	var max float64
	for _, m := range mentions {
		if m.Relevance > max {
			max = m.Relevance
		}
	}
	return max
}
