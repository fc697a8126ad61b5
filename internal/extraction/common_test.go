package extraction

import (
	"testing"

	"github.com/knoguchi/ingestor/internal/domain"
)

func TestNormalizeAndMerge_MergesSameNormalizedNameAndType(t *testing.T) {
	entities := []domain.ExtractedEntity{
		{
			Name: "john smith", Type: domain.EntityTypePerson, Description: "short",
			Mentions: []domain.ExtractedMention{{Relevance: 0.6, Position: 0}},
		},
		{
			Name: "John   Smith", Type: domain.EntityTypePerson, Description: "a much longer description",
			Mentions: []domain.ExtractedMention{{Relevance: 0.9, Position: 50}},
		},
	}

	merged := NormalizeAndMerge(entities)

	if len(merged) != 1 {
		t.Fatalf("expected entities to merge into one, got %d", len(merged))
	}
	e := merged[0]
	if e.Name != "John Smith" {
		t.Errorf("expected normalized name 'John Smith', got %q", e.Name)
	}
	if len(e.Mentions) != 2 {
		t.Errorf("expected mentions to concatenate, got %d", len(e.Mentions))
	}
	if e.Description != "a much longer description" {
		t.Errorf("expected longer description to win, got %q", e.Description)
	}
}

func TestNormalizeAndMerge_FoldsUnknownType(t *testing.T) {
	entities := []domain.ExtractedEntity{
		{Name: "Widget", Type: domain.EntityType("gadget")},
	}
	merged := NormalizeAndMerge(entities)
	if len(merged) != 1 || merged[0].Type != domain.EntityTypeOther {
		t.Fatalf("expected unknown type to fold to other, got %+v", merged)
	}
}

func TestNormalizeAndMerge_PreservesInsertionOrder(t *testing.T) {
	entities := []domain.ExtractedEntity{
		{Name: "Zeta Corp", Type: domain.EntityTypeOrganization},
		{Name: "Alpha Corp", Type: domain.EntityTypeOrganization},
	}
	merged := NormalizeAndMerge(entities)
	if len(merged) != 2 || merged[0].Name != "Zeta Corp" || merged[1].Name != "Alpha Corp" {
		t.Fatalf("expected first-seen order preserved, got %+v", merged)
	}
}

func TestFilter_ConfidenceThreshold(t *testing.T) {
	entities := []domain.ExtractedEntity{
		{Name: "Low", Type: domain.EntityTypePerson, Mentions: []domain.ExtractedMention{{Relevance: 0.2}}},
		{Name: "High", Type: domain.EntityTypePerson, Mentions: []domain.ExtractedMention{{Relevance: 0.8}}},
	}
	out := Filter(entities, Options{ConfidenceThreshold: 0.5, MaxEntities: 50})
	if len(out) != 1 || out[0].Name != "High" {
		t.Fatalf("expected only the high-relevance entity to survive, got %+v", out)
	}
}

func TestFilter_EntityTypeAllowList(t *testing.T) {
	entities := []domain.ExtractedEntity{
		{Name: "Org", Type: domain.EntityTypeOrganization, Mentions: []domain.ExtractedMention{{Relevance: 1}}},
		{Name: "Person", Type: domain.EntityTypePerson, Mentions: []domain.ExtractedMention{{Relevance: 1}}},
	}
	out := Filter(entities, Options{EntityTypes: []string{"person"}, MaxEntities: 50})
	if len(out) != 1 || out[0].Name != "Person" {
		t.Fatalf("expected only the allow-listed type to survive, got %+v", out)
	}
}

func TestFilter_MaxEntitiesCap(t *testing.T) {
	var entities []domain.ExtractedEntity
	for i := 0; i < 10; i++ {
		entities = append(entities, domain.ExtractedEntity{
			Name: "E", Type: domain.EntityTypeOther,
			Mentions: []domain.ExtractedMention{{Relevance: 1}},
		})
	}
	out := Filter(entities, Options{MaxEntities: 3})
	if len(out) != 3 {
		t.Fatalf("expected cap at 3 entities, got %d", len(out))
	}
}

func TestFilter_DefaultsMaxEntitiesWhenUnset(t *testing.T) {
	var entities []domain.ExtractedEntity
	for i := 0; i < 60; i++ {
		entities = append(entities, domain.ExtractedEntity{
			Name: "E", Type: domain.EntityTypeOther,
			Mentions: []domain.ExtractedMention{{Relevance: 1}},
		})
	}
	out := Filter(entities, Options{})
	if len(out) != 50 {
		t.Fatalf("expected default maxEntities=50, got %d", len(out))
	}
}
