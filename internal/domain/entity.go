package domain

import "time"

// EntityType enumerates the closed set of entity categories spec.md §3
// recognizes. Unknown types fold to EntityTypeOther at the extractor layer.
type EntityType string

const (
	EntityTypePerson       EntityType = "person"
	EntityTypeOrganization EntityType = "organization"
	EntityTypeLocation     EntityType = "location"
	EntityTypeDate         EntityType = "date"
	EntityTypeProduct      EntityType = "product"
	EntityTypeTechnology   EntityType = "technology"
	EntityTypeEvent        EntityType = "event"
	EntityTypeOther        EntityType = "other"
)

// ValidEntityType reports whether t is one of the recognized types.
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityTypePerson, EntityTypeOrganization, EntityTypeLocation,
		EntityTypeDate, EntityTypeProduct, EntityTypeTechnology,
		EntityTypeEvent, EntityTypeOther:
		return true
	}
	return false
}

// Entity is a named, typed reference deduplicated by (NormalizedName, Type).
type Entity struct {
	ID             string
	Name           string
	NormalizedName string
	Type           EntityType
	Description    string
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Mention is a single occurrence of an Entity within one Content item.
type Mention struct {
	ID          string
	EntityID    string
	ContentID   string
	ContentType string
	Relevance   float64
	Context     string
	Position    int
	CreatedAt   time.Time
}

// Alias is an alternative surface form for an Entity.
type Alias struct {
	ID         string
	EntityID   string
	Alias      string
	Confidence float64
}

// Relationship is a typed, directed link between two entities. Self-relations
// are forbidden and (Source, Target, Type) is unique.
type Relationship struct {
	ID               string
	SourceEntityID   string
	TargetEntityID   string
	RelationshipType string
	Strength         float64
}

// ExtractedEntity is the shape an extractor (C3) or the AI client (C2)
// produces before it is persisted as an Entity + Mentions.
type ExtractedEntity struct {
	Name        string
	Type        EntityType
	Description string
	Mentions    []ExtractedMention
}

// ExtractedMention is one occurrence reported by an extractor, prior to
// being attached to a persisted Entity ID.
type ExtractedMention struct {
	Context   string
	Position  int
	Relevance float64
}
