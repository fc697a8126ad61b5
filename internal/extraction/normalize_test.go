package extraction

import (
	"testing"

	"github.com/knoguchi/ingestor/internal/domain"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		typ      domain.EntityType
		expected string
	}{
		{"person title case", "john VAN doe", domain.EntityTypePerson, "John van Doe"},
		{"location preserves article", "isle of wight", domain.EntityTypeLocation, "Isle of Wight"},
		{"organization passthrough", "acme widgets inc.", domain.EntityTypeOrganization, "acme widgets inc."},
		{"date slash to iso", "3/4/2024", domain.EntityTypeDate, "2024-03-04"},
		{"date already iso", "2024-03-04", domain.EntityTypeDate, "2024-03-04"},
		{"trims quotes and whitespace", `  "Jane Smith"  `, domain.EntityTypePerson, "Jane Smith"},
		{"collapses internal whitespace", "Jane   Smith", domain.EntityTypePerson, "Jane Smith"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeName(tt.input, tt.typ)
			if got != tt.expected {
				t.Errorf("NormalizeName(%q, %s) = %q, want %q", tt.input, tt.typ, got, tt.expected)
			}
		})
	}
}

func TestValidateType(t *testing.T) {
	if t2, folded := ValidateType(domain.EntityTypePerson); folded || t2 != domain.EntityTypePerson {
		t.Errorf("expected person to pass through unfolded, got %s folded=%v", t2, folded)
	}
	if t2, folded := ValidateType(domain.EntityType("unknown-type")); !folded || t2 != domain.EntityTypeOther {
		t.Errorf("expected unknown type to fold to other, got %s folded=%v", t2, folded)
	}
}
