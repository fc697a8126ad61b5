package extraction

import (
	"testing"

	"github.com/knoguchi/ingestor/internal/domain"
)

func TestTextRuleFallback(t *testing.T) {
	content := "John Smith met with Acme Corp. on 01/15/2024 to discuss the contract."

	entities := textRuleFallback(content)

	var gotPerson, gotOrg, gotDate bool
	for _, e := range entities {
		switch e.Type {
		case domain.EntityTypePerson:
			if e.Name == "John Smith" {
				gotPerson = true
			}
		case domain.EntityTypeOrganization:
			gotOrg = true
		case domain.EntityTypeDate:
			if e.Name == "01/15/2024" {
				gotDate = true
			}
		}
	}

	if !gotPerson {
		t.Error("expected a PERSON entity for 'John Smith'")
	}
	if !gotOrg {
		t.Error("expected an ORGANIZATION entity for 'Acme Corp.'")
	}
	if !gotDate {
		t.Error("expected a DATE entity for '01/15/2024'")
	}
}

func TestTextRuleFallback_ContextWindow(t *testing.T) {
	content := "some leading words " + "John Smith" + " some trailing words that go on"
	entities := textRuleFallback(content)

	found := false
	for _, e := range entities {
		if e.Name == "John Smith" {
			found = true
			if len(e.Mentions) != 1 {
				t.Fatalf("expected exactly one mention, got %d", len(e.Mentions))
			}
			if e.Mentions[0].Context == "" {
				t.Error("expected a non-empty context window")
			}
		}
	}
	if !found {
		t.Fatal("expected to find John Smith entity")
	}
}

func TestCodeRuleFallback(t *testing.T) {
	content := `
class Widget {}
function buildWidget() {}
const MAX_SIZE = 10
import { Foo } from 'bar'
`
	entities := codeRuleFallback(content)

	names := map[string]bool{}
	for _, e := range entities {
		if e.Type != domain.EntityTypeTechnology {
			t.Errorf("expected all code-rule entities to be TECHNOLOGY, got %s for %q", e.Type, e.Name)
		}
		names[e.Name] = true
	}

	for _, want := range []string{"Widget", "buildWidget", "MAX_SIZE", "bar"} {
		if !names[want] {
			t.Errorf("expected to find %q among extracted names, got %v", want, names)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		ext      string
		content  string
		expected string
	}{
		{".py", "", "python"},
		{".go", "", "go"},
		{"", "import Foo from 'bar'", "javascript"},
		{"", "def run(self):", "python"},
		{"", "public class Main {}", "java"},
		{"", "no hints here", ""},
	}

	for _, tt := range tests {
		got := detectLanguage(tt.ext, tt.content)
		if got != tt.expected {
			t.Errorf("detectLanguage(%q, %q) = %q, want %q", tt.ext, tt.content, got, tt.expected)
		}
	}
}
