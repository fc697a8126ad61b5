package extraction

import (
	"regexp"

	"github.com/knoguchi/ingestor/internal/domain"
)

// contextWindow is the ±N characters of surrounding text captured as a
// mention's Context (spec.md §4.3 text rule fallback).
const contextWindow = 40

var (
	personRE = regexp.MustCompile(`\b([A-Z][a-z]+ [A-Z][a-z]+)\b`)
	orgRE    = regexp.MustCompile(`\b([A-Z][\w&.,' -]+ (?:Inc|Corp|LLC|Ltd|Company|Association)\.?)\b`)
	dateRE   = regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4}|\d{4}-\d{2}-\d{2})\b`)
)

// textRuleFallback runs the regex sweep named in spec.md §4.3's text/*
// extractor row: capitalized-bigram -> PERSON, "... Inc/Corp/LLC/..." ->
// ORGANIZATION, MM/DD/YYYY or YYYY-MM-DD -> DATE.
func textRuleFallback(content string) []domain.ExtractedEntity {
	var entities []domain.ExtractedEntity
	entities = append(entities, matchesToEntities(content, orgRE, domain.EntityTypeOrganization)...)
	entities = append(entities, matchesToEntities(content, personRE, domain.EntityTypePerson)...)
	entities = append(entities, matchesToEntities(content, dateRE, domain.EntityTypeDate)...)
	return entities
}

func matchesToEntities(content string, re *regexp.Regexp, t domain.EntityType) []domain.ExtractedEntity {
	var out []domain.ExtractedEntity
	for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
		start, end := m[2], m[3]
		name := content[start:end]
		out = append(out, domain.ExtractedEntity{
			Name: name,
			Type: t,
			Mentions: []domain.ExtractedMention{{
				Context:   surroundingContext(content, start, end),
				Position:  start,
				Relevance: 0.6,
			}},
		})
	}
	return out
}

func surroundingContext(content string, start, end int) string {
	cs := start - contextWindow
	if cs < 0 {
		cs = 0
	}
	ce := end + contextWindow
	if ce > len(content) {
		ce = len(content)
	}
	return content[cs:ce]
}

var (
	classRE  = regexp.MustCompile(`\bclass\s+([A-Za-z_][A-Za-z0-9_]*)`)
	funcRE   = regexp.MustCompile(`\bfunction\s+([A-Za-z_][A-Za-z0-9_]*)`)
	defRE    = regexp.MustCompile(`\bdef\s+([A-Za-z_][A-Za-z0-9_]*)`)
	constRE  = regexp.MustCompile(`\bconst\s+([A-Z][A-Z0-9_]*)\s*=`)
	importRE = regexp.MustCompile(`import\s+.*?\s+from\s+['"]([^'"]+)['"]`)
)

// codeRuleFallback runs the regex sweep named in spec.md §4.3's code row,
// tagging all matches TECHNOLOGY.
func codeRuleFallback(content string) []domain.ExtractedEntity {
	var entities []domain.ExtractedEntity
	for _, re := range []*regexp.Regexp{classRE, funcRE, defRE, constRE, importRE} {
		for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
			start, end := m[2], m[3]
			name := content[start:end]
			entities = append(entities, domain.ExtractedEntity{
				Name: name,
				Type: domain.EntityTypeTechnology,
				Mentions: []domain.ExtractedMention{{
					Context:   surroundingContext(content, start, end),
					Position:  start,
					Relevance: 0.7,
				}},
			})
		}
	}
	return entities
}

// detectLanguage resolves a code language from a file extension, falling
// back to content heuristics (spec.md §4.3 code row).
func detectLanguage(ext, content string) string {
	switch ext {
	case ".py":
		return "python"
	case ".go":
		return "go"
	case ".js":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".java":
		return "java"
	case ".rb":
		return "ruby"
	case ".rs":
		return "rust"
	}
	switch {
	case regexp.MustCompile(`import\s+\S+\s+from`).MatchString(content):
		return "javascript"
	case regexp.MustCompile(`def\s+\w+\(self`).MatchString(content):
		return "python"
	case regexp.MustCompile(`public class`).MatchString(content):
		return "java"
	case regexp.MustCompile(`interface\s*\{`).MatchString(content):
		return "go"
	}
	return ""
}
