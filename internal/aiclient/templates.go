package aiclient

import (
	"fmt"
	"strings"
)

// buildPrompt constructs the system prompt for templateName, augmented by
// opts (entity-type filter, language, extra context), grounded on the
// teacher's reranker.buildRerankPrompt's strict-JSON-output instruction
// style (internal/reranker/llm_reranker.go).
func buildPrompt(templateName, text string, opts Options) string {
	var sb strings.Builder

	switch templateName {
	case TemplateCode:
		sb.WriteString("You are a code analysis system. Extract named entities (classes, functions, modules treated as TECHNOLOGY) from the following source code")
		if opts.Language != "" {
			fmt.Fprintf(&sb, " written in %s", opts.Language)
		}
		sb.WriteString(".\n\n")
	case TemplateImage:
		sb.WriteString("You are an image analysis system. Extract named entities visible or referenced in the following image description/path.\n\n")
	case TemplatePDF:
		sb.WriteString("You are a document analysis system. Extract named entities from the following extracted document text.\n\n")
	case TemplateTextEntitiesCustom:
		sb.WriteString("You are an entity extraction system. Extract only entities of the requested types from the following text.\n\n")
	case TemplateTextEntities:
		sb.WriteString("You are an entity extraction system. Extract named entities from the following text.\n\n")
	default:
		sb.WriteString("You are a general-purpose entity extraction system. Extract named entities from the following content.\n\n")
	}

	if len(opts.EntityTypes) > 0 {
		fmt.Fprintf(&sb, "Only extract entities of these types: %s\n", strings.Join(opts.EntityTypes, ", "))
	}
	if opts.Context != "" {
		fmt.Fprintf(&sb, "Additional context: %s\n", opts.Context)
	}

	sb.WriteString("\nContent:\n")
	sb.WriteString(text)

	sb.WriteString(`

Output ONLY valid JSON in this exact format, no explanation:
{"entities": [{"name": "...", "type": "person|organization|location|date|product|technology|event|other", "description": "...", "mentions": [{"context": "...", "position": 0, "relevance": 0.9}]}]}
`)
	return sb.String()
}
