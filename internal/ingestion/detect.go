package ingestion

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// extensionTypes backstops mimetype's magic-byte detection for source-code
// and plain-text extensions it has no signature for (spec.md §4.4
// "Content-type detection: try magic-byte signature first, then extension").
var extensionTypes = map[string]string{
	".go":         "text/x-go",
	".py":         "text/x-python",
	".js":         "text/javascript",
	".ts":         "text/typescript",
	".java":       "text/x-java",
	".c":          "text/x-c",
	".cpp":        "text/x-c++",
	".rb":         "text/x-ruby",
	".rs":         "text/x-rust",
	".md":         "text/markdown",
	".txt":        "text/plain",
	".json":       "application/json",
	".yaml":       "text/x-yaml",
	".yml":        "text/x-yaml",
}

// DefaultContentType is used when neither magic bytes nor extension resolve
// a type (spec.md §4.4).
const DefaultContentType = "application/octet-stream"

// DetectContentType tries a magic-byte signature first, then the file
// extension, then falls back to DefaultContentType.
func DetectContentType(data []byte, path string) string {
	if len(data) > 0 {
		mt := mimetype.Detect(data)
		if mt != nil && mt.String() != "" && mt.String() != "application/octet-stream" {
			return mt.String()
		}
	}
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		if t, ok := extensionTypes[ext]; ok {
			return t
		}
	}
	return DefaultContentType
}
