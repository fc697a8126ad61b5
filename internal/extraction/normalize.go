package extraction

import (
	"regexp"
	"strings"

	"github.com/knoguchi/ingestor/internal/domain"
)

// lowercasedArticles are kept lowercase inside title-cased person/location
// names (spec.md §4.3: "lowercased articles").
var lowercasedArticles = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "de": true,
	"van": true, "von": true, "der": true, "la": true, "le": true,
}

var whitespaceRE = regexp.MustCompile(`\s+`)

var dateSlashRE = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
var dateISORE = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// NormalizeName produces the normalizedName used for (normalizedName, type)
// entity dedup, per spec.md §4.3's per-type rules.
func NormalizeName(name string, t domain.EntityType) string {
	name = strings.TrimSpace(name)
	name = strings.Trim(name, `"'`+"“”‘’")
	name = whitespaceRE.ReplaceAllString(name, " ")

	switch t {
	case domain.EntityTypePerson, domain.EntityTypeLocation:
		return titleCaseWithLowercasedArticles(name)
	case domain.EntityTypeOrganization:
		return name
	case domain.EntityTypeDate:
		return normalizeDate(name)
	default:
		return name
	}
}

func titleCaseWithLowercasedArticles(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		lower := strings.ToLower(w)
		if i > 0 && lowercasedArticles[lower] {
			words[i] = lower
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// normalizeDate converts MM/DD/YYYY or YYYY-MM-DD into YYYY-MM-DD. Inputs
// that match neither pattern pass through unchanged (normalization is
// best-effort; storage does not reject malformed dates).
func normalizeDate(s string) string {
	if m := dateSlashRE.FindStringSubmatch(s); m != nil {
		month, day, year := m[1], m[2], m[3]
		if len(month) == 1 {
			month = "0" + month
		}
		if len(day) == 1 {
			day = "0" + day
		}
		return year + "-" + month + "-" + day
	}
	if dateISORE.MatchString(s) {
		return s
	}
	return s
}

// ValidateType folds unknown types to EntityTypeOther (spec.md §4.3 "Type
// validation"). The bool return reports whether folding occurred, so callers
// can log a warning.
func ValidateType(t domain.EntityType) (domain.EntityType, bool) {
	if domain.ValidEntityType(t) {
		return t, false
	}
	return domain.EntityTypeOther, true
}
