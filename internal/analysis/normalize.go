package analysis

import (
	"regexp"
	"strings"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
)

// Legal form abbreviations that vary between rulings for the same
// creditor, so they are dropped before comparison.
var legalForms = map[string]bool{
	"тов":  true,
	"пат":  true,
	"ат":   true,
	"прат": true,
	"кп":   true,
	"дп":   true,
	"фоп":  true,
	"спд":  true,
	"ооо":  true,
	"зат":  true,
	"ват":  true,
}

var quoteRe = regexp.MustCompile(`["'` + "`" + `„“”«»]`)

// NormalizeName reduces a creditor name to a comparable form: quotes
// and legal form abbreviations removed, whitespace collapsed, lowercased.
func NormalizeName(name string) string {
	s := quoteRe.ReplaceAllString(name, "")
	var kept []string
	for _, field := range strings.Fields(s) {
		if legalForms[strings.ToLower(field)] {
			continue
		}
		kept = append(kept, field)
	}
	return strings.ToLower(strings.Join(kept, " "))
}

// ClassifyDocument infers the ruling kind from its operative part.
// Summary rulings restate claims accepted earlier, full versions
// repeat the initial ruling with additions.
func ClassifyDocument(clause string) string {
	lowered := strings.ToLower(clause)
	switch {
	case strings.Contains(lowered, "підсумками попереднього засідання") ||
		strings.Contains(lowered, "перераховуються"):
		return database.DocTypeSummary
	case strings.Contains(lowered, "повна версія") ||
		strings.Contains(lowered, "додатково"):
		return database.DocTypeFull
	default:
		return database.DocTypeInitial
	}
}
