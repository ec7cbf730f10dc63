package extract

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"vitalis/internal/logging"
)

// =============================================================================
// NAME MATCHING
// =============================================================================

// nameVariants maps canonical slugs to known parameter-name spellings, both
// Spanish and English, as they appear in lab reports. Long variants match by
// substring containment in either direction over normalized names; short
// abbreviations (3 chars or fewer) must match a whole token so "tg" cannot
// fire inside "tgo". First match wins.
var nameVariants = map[string][]string{
	"tsh":                {"tsh", "tirotropina", "thyroid stimulating hormone", "hormona estimulante tiroides"},
	"t4_libre":           {"t4 libre", "free t4", "tiroxina libre", "ft4"},
	"vitamina_d3":        {"vitamina d", "vitamin d", "25 oh", "25 hidroxivitamina", "colecalciferol"},
	"vitamina_b12":       {"vitamina b12", "vitamin b12", "cobalamina", "cianocobalamina"},
	"ferritina":          {"ferritina", "ferritin"},
	"glucosa":            {"glucosa", "glucose", "glucemia", "glicemia"},
	"insulina":           {"insulina", "insulin"},
	"hba1c":              {"hba1c", "hemoglobina glicosilada", "hemoglobina glicada", "glycated hemoglobin", "a1c"},
	"colesterol_total":   {"colesterol total", "total cholesterol"},
	"ldl":                {"ldl", "colesterol ldl", "lipoproteina baja densidad"},
	"hdl":                {"hdl", "colesterol hdl", "lipoproteina alta densidad"},
	"trigliceridos":      {"trigliceridos", "triglycerides", "tg"},
	"pcr_ultrasensible":  {"pcr ultrasensible", "proteina c reactiva", "hs crp", "crp", "pcr us"},
	"cortisol":           {"cortisol"},
	"testosterona_total": {"testosterona total", "testosterona", "total testosterone"},
}

// matchOrder fixes iteration order so "colesterol total" wins over the bare
// "ldl"/"hdl" substrings and longer variants are tried before short ones.
var matchOrder = []string{
	"colesterol_total", "t4_libre", "tsh", "vitamina_d3", "vitamina_b12",
	"ferritina", "glucosa", "insulina", "hba1c", "trigliceridos",
	"pcr_ultrasensible", "cortisol", "testosterona_total", "ldl", "hdl",
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName case-folds a parameter name, strips diacritics and
// punctuation, and collapses whitespace.
func NormalizeName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	stripped, _, err := transform.String(diacriticStripper, lower)
	if err != nil {
		stripped = lower
	}
	var b strings.Builder
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '/' || r == '(' || r == ')':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// MatchSlug resolves a raw parameter name to a canonical slug. Returns
// ("", false) when no variant matches.
func MatchSlug(name string) (string, bool) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return "", false
	}
	for _, slug := range matchOrder {
		for _, variant := range nameVariants[slug] {
			if variantMatches(normalized, variant) {
				return slug, true
			}
		}
	}
	return "", false
}

// variantMatches compares a normalized parameter name against one variant.
// Either side being a short abbreviation demands token equality; longer
// strings use substring containment in both directions.
func variantMatches(normalized, variant string) bool {
	if len(variant) <= 3 {
		return hasToken(normalized, variant)
	}
	if len(normalized) <= 3 {
		return hasToken(variant, normalized)
	}
	return strings.Contains(normalized, variant) || strings.Contains(variant, normalized)
}

func hasToken(s, token string) bool {
	for _, field := range strings.Fields(s) {
		if field == token {
			return true
		}
	}
	return false
}

// =============================================================================
// VALUE PARSING
// =============================================================================

// ParseValue parses a raw parameter value into a float64. Inequality
// prefixes (<, >, <=, >=, and their unicode forms) are tolerated and
// stripped; comma decimal separators are accepted. Returns false for
// anything non-numeric.
func ParseValue(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	for _, prefix := range []string{"<=", ">=", "≤", "≥", "<", ">"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
			break
		}
	}
	s = strings.ReplaceAll(s, ",", ".")
	// Drop a trailing unit glued to the number ("5.2 mg/dL" or "5.2mg/dL").
	if idx := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.' && r != '-' && r != '+'
	}); idx > 0 {
		s = s[:idx]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// =============================================================================
// EXTRACTION
// =============================================================================

// FromDocuments extracts canonical biomarker observations from one or more
// structured documents. Unmatched parameter names and unparseable values are
// collected as diagnostics and otherwise dropped. Pure transformation: no
// side effects, never fails.
func FromDocuments(docs []Document) Result {
	var res Result
	for _, doc := range docs {
		for _, mod := range doc.Modules {
			for _, param := range mod.Parameters {
				slug, ok := MatchSlug(param.Name)
				if !ok {
					res.Unmatched = append(res.Unmatched, param.Name)
					continue
				}
				value, ok := ParseValue(param.Value)
				if !ok {
					res.Unmatched = append(res.Unmatched, param.Name)
					continue
				}
				res.Values = append(res.Values, BiomarkerValue{
					Slug:       slug,
					Value:      value,
					Unit:       param.Unit,
					Date:       doc.ExamDate,
					DocumentID: doc.ID,
					Source:     mod.Name,
				})
			}
		}
	}

	logging.Extractor("FromDocuments: %d documents -> %d values, %d unmatched",
		len(docs), len(res.Values), len(res.Unmatched))
	return res
}

// Dedupe collapses repeated slugs, keeping the observation with the most
// recent date. Undated observations are treated as epoch-old, so any dated
// observation supersedes them. Idempotent; input order is not preserved
// beyond first-seen order of slugs.
func Dedupe(values []BiomarkerValue) []BiomarkerValue {
	best := make(map[string]BiomarkerValue, len(values))
	order := make([]string, 0, len(values))
	for _, v := range values {
		existing, seen := best[slugKey(v)]
		if !seen {
			order = append(order, slugKey(v))
			best[slugKey(v)] = v
			continue
		}
		if observedAt(v).After(observedAt(existing)) {
			best[slugKey(v)] = v
		}
	}

	out := make([]BiomarkerValue, 0, len(best))
	for _, slug := range order {
		out = append(out, best[slug])
	}
	return out
}

// ValueMap converts a deduplicated observation list into the slug -> value
// map the evaluator consumes.
func ValueMap(values []BiomarkerValue) map[string]float64 {
	m := make(map[string]float64, len(values))
	for _, v := range values {
		m[v.Slug] = v.Value
	}
	return m
}

func slugKey(v BiomarkerValue) string { return v.Slug }

// observedAt treats undated observations as epoch-old so dated ones always win.
func observedAt(v BiomarkerValue) time.Time {
	if v.Date != nil {
		return *v.Date
	}
	return time.Time{}
}
