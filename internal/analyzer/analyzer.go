// Package analyzer implements the Query Analyzer stage: intent
// classification, structural-path detection, and filter extraction.
//
// Grounded on original_source/rag_server/hybrid_search.go's
// detect_query_intent keyword-set rules and self_query_parser.py's ordered
// regex extraction passes.
package analyzer

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/veyron-labs/wikiq/internal/query"
)

// ErrQueryTooShort is returned when, after cleanup, the query carries no
// alphanumeric tokens.
type ErrQueryTooShort struct {
	Raw string
}

func (e *ErrQueryTooShort) Error() string {
	return "query too short after cleanup: " + e.Raw
}

// Hints are caller-supplied overrides (e.g. an explicit space filter from
// the RPC request) that take precedence over anything extracted from text.
type Hints struct {
	Space string
	Limit int
}

var (
	navigationalKeywords = []string{
		"where", "find", "url", "link", "page",
		"где", "найди", "покажи", "страница", "документ", "ссылка",
	}
	howToKeywords = []string{
		"how", "setup", "install", "configure", "инструкция",
		"как", "настроить", "установить", "запустить", "сделать",
	}
	factualKeywords = []string{
		"what", "when", "who", "какой", "что такое",
		"какая", "какие", "что", "когда", "кто", "сколько",
	}
	exploratoryKeywords = []string{
		"which", "list", "compare", "какие", "перечисли",
		"сравни", "список", "все",
	}
)

// classifyIntent applies fixed-priority keyword matching:
// Navigational > HowTo > Exploratory > Factual, default Factual.
func classifyIntent(lower string) query.Intent {
	if containsAny(lower, navigationalKeywords) {
		return query.IntentNavigational
	}
	if containsAny(lower, howToKeywords) {
		return query.IntentHowTo
	}
	if containsAny(lower, exploratoryKeywords) {
		return query.IntentExploratory
	}
	if containsAny(lower, factualKeywords) {
		return query.IntentFactual
	}
	return query.IntentFactual
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// structuralArrow matches "A > B > C" style path queries.
var structuralArrow = regexp.MustCompile(`\s*>\s*`)

// structuralBlock matches "по блоку X, а точнее Y" phrasing.
var structuralBlock = regexp.MustCompile(`(?i)по блоку\s+([^,]+),?\s*а точнее\s+(.+)`)

func detectStructure(raw string) query.Structure {
	if m := structuralBlock.FindStringSubmatch(raw); len(m) == 3 {
		return query.Structure{
			IsStructural: true,
			Parts:        []string{normalizePart(m[1]), normalizePart(m[2])},
		}
	}

	if strings.Contains(raw, ">") {
		parts := structuralArrow.Split(raw, -1)
		var cleaned []string
		for _, p := range parts {
			p = normalizePart(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) >= 2 {
			return query.Structure{IsStructural: true, Parts: cleaned}
		}
	}

	return query.Structure{}
}

func normalizePart(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Ordered filter-extraction regexes. Each successful match removes the
// matched span from the working query before the next pass runs, so later
// passes never re-match tokens a prior pass already consumed.
var (
	spaceRe   = regexp.MustCompile(`(?i)\bin space\s+([A-Za-z0-9_\-]+)\b|\bспейс\s+([A-Za-z0-9_\-]+)\b`)
	authorRe  = regexp.MustCompile(`(?i)\bby\s+([A-Za-z][\wА-Яа-я\.\-]*)\b|\bавтор[а-я]*\s+([A-Za-z][\wА-Яа-я\.\-]*)\b`)
	recentRe  = regexp.MustCompile(`(?i)\blatest\b|\brecent\b|\bнедавн\w*\b|\bпоследн\w*\b`)
	weekRe    = regexp.MustCompile(`(?i)\bthis week\b|\bна этой неделе\b`)
	monthRe   = regexp.MustCompile(`(?i)\bthis month\b|\bв этом месяце\b`)
	yearRe    = regexp.MustCompile(`(?i)\bthis year\b|\bв этом году\b`)
	afterRe   = regexp.MustCompile(`(?i)\bafter\s+(\d{4}-\d{2}-\d{2})\b`)
	beforeRe  = regexp.MustCompile(`(?i)\bbefore\s+(\d{4}-\d{2}-\d{2})\b`)
	typeRe    = regexp.MustCompile(`(?i)\btype[:=]\s*(page|blogpost|attachment)\b`)
	statusRe  = regexp.MustCompile(`(?i)\bstatus[:=]\s*(\w+)\b`)
)

// Analyze implements the Query Analyzer contract: clean the query, classify
// intent, detect structural paths, and extract filters. Returns
// ErrQueryTooShort if, after cleanup, no alphanumeric token remains.
func Analyze(raw string, hints Hints) (query.Analyzed, error) {
	working := raw
	filters := query.Filters{Space: hints.Space}

	if m := spaceRe.FindStringSubmatch(working); m != nil && filters.Space == "" {
		filters.Space = firstNonEmpty(m[1:])
		working = spaceRe.ReplaceAllString(working, "")
	}
	if m := authorRe.FindStringSubmatch(working); m != nil {
		filters.Author = firstNonEmpty(m[1:])
		working = authorRe.ReplaceAllString(working, "")
	}
	now := time.Now().UTC()
	switch {
	case recentRe.MatchString(working):
		from := now.AddDate(0, 0, -30)
		filters.DateFrom = &from
		working = recentRe.ReplaceAllString(working, "")
	case weekRe.MatchString(working):
		from := now.AddDate(0, 0, -7)
		filters.DateFrom = &from
		working = weekRe.ReplaceAllString(working, "")
	case monthRe.MatchString(working):
		from := now.AddDate(0, -1, 0)
		filters.DateFrom = &from
		working = monthRe.ReplaceAllString(working, "")
	case yearRe.MatchString(working):
		from := now.AddDate(-1, 0, 0)
		filters.DateFrom = &from
		working = yearRe.ReplaceAllString(working, "")
	}
	if m := afterRe.FindStringSubmatch(working); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]); err == nil {
			filters.DateFrom = &t
		}
		working = afterRe.ReplaceAllString(working, "")
	}
	if m := beforeRe.FindStringSubmatch(working); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]); err == nil {
			filters.DateTo = &t
		}
		working = beforeRe.ReplaceAllString(working, "")
	}
	if m := typeRe.FindStringSubmatch(working); m != nil {
		filters.ContentType = strings.ToLower(m[1])
		working = typeRe.ReplaceAllString(working, "")
	}
	if m := statusRe.FindStringSubmatch(working); m != nil {
		filters.Status = m[1]
		working = statusRe.ReplaceAllString(working, "")
	}

	cleaned := collapseSpace(working)

	if !hasAlphanumeric(cleaned) {
		return query.Analyzed{}, &ErrQueryTooShort{Raw: raw}
	}

	structure := detectStructure(raw)
	intent := classifyIntent(strings.ToLower(cleaned))

	return query.Analyzed{
		Raw:          raw,
		CleanedQuery: cleaned,
		Intent:       intent,
		Structure:    structure,
		Filters:      filters,
	}, nil
}

func firstNonEmpty(ss []string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasAlphanumeric(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
