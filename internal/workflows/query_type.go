package workflows

import (
	"strings"
	"unicode"
)

// QueryType is the classified intent of a query.
type QueryType string

const (
	QueryTypeGreeting    QueryType = "greeting"
	QueryTypeFactual     QueryType = "factual"
	QueryTypeCalculation QueryType = "calculation"
	QueryTypeGeneral     QueryType = "general"
	QueryTypeWebCurrent  QueryType = "web_current"
)

// QueryTypes lists every valid type in taxonomy order.
var QueryTypes = []QueryType{
	QueryTypeGreeting,
	QueryTypeFactual,
	QueryTypeCalculation,
	QueryTypeGeneral,
	QueryTypeWebCurrent,
}

func (t QueryType) String() string { return string(t) }

// Valid reports whether t is one of the five known types.
func (t QueryType) Valid() bool {
	for _, q := range QueryTypes {
		if q == t {
			return true
		}
	}
	return false
}

// NeedsRetrieval is true only for factual queries.
func (t QueryType) NeedsRetrieval() bool { return t == QueryTypeFactual }

// NeedsWebSearch is true only for web_current queries.
func (t QueryType) NeedsWebSearch() bool { return t == QueryTypeWebCurrent }

// PromptTemplate names the answer template used for t.
func (t QueryType) PromptTemplate() string {
	switch t {
	case QueryTypeGreeting:
		return "conversational"
	case QueryTypeCalculation:
		return "calculation"
	default:
		return "grounded"
	}
}

// ParseQueryType normalizes a raw model label: lower-cased, trimmed, with quotes
// and punctuation stripped, keeping the first token. Unknown labels map to general
// with ok=false.
func ParseQueryType(raw string) (t QueryType, ok bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '/' || r == ','
	})
	trim := func(f string) string {
		return strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && r != '_' })
	}
	// Leading list markers such as "1." strip to nothing and are skipped.
	i := 0
	for i < len(fields) && trim(fields[i]) == "" {
		i++
	}
	if i == len(fields) {
		return QueryTypeGeneral, false
	}
	// "web-current" and "web current" are common model spellings.
	label := strings.ReplaceAll(trim(fields[i]), "-", "_")
	if label == "web" && i+1 < len(fields) && strings.HasPrefix(fields[i+1], "current") {
		label = "web_current"
	}
	t = QueryType(label)
	if !t.Valid() {
		return QueryTypeGeneral, false
	}
	return t, true
}
