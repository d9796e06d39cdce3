package schema

import (
	"regexp"
	"strings"
)

var (
	camelTokenPattern = regexp.MustCompile(`[A-Z]+[a-z0-9]*|[a-z0-9]+`)
	normalizePattern  = regexp.MustCompile(`[^a-z0-9]`)
)

// AliasMap maps a canonical field to the header spellings accepted for it
type AliasMap map[string][]string

// AliasVariants expands a canonical field name into the header spellings it is
// commonly exported under. Order is significant: earlier variants win when
// several headers in one file resolve to the same field.
func AliasVariants(name string, extras ...string) []string {
	variants := make([]string, 0, 8+3*len(extras))
	add := func(value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		for _, existing := range variants {
			if existing == value {
				return
			}
		}
		variants = append(variants, value)
	}

	add(name)
	add(strings.ReplaceAll(name, " ", ""))
	add(strings.ToLower(name))
	add(strings.ToLower(strings.ReplaceAll(name, " ", "")))

	if tokens := camelTokenPattern.FindAllString(name, -1); len(tokens) > 0 {
		lowered := make([]string, len(tokens))
		for i, token := range tokens {
			lowered[i] = strings.ToLower(token)
		}
		snake := strings.Join(lowered, "_")
		add(snake)
		add(strings.ReplaceAll(snake, "_", ""))
	}

	for _, extra := range extras {
		add(extra)
		add(strings.ToLower(extra))
		add(strings.ReplaceAll(extra, "_", ""))
	}
	return variants
}

// NormalizeToken lowercases a header and strips whitespace and punctuation
func NormalizeToken(value string) string {
	return normalizePattern.ReplaceAllString(strings.ToLower(value), "")
}

// HeaderMap maps a normalized token to the original header names carrying it,
// in first-seen order
type HeaderMap map[string][]string

// NormalizeHeaders builds a HeaderMap from raw CSV headers. Blank headers are
// ignored; surrounding whitespace is trimmed before normalization.
func NormalizeHeaders(columns []string) HeaderMap {
	normalized := make(HeaderMap, len(columns))
	for _, column := range columns {
		trimmed := strings.TrimSpace(column)
		if trimmed == "" {
			continue
		}
		token := NormalizeToken(trimmed)
		normalized[token] = append(normalized[token], trimmed)
	}
	return normalized
}

// MatchAlias returns the first header matching any alias, in alias order
func MatchAlias(aliases []string, headers HeaderMap) (string, bool) {
	for _, alias := range aliases {
		if names, ok := headers[NormalizeToken(alias)]; ok && len(names) > 0 {
			return names[0], true
		}
	}
	return "", false
}
