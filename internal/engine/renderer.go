package engine

import (
	"fmt"
	"regexp"
	"sort"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

// Render resolves a language-tagged content block and substitutes {path}
// placeholders from the session variables.
//
// Language fallback: session language, then the document default, then the
// first available key in sorted order. A placeholder whose path resolves to
// nothing renders as an empty string. Render is pure and total: it never
// mutates vars and never fails.
func Render(content map[string]string, language, defaultLanguage string, vars map[string]any) string {
	text := selectLanguage(content, language, defaultLanguage)
	if text == "" {
		return ""
	}
	return Interpolate(text, vars)
}

// Interpolate substitutes {path} placeholders in a raw template.
func Interpolate(template string, vars map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := match[1 : len(match)-1]
		v, ok := Lookup(vars, path)
		if !ok || v == nil {
			return ""
		}
		return stringify(v)
	})
}

func selectLanguage(content map[string]string, language, defaultLanguage string) string {
	if len(content) == 0 {
		return ""
	}
	if t, ok := content[language]; ok {
		return t
	}
	if t, ok := content[defaultLanguage]; ok {
		return t
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return content[keys[0]]
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; keep integers clean.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
