// Package kvtext parses the loose "KEY: value" line format requested from language models.
package kvtext

import "strings"

// Parse collects KEY: value lines. Keys are upper-cased and trimmed of markdown
// decoration, the first occurrence of a key wins, and lines without a colon are ignored.
// Lines of any length are accepted.
func Parse(text string) map[string]string {
	fields := make(map[string]string)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		line = strings.TrimLeft(line, "-*#> ")
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := normalizeKey(line[:idx])
		if key == "" || strings.ContainsAny(key, " \t") && len(strings.Fields(key)) > 2 {
			continue
		}
		if _, seen := fields[key]; seen {
			continue
		}
		value := strings.TrimSpace(line[idx+1:])
		value = strings.Trim(value, "\"'`")
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

// Lookup returns a non-empty value for key.
func Lookup(fields map[string]string, key string) (string, bool) {
	v, ok := fields[normalizeKey(key)]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// SplitList splits comma or semicolon separated values, dropping blanks.
func SplitList(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.Trim(p, "#\"'"))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeKey(raw string) string {
	key := strings.TrimSpace(raw)
	key = strings.Trim(key, "*_`")
	return strings.ToUpper(strings.TrimSpace(key))
}
