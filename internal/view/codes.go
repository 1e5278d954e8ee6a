package view

import "strings"

// ParseCodes splits a fund pool typed as "A, B C" into normalised, deduplicated codes.
func ParseCodes(s string) []string {
	raw := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '，' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	seen := map[string]struct{}{}
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		cu := strings.ToUpper(strings.TrimSpace(c))
		if cu == "" {
			continue
		}
		if _, ok := seen[cu]; ok {
			continue
		}
		seen[cu] = struct{}{}
		out = append(out, cu)
	}
	return out
}
