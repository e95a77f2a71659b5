package aggregate

import (
	"sort"
	"strings"
	"unicode"

	"dajam-backend/internal/models"
)

// NormalizeWord trims, lowercases and collapses inner whitespace. An empty
// result means the entry should be dropped.
func NormalizeWord(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace), " ")
}

// CountWords groups word-cloud entries after normalizing them. The most
// frequent word comes first; ties keep first-seen order.
func CountWords(entries []string) []models.WordCount {
	index := make(map[string]int)
	var out []models.WordCount

	for _, e := range entries {
		w := NormalizeWord(e)
		if w == "" {
			continue
		}
		if i, ok := index[w]; ok {
			out[i].Count++
			continue
		}
		index[w] = len(out)
		out = append(out, models.WordCount{Word: w, Count: 1})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}
