package core

import (
	"sort"
	"strings"
	"unicode"

	"github.com/JonMunkholm/tabled/internal/model"
)

// MappingMatchThreshold is the minimum similarity for SuggestMapping to map a
// header onto a column.
const MappingMatchThreshold = 0.7

// ColumnMapping maps one source cell onto a target column. SourceColumn,
// when set, names a header and takes precedence over SourceIndex.
type ColumnMapping struct {
	SourceIndex  int    `json:"sourceIndex"`
	SourceColumn string `json:"sourceColumn,omitempty"`
	TargetColumn string `json:"targetColumn"`
}

// MappingMatch is one suggested mapping with its score.
type MappingMatch struct {
	ColumnMapping
	Score float64 `json:"score"`
}

// SuggestMapping pairs headers with columns by name similarity. Each header
// and each column is used at most once; best scores are assigned first.
func SuggestMapping(headers []string, columns []model.Column) []MappingMatch {
	type candidate struct {
		header int
		column int
		score  float64
	}

	var candidates []candidate
	for hi, h := range headers {
		for ci, c := range columns {
			if score := headerSimilarity(h, c.Name); score >= MappingMatchThreshold {
				candidates = append(candidates, candidate{hi, ci, score})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].header < candidates[j].header
	})

	usedHeader := make(map[int]bool)
	usedColumn := make(map[int]bool)
	var out []MappingMatch
	for _, c := range candidates {
		if usedHeader[c.header] || usedColumn[c.column] {
			continue
		}
		usedHeader[c.header] = true
		usedColumn[c.column] = true
		out = append(out, MappingMatch{
			ColumnMapping: ColumnMapping{SourceIndex: c.header, TargetColumn: columns[c.column].Name},
			Score:         c.score,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SourceIndex < out[j].SourceIndex })
	return out
}

// normalizeHeader lowercases and drops everything but letters and digits, so
// "Unit Price", "unit_price" and "UnitPrice" compare equal.
func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// headerSimilarity scores two names in [0,1]: 1 for equal normalized names,
// otherwise one minus the normalized edit distance.
func headerSimilarity(a, b string) float64 {
	na, nb := normalizeHeader(a), normalizeHeader(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	longest := max(len([]rune(na)), len([]rune(nb)))
	return 1 - float64(levenshtein(na, nb))/float64(longest)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
