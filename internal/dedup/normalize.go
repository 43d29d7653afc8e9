package dedup

import (
	"regexp"
	"strings"
	"unicode"
)

// editionSuffixes are cosmetic markers sources append to titles.
var editionSuffixes = []string{
	"complete", "completed", "serialized", "serializing", "latest", "full",
	"全本", "完本", "完结", "连载", "最新", "精校", "全集", "番外",
}

var (
	// volumeRe strips "vol 3", "volume 2", "part 1", "book 4" and CJK
	// "第三卷" style numbering.
	volumeRe   = regexp.MustCompile(`(?i)\b(vol|volume|part|book)\.?\s*\d+\b`)
	cjkVolume  = regexp.MustCompile(`第\s*[0-9零一二三四五六七八九十百千]+\s*[卷部册季]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// NormalizeText lowercases, strips punctuation and collapses whitespace.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(b.String(), " "))
}

// NormalizeTitle additionally removes edition suffixes and volume numbering
// so cosmetic differences do not block a match.
func NormalizeTitle(s string) string {
	s = volumeRe.ReplaceAllString(strings.ToLower(s), " ")
	s = cjkVolume.ReplaceAllString(s, " ")
	s = NormalizeText(s)

	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if !isEditionSuffix(w) {
			kept = append(kept, stripEditionSuffix(w))
		}
	}
	return strings.Join(kept, " ")
}

// NormalizeAuthor treats author names as plain text.
func NormalizeAuthor(s string) string {
	return NormalizeText(s)
}

func isEditionSuffix(w string) bool {
	for _, s := range editionSuffixes {
		if w == s {
			return true
		}
	}
	return false
}

// stripEditionSuffix removes a CJK edition marker glued to the end of a word,
// e.g. "斗破苍穹全本".
func stripEditionSuffix(w string) string {
	for _, s := range editionSuffixes {
		if s[0] < 0x80 {
			continue
		}
		if strings.HasSuffix(w, s) && len(w) > len(s) {
			return strings.TrimSuffix(w, s)
		}
	}
	return w
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// stringSimilarity is 1 - normalized edit distance. Two empty strings are
// identical.
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes the edit distance over runes with two rows.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
