package filter

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/abelbrown/discover/internal/model"
)

// Tier is one severity level of restricted keywords.
type Tier struct {
	Weight   float64
	Keywords []*regexp.Regexp
}

// Restricted scores items for adult/restricted content and decides whether
// to exclude them. The whole filter is gated by Allow.
type Restricted struct {
	// Allow disables exclusion entirely.
	Allow bool

	// Threshold is the score at or above which an item is excluded.
	Threshold float64

	Tiers []Tier

	// KnownDomains contribute KnownDomainBonus when the host equals or is a
	// subdomain of the entry.
	KnownDomains     []string
	KnownDomainBonus float64

	// DomainTokens contribute DomainTokenScore for each host label that
	// contains one.
	DomainTokens     []string
	DomainTokenScore float64
}

// Default scoring constants.
const (
	DefaultThreshold        = 10.0
	DefaultKnownDomainBonus = 50.0
	DefaultDomainTokenScore = 8.0
)

// DefaultRestricted returns a filter with the built-in keyword tiers and
// domain reputation list.
func DefaultRestricted(allow bool, threshold float64) *Restricted {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Restricted{
		Allow:     allow,
		Threshold: threshold,
		Tiers: []Tier{
			{Weight: 10, Keywords: compileKeywords([]string{
				"色情", "成人视频", "18禁", "r18", "porn", "xxx", "hentai", "nsfw",
			})},
			{Weight: 5, Keywords: compileKeywords([]string{
				"情色", "肉文", "禁漫", "成人", "无码", "erotic", "adult", "uncensored",
			})},
			{Weight: 2, Keywords: compileKeywords([]string{
				"福利", "性感", "绅士", "sexy", "lewd",
			})},
		},
		KnownDomains: []string{
			"pornhub.com",
			"xvideos.com",
			"xhamster.com",
			"xnxx.com",
			"nhentai.net",
			"e-hentai.org",
			"hanime.tv",
			"18comic.vip",
		},
		KnownDomainBonus: DefaultKnownDomainBonus,
		DomainTokens:     []string{"porn", "hentai", "xxx", "sex", "18comic", "nsfw", "jav"},
		DomainTokenScore: DefaultDomainTokenScore,
	}
}

// compileKeywords builds case-insensitive matchers. ASCII keywords match on
// word boundaries; CJK keywords match as substrings.
func compileKeywords(keywords []string) []*regexp.Regexp {
	result := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		p := regexp.QuoteMeta(strings.ToLower(kw))
		if isASCII(kw) {
			p = `\b` + p + `\b`
		}
		if re, err := regexp.Compile(`(?i)` + p); err == nil {
			result = append(result, re)
		}
	}
	return result
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// Score returns the restricted-content score of an item. It does not
// depend on Allow.
func (f *Restricted) Score(item model.RawItem, src *model.SourceDescriptor) float64 {
	fields := []string{item.Name, item.Intro, item.Kind}
	if src != nil {
		fields = append(fields, src.NameAndURL())
	}

	var score float64
	for _, tier := range f.Tiers {
		for _, re := range tier.Keywords {
			for _, field := range fields {
				if field != "" && re.MatchString(field) {
					score += tier.Weight
				}
			}
		}
	}

	hosts := []string{hostOf(item.TocURL)}
	if src != nil {
		hosts = append(hosts, hostOf(src.URL))
	}
	score += f.domainScore(hosts)

	return score
}

// domainScore applies the reputation term once per distinct host.
func (f *Restricted) domainScore(hosts []string) float64 {
	seen := make(map[string]bool, len(hosts))
	var score float64
	for _, host := range hosts {
		if host == "" || seen[host] {
			continue
		}
		seen[host] = true

		for _, d := range f.KnownDomains {
			if host == d || strings.HasSuffix(host, "."+d) {
				score += f.KnownDomainBonus
				break
			}
		}
		for _, label := range strings.FieldsFunc(host, func(r rune) bool { return r == '.' || r == '-' }) {
			for _, tok := range f.DomainTokens {
				if strings.Contains(label, tok) {
					score += f.DomainTokenScore
				}
			}
		}
	}
	return score
}

// Excluded reports whether a score crosses the threshold. Monotone in score.
func (f *Restricted) Excluded(score float64) bool {
	return score >= f.Threshold
}

// ShouldExclude returns true if the item must be dropped. Always false when
// restricted content is allowed.
func (f *Restricted) ShouldExclude(item model.RawItem, src *model.SourceDescriptor) bool {
	if f.Allow {
		return false
	}
	return f.Excluded(f.Score(item, src))
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
