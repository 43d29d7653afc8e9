package classify

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/abelbrown/discover/internal/model"
)

// platformTokens maps well-known platform identifiers, matched against the
// lowercased source name and URL, to the category their content always has.
// Order matters: the first hit wins.
var platformTokens = []struct {
	token    string
	category model.Category
}{
	{"红果", model.Drama},
	{"hongguo", model.Drama},
	{"河马剧场", model.Drama},
	{"短剧", model.Drama},
	{"喜马拉雅", model.Audio},
	{"ximalaya", model.Audio},
	{"懒人听书", model.Audio},
	{"lrts", model.Audio},
	{"蜻蜓fm", model.Audio},
	{"qingting", model.Audio},
	{"酷我", model.Music},
	{"kuwo", model.Music},
	{"酷狗", model.Music},
	{"kugou", model.Music},
	{"网易云", model.Music},
	{"music.163", model.Music},
	{"y.qq.com", model.Music},
	{"动漫之家", model.Image},
	{"manhua", model.Image},
	{"lanzou", model.File},
	{"蓝奏", model.File},
	{"网盘", model.File},
}

// keywordScores are the per-category keyword tables. Scores are multiplied
// by the weight of the field the keyword was found in.
var keywordScores = map[model.Category]map[string]float64{
	model.Text: {
		"小说": 6, "章节": 5, "连载": 4, "完结": 4, "玄幻": 6, "修仙": 6,
		"都市": 3, "言情": 6, "网文": 6,
		"novel": 6, "chapter": 5, "fiction": 5, "ebook": 4,
	},
	model.Audio: {
		"有声书": 10, "有声": 6, "听书": 8, "广播剧": 8, "播讲": 6, "主播": 4,
		"评书": 8, "相声": 6,
		"audiobook": 10, "podcast": 6, "narrated": 5, "radio": 4,
	},
	model.Image: {
		"漫画": 10, "图集": 8, "写真": 6, "插画": 6, "壁纸": 6, "条漫": 8,
		"comic": 8, "manga": 8, "manhua": 8, "gallery": 6, "wallpaper": 6,
	},
	model.Music: {
		"歌曲": 8, "音乐": 6, "专辑": 6, "歌手": 6, "单曲": 8, "歌词": 5, "翻唱": 6,
		"music": 6, "song": 6, "album": 6, "lyrics": 5, "playlist": 5,
	},
	model.Drama: {
		"短剧": 10, "电视剧": 8, "电影": 8, "影视": 8, "剧集": 6, "视频": 6,
		"动漫": 6, "番剧": 8,
		"drama": 6, "movie": 8, "video": 6, "episode": 5, "series": 4, "anime": 6,
	},
	model.File: {
		"网盘": 8, "下载": 4, "文件": 4, "资源包": 6,
		"pdf": 8, "epub": 8, "mobi": 8, "zip": 6, "download": 4, "torrent": 6,
	},
}

// dramaNegatives are literary terms that argue against a video category.
var dramaNegatives = []string{
	"章节", "卷", "完结", "连载", "小说",
	"chapter", "volume", "completed", "novel",
}

var (
	audioExtRe = regexp.MustCompile(`(?i)\.(mp3|m4a|flac|wav|aac|ogg|ape)(\?|#|\s|$)`)
	videoExtRe = regexp.MustCompile(`(?i)\.(mp4|m3u8|flv|mkv|avi|mov|webm)(\?|#|\s|$)`)
)

// episodePatterns look like video numbering or durations. "mm:ss" also
// appears in track listings, so these only count once the video category
// already has independent support.
var episodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`第\s*[0-9一二三四五六七八九十百]+\s*[集季]`),
	regexp.MustCompile(`更新至\s*\d+\s*集`),
	regexp.MustCompile(`(?i)\bS\d{1,2}\s*E\d{1,3}\b`),
	regexp.MustCompile(`(?i)\bEP?\s?\d{1,3}\b`),
	regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b`),
}

// matcher is a compiled keyword. ASCII keywords match on word boundaries so
// short tokens do not fire inside longer words; CJK keywords match as
// substrings because the script has no spaces.
type matcher struct {
	keyword string
	score   float64
	re      *regexp.Regexp
}

func (m matcher) match(lower string) bool {
	if m.re != nil {
		return m.re.MatchString(lower)
	}
	return strings.Contains(lower, m.keyword)
}

func compileKeyword(kw string, score float64) matcher {
	m := matcher{keyword: strings.ToLower(kw), score: score}
	if isASCII(kw) {
		m.re = regexp.MustCompile(`\b` + regexp.QuoteMeta(m.keyword) + `\b`)
	}
	return m
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

var (
	compiledKeywords  map[model.Category][]matcher
	compiledNegatives []matcher
)

func init() {
	compiledKeywords = make(map[model.Category][]matcher, len(keywordScores))
	for _, cat := range model.Categories {
		table := keywordScores[cat]
		keys := make([]string, 0, len(table))
		for k := range table {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			compiledKeywords[cat] = append(compiledKeywords[cat], compileKeyword(k, table[k]))
		}
	}
	for _, kw := range dramaNegatives {
		compiledNegatives = append(compiledNegatives, compileKeyword(kw, 1))
	}
}
