package fetch

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/abelbrown/discover/internal/model"
)

// parseHTML extracts one raw item per element matching rule.List. Field
// selectors are relative to that element; "sel@attr" reads an attribute
// instead of text, and "@attr" reads it from the list element itself.
func parseHTML(r io.Reader, rule *model.ExploreRule, base *url.URL, origin string) ([]model.RawItem, error) {
	if rule.List == "" || rule.Name == "" {
		return nil, fmt.Errorf("explore rule needs list and name selectors")
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	var items []model.RawItem
	doc.Find(rule.List).Each(func(_ int, s *goquery.Selection) {
		item := model.RawItem{
			Name:          extract(s, rule.Name),
			Author:        extract(s, rule.Author),
			Kind:          extract(s, rule.Kind),
			Intro:         truncate(extract(s, rule.Intro), 500),
			LatestChapter: extract(s, rule.LatestChapter),
			OriginURL:     origin,
		}
		if item.Name == "" {
			return
		}
		item.CoverURL = resolve(base, extract(s, rule.Cover))
		item.TocURL = resolve(base, extract(s, rule.TocURL))
		items = append(items, item)
	})
	return items, nil
}

func extract(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	sel, attr, hasAttr := strings.Cut(selector, "@")
	target := s
	if sel = strings.TrimSpace(sel); sel != "" {
		target = s.Find(sel).First()
	}
	if hasAttr {
		v, _ := target.Attr(strings.TrimSpace(attr))
		return strings.TrimSpace(v)
	}
	return collapse(target.Text())
}

func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// plainText strips markup from feed descriptions.
func plainText(s string) string {
	if !strings.Contains(s, "<") {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
