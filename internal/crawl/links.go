package crawl

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks returns the same-origin anchors of an HTML document in
// document order, resolved against pageURL, without fragments and without
// duplicates. mailto: and javascript: links are skipped.
func ExtractLinks(html, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		lower := strings.ToLower(href)
		if href == "" || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		abs.RawFragment = ""
		if abs.Scheme != base.Scheme || abs.Host != base.Host {
			return
		}
		link := abs.String()
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links, nil
}

// ArtifactName derives a capture file name from the crawl start URL:
// https://shop.example.com/app becomes shop_example_com-app.jsonl.
func ArtifactName(startURL string) string {
	name := strings.TrimSpace(startURL)
	switch {
	case strings.HasPrefix(name, "https://"):
		name = strings.TrimPrefix(name, "https://")
	case strings.HasPrefix(name, "http://"):
		name = strings.TrimPrefix(name, "http://")
	}
	name = strings.NewReplacer(".", "_", "/", "-").Replace(name)
	return name + ".jsonl"
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
