package crawler

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// onionLinkPattern catches onion URLs sitting outside anchor tags, in
// scripts or plain text.
var onionLinkPattern = regexp.MustCompile(`https?://[a-zA-Z0-9]{16,56}\.onion[^\s"'<>]*`)

// ExtractLinks returns the distinct absolute URLs reachable from a page:
// anchor hrefs resolved against the page URL, plus bare onion URLs found
// anywhere in the raw HTML. Trailing slashes are trimmed so the same
// target never appears twice.
func ExtractLinks(pageURL string, html []byte) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	var links []string
	seen := make(map[string]struct{})
	add := func(link string) {
		link = strings.TrimRight(strings.TrimSpace(link), "/")
		if link == "" {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err == nil && base != nil {
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			href = strings.TrimSpace(href)
			if href == "" || strings.HasPrefix(href, "#") ||
				strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
				return
			}
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			resolved := base.ResolveReference(ref)
			if resolved.Scheme != "http" && resolved.Scheme != "https" {
				return
			}
			resolved.Fragment = ""
			add(resolved.String())
		})
	}

	for _, match := range onionLinkPattern.FindAllString(string(html), -1) {
		add(match)
	}
	return links
}
