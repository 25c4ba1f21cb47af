// Package analyzer turns stored raw pages into structured intelligence:
// page metadata, contact artifacts and validated bitcoin addresses.
package analyzer

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/abadojack/whatlanggo"

	"github.com/oniontracex/oniontracex/internal/urlnorm"
	"github.com/oniontracex/oniontracex/pkg/models"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	pgpPattern   = regexp.MustCompile(`(?s)-----BEGIN PGP PUBLIC KEY BLOCK-----.*?-----END PGP PUBLIC KEY BLOCK-----`)
	// Monero addresses: 4 (standard) or 8 (subaddress) prefix, delimited so
	// a base58 run inside a longer token is not misread as an address.
	xmrPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9])([48][0-9A-Za-z]{94,105})(?:$|[^A-Za-z0-9])`)
	// Self-descriptions like "vendor: whiterabbit" on listing pages.
	handlePattern = regexp.MustCompile(`(?i)(vendor|seller|dealer|admin|operator)[\s:]+([a-zA-Z0-9_-]{3,30})`)
)

// langSampleSize bounds language detection input; a prefix is plenty.
const langSampleSize = 5000

// ExtractMetadata parses one page into its metadata row. Structural fields
// come from the DOM, artifact fields from regex passes over the raw HTML
// so artifacts in comments or scripts are not missed.
func ExtractMetadata(pageID string, html []byte) models.PageMetadata {
	meta := models.PageMetadata{
		MetadataID: urlnorm.Hash(pageID),
		PageID:     pageID,
		Language:   "unknown",
	}

	var visibleText string
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err == nil {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
		meta.MetaTags = extractMetaTags(doc)
		doc.Find("script, style, noscript").Remove()
		visibleText = strings.TrimSpace(doc.Text())
	}

	raw := string(html)
	meta.Emails = dedupe(emailPattern.FindAllString(raw, -1))
	meta.PGPKeys = dedupe(pgpPattern.FindAllString(raw, -1))
	for _, key := range meta.PGPKeys {
		meta.PGPFingerprints = append(meta.PGPFingerprints, pgpFingerprint(key))
	}
	meta.XMRAddresses = dedupe(submatches(xmrPattern, raw, 1))
	meta.VendorHandles = dedupe(submatches(handlePattern, raw, 2))

	if lang := detectLanguage(visibleText); lang != "" {
		meta.Language = lang
	}
	return meta
}

func extractMetaTags(doc *goquery.Document) map[string]string {
	tags := make(map[string]string)
	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		name, ok := sel.Attr("name")
		if !ok {
			name, ok = sel.Attr("property")
		}
		content, hasContent := sel.Attr("content")
		if ok && hasContent && name != "" {
			tags[name] = content
		}
	})
	if len(tags) == 0 {
		return nil
	}
	return tags
}

// pgpFingerprint derives a stable identifier for an armored key block.
// It is a digest of the armor text, not the OpenPGP key fingerprint; it
// only needs to match when the same block appears on two pages.
func pgpFingerprint(block string) string {
	sum := sha1.Sum([]byte(block))
	return hex.EncodeToString(sum[:])
}

func detectLanguage(text string) string {
	if len(text) == 0 {
		return ""
	}
	info := whatlanggo.Detect(langSample(text))
	if !info.IsReliable() {
		return ""
	}
	return whatlanggo.LangToString(info.Lang)
}

// langSample cuts the detection input at langSampleSize characters on a
// rune boundary; a byte slice could split a multi-byte rune.
func langSample(text string) string {
	count := 0
	for i := range text {
		if count == langSampleSize {
			return text[:i]
		}
		count++
	}
	return text
}

func submatches(pattern *regexp.Regexp, text string, group int) []string {
	var values []string
	for _, m := range pattern.FindAllStringSubmatch(text, -1) {
		if len(m) > group {
			values = append(values, m[group])
		}
	}
	return values
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
