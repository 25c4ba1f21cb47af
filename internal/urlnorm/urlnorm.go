// Package urlnorm holds the pure URL canonicalization and identity helpers
// every other component derives its IDs from.
package urlnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

var indexDocuments = []string{"index.html", "index.htm", "index.php"}

// Hash returns the SHA-256 hex digest of the UTF-8 bytes of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SiteRoot reduces any page URL to scheme://host with a lowercased host and
// no path, query or fragment. It is the identity of a site independent of
// any page.
func SiteRoot(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.TrimSpace(rawURL), "/")
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// Canonical normalizes a full page URL: lowercased scheme and host, trailing
// index documents stripped, trailing slash trimmed, query and fragment
// dropped. The site root itself canonicalizes to scheme://host with no
// trailing slash, so Canonical(root) == SiteRoot(root).
func Canonical(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.TrimSpace(rawURL), "/")
	}

	path := u.Path
	for _, doc := range indexDocuments {
		if strings.HasSuffix(path, doc) {
			path = path[:strings.LastIndex(path, "/")+1]
			break
		}
	}
	path = strings.TrimRight(path, "/")

	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

// IsOnion reports whether the URL's hostname is an onion service address.
func IsOnion(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), ".onion")
}

// Domain returns the registered domain used for same-site scoping. Onion
// hostnames keep their last two labels so a subdomain stays in scope with
// its parent service.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	labels := strings.Split(host, ".")
	if len(labels) > 2 && labels[len(labels)-1] == "onion" {
		return strings.Join(labels[len(labels)-2:], ".")
	}
	return host
}

// SiteID is the stable identifier for the site owning rawURL.
func SiteID(rawURL string) string {
	return Hash(SiteRoot(rawURL))
}

// PageID is the stable identifier for the page at rawURL.
func PageID(rawURL string) string {
	return Hash(Canonical(rawURL))
}
