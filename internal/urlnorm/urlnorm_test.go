package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSiteRoot(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"root stays root", "http://example.onion", "http://example.onion"},
		{"path stripped", "http://example.onion/market/listings?page=2", "http://example.onion"},
		{"host lowercased", "HTTP://EXAMPLE.ONION/About", "http://example.onion"},
		{"port kept", "http://example.onion:8080/x", "http://example.onion:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SiteRoot(tt.in))
		})
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"root has no trailing slash", "http://example.onion/", "http://example.onion"},
		{"index.html stripped", "http://example.onion/index.html", "http://example.onion"},
		{"nested index stripped", "http://example.onion/docs/index.php", "http://example.onion/docs"},
		{"trailing slash trimmed", "http://example.onion/about/", "http://example.onion/about"},
		{"query and fragment dropped", "http://example.onion/a?x=1#frag", "http://example.onion/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonical(tt.in))
		})
	}
}

func TestCanonicalRootMatchesSiteRoot(t *testing.T) {
	for _, u := range []string{
		"http://example.onion",
		"http://example.onion/",
		"http://example.onion/index.html",
	} {
		assert.Equal(t, SiteRoot(u), Canonical(u), "url %s", u)
	}
}

func TestIsOnion(t *testing.T) {
	assert.True(t, IsOnion("http://ly75dbzixy7hlp663j32xo4dtoiikm6bxb53jvivqkpo6jwppptx3sad.onion"))
	assert.True(t, IsOnion("https://sub.example.onion/path"))
	assert.False(t, IsOnion("https://example.com"))
	assert.False(t, IsOnion("https://onion.example.com"))
	assert.False(t, IsOnion("not a url"))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.onion", Domain("http://example.onion/a"))
	assert.Equal(t, "example.onion", Domain("http://mirror.example.onion/a"))
	assert.Equal(t, "example.com", Domain("https://example.com/x"))
}

func TestHashIsStable(t *testing.T) {
	// SHA-256 of "http://example.onion" must never drift: every site_id in
	// the store is derived from it.
	h := Hash("http://example.onion")
	assert.Len(t, h, 64)
	assert.Equal(t, h, Hash("http://example.onion"))
	assert.NotEqual(t, h, Hash("http://other.onion"))
	assert.Equal(t, SiteID("http://example.onion/deep/page"), Hash(SiteRoot("http://example.onion")))
}
