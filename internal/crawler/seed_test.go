package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractOnionURLs(t *testing.T) {
	text := `Results:
		http://abcdefghijklmnop.onion/page/1
		https://secure234567890abcdef.onion
		http://abcdefghijklmnop.onion/another
		http://not-an-onion.example.com/x`

	roots := ExtractOnionURLs(text)

	// Two pages on the same service collapse into one root.
	assert.Equal(t, []string{
		"http://abcdefghijklmnop.onion",
		"https://secure234567890abcdef.onion",
	}, roots)
}

func TestExtractOnionURLsEmpty(t *testing.T) {
	assert.Empty(t, ExtractOnionURLs("no hidden services here"))
}

func TestNormalizeManual(t *testing.T) {
	seeds := NormalizeManual([]string{
		"  http://manualsiteabcdefgh.onion/  ",
		"bareaddressabcdefgh.onion",
		"https://clearnet.example.com",
		"",
	})

	assert.Len(t, seeds, 2)
	assert.Equal(t, "http://manualsiteabcdefgh.onion", seeds[0].URL)
	assert.Equal(t, "Manual", seeds[0].Source)
	// A bare hostname gets a default scheme.
	assert.Equal(t, "http://bareaddressabcdefgh.onion", seeds[1].URL)
}
