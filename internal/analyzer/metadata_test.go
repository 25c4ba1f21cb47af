package analyzer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestExtractMetadataEmptyPage(t *testing.T) {
	meta := ExtractMetadata("page-1", []byte(""))

	assert.Equal(t, "page-1", meta.PageID)
	assert.Empty(t, meta.Title)
	assert.Empty(t, meta.Emails)
	assert.Empty(t, meta.PGPKeys)
	assert.Empty(t, meta.XMRAddresses)
	assert.Equal(t, "unknown", meta.Language)
}

func TestExtractMetadataTitleAndTags(t *testing.T) {
	html := []byte(`<html><head>
		<title> Green Dragon Market </title>
		<meta name="description" content="finest goods">
		<meta property="og:site_name" content="Green Dragon">
		<meta name="keywords">
	</head><body></body></html>`)

	meta := ExtractMetadata("page-1", html)

	assert.Equal(t, "Green Dragon Market", meta.Title)
	assert.Equal(t, "finest goods", meta.MetaTags["description"])
	assert.Equal(t, "Green Dragon", meta.MetaTags["og:site_name"])
	// A meta tag without content is dropped.
	assert.NotContains(t, meta.MetaTags, "keywords")
}

func TestExtractMetadataEmails(t *testing.T) {
	html := []byte(`Contact admin@example.onion or backup support+orders@mail-hub.example.com
		Duplicate: admin@example.onion`)

	meta := ExtractMetadata("page-1", html)

	assert.Len(t, meta.Emails, 2)
	assert.Equal(t, "admin@example.onion", meta.Emails[0])
	assert.Contains(t, meta.Emails, "support+orders@mail-hub.example.com")
}

func TestExtractMetadataPGPBlock(t *testing.T) {
	block := "-----BEGIN PGP PUBLIC KEY BLOCK-----\n" +
		"mQENBFxyz...\n=abcd\n" +
		"-----END PGP PUBLIC KEY BLOCK-----"
	html := []byte("<pre>" + block + "</pre>")

	meta := ExtractMetadata("page-1", html)

	assert.Len(t, meta.PGPKeys, 1)
	assert.Equal(t, block, meta.PGPKeys[0])
	assert.Len(t, meta.PGPFingerprints, 1)
	// SHA-1 hex is 40 chars and stable for the same block.
	assert.Len(t, meta.PGPFingerprints[0], 40)
	again := ExtractMetadata("page-2", html)
	assert.Equal(t, meta.PGPFingerprints, again.PGPFingerprints)
}

func TestExtractMetadataXMR(t *testing.T) {
	addr := "4" + strings.Repeat("Ab3", 31) + "c" // 95 chars, address shape
	html := []byte("Pay XMR to " + addr + " only")

	meta := ExtractMetadata("page-1", html)
	assert.Equal(t, []string{addr}, meta.XMRAddresses)

	// The same run embedded in a longer token is not an address.
	embedded := []byte("token_x" + addr + "suffix")
	meta = ExtractMetadata("page-2", embedded)
	assert.Empty(t, meta.XMRAddresses)
}

func TestExtractMetadataVendorHandles(t *testing.T) {
	html := []byte(`<p>Vendor: whiterabbit ships worldwide.</p>
		<p>seller copperfield_7</p>
		<p>admin: xx</p>`)

	meta := ExtractMetadata("page-1", html)

	assert.Contains(t, meta.VendorHandles, "whiterabbit")
	assert.Contains(t, meta.VendorHandles, "copperfield_7")
	// Two characters is below the handle length floor.
	assert.NotContains(t, meta.VendorHandles, "xx")
}

func TestExtractMetadataLanguage(t *testing.T) {
	html := []byte(`<html><body>
		<script>var x = "not language material";</script>
		<p>Welcome to our store. We ship discreetly to most countries and
		every order includes tracking. Payments are accepted in several
		currencies and all questions are answered within one business day.</p>
	</body></html>`)

	meta := ExtractMetadata("page-1", html)
	assert.Equal(t, "eng", meta.Language)
}

func TestLangSampleCutsOnRuneBoundary(t *testing.T) {
	short := "bonjour"
	assert.Equal(t, short, langSample(short))

	// Two-byte runes put the sample limit mid-rune if counted in bytes.
	long := strings.Repeat("é", langSampleSize+100)
	sample := langSample(long)
	assert.True(t, utf8.ValidString(sample))
	assert.Equal(t, langSampleSize, utf8.RuneCountInString(sample))
}
