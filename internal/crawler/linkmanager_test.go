package crawler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkManagerInnerDrainsFirst(t *testing.T) {
	lm := NewLinkManager(2, 50)

	assert.True(t, lm.AddSite("http://aaaabbbbccccddddeeeeffffgggghhhh.onion"))
	assert.True(t, lm.AddInnerPage("http://site1example.onion/products", 0))

	item, isRoot, ok := lm.Next()
	assert.True(t, ok)
	assert.False(t, isRoot, "inner pages must be served before new site roots")
	assert.Equal(t, "http://site1example.onion/products", item.URL)
	assert.Equal(t, 1, item.Depth)

	item, isRoot, ok = lm.Next()
	assert.True(t, ok)
	assert.True(t, isRoot)
	assert.Equal(t, 0, item.Depth)

	_, _, ok = lm.Next()
	assert.False(t, ok)
}

func TestLinkManagerDeduplicates(t *testing.T) {
	lm := NewLinkManager(2, 50)

	assert.True(t, lm.AddSite("http://dupsite.onion"))
	// Same root with trailing slash or different case collapses.
	assert.False(t, lm.AddSite("http://dupsite.onion/"))
	assert.False(t, lm.AddSite("HTTP://DUPSITE.onion"))

	assert.True(t, lm.AddInnerPage("http://dupsite.onion/shop", 0))
	assert.False(t, lm.AddInnerPage("http://dupsite.onion/shop/", 0))
	assert.False(t, lm.AddInnerPage("http://dupsite.onion/shop/index.html", 0))
}

func TestLinkManagerDepthLimit(t *testing.T) {
	lm := NewLinkManager(2, 50)

	assert.True(t, lm.AddInnerPage("http://deepsite.onion/a", 0))
	assert.True(t, lm.AddInnerPage("http://deepsite.onion/a/b", 1))
	// A page found at depth 2 would land at depth 3, past the limit.
	assert.False(t, lm.AddInnerPage("http://deepsite.onion/a/b/c", 2))
}

func TestLinkManagerPerSiteCap(t *testing.T) {
	lm := NewLinkManager(2, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, lm.AddInnerPage(fmt.Sprintf("http://capsite.onion/p%d", i), 0))
	}
	assert.False(t, lm.AddInnerPage("http://capsite.onion/p3", 0),
		"pages past the per-site cap must be dropped")
	// The cap is per domain, other sites are unaffected.
	assert.True(t, lm.AddInnerPage("http://othersite.onion/p0", 0))
}

func TestLinkManagerClearKeepsVisited(t *testing.T) {
	lm := NewLinkManager(2, 50)
	lm.AddSite("http://clearsite.onion")
	lm.Clear()

	assert.Equal(t, 0, lm.Pending())
	assert.False(t, lm.AddSite("http://clearsite.onion"),
		"visited history must survive a queue clear")
}
