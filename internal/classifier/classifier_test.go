package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testLabels = map[string][]string{
	"drugs":       {"cannabis", "mdma", "gram"},
	"fraud":       {"cvv", "fullz", "dumps"},
	"marketplace": {"escrow", "vendor", "listing"},
}

func TestClassifyClearWinner(t *testing.T) {
	text := "premium cannabis shipped per gram, mdma also in stock with escrow"

	v := Classify(testLabels, text, 0.4)

	assert.Equal(t, "drugs", v.Label)
	// Three drug keywords out of four total hits.
	assert.InDelta(t, 0.75, v.Confidence, 1e-9)
	assert.Equal(t, "classified", v.Status)
}

func TestClassifyBelowThreshold(t *testing.T) {
	// One hit per label: best confidence is 1/3, under the 0.4 floor.
	text := "cannabis cvv escrow"

	v := Classify(testLabels, text, 0.4)

	assert.Equal(t, "unknown", v.Label)
	assert.Equal(t, "low_confidence", v.Status)
	assert.InDelta(t, 1.0/3.0, v.Confidence, 1e-9)
}

func TestClassifyNoKeywordHits(t *testing.T) {
	v := Classify(testLabels, "a perfectly innocent recipe blog", 0.4)

	assert.Equal(t, "unknown", v.Label)
	assert.Equal(t, "low_confidence", v.Status)
	assert.Zero(t, v.Confidence)
}

func TestClassifyEmptyText(t *testing.T) {
	v := Classify(testLabels, "   ", 0.4)

	assert.Equal(t, "unknown", v.Label)
	assert.Equal(t, "no_content", v.Status)
}

func TestClassifyTieIsDeterministic(t *testing.T) {
	// Equal scores resolve alphabetically so reruns agree.
	v := Classify(testLabels, "cannabis cvv", 0.0)
	assert.Equal(t, "drugs", v.Label)
}

func TestVisibleText(t *testing.T) {
	html := []byte(`<html><head>
		<style>body { color: red }</style>
		<script>console.log("CVV");</script>
	</head><body><p>Fresh CANNABIS in stock</p><noscript>enable js</noscript></body></html>`)

	text := VisibleText(html)

	assert.Contains(t, text, "fresh cannabis in stock")
	assert.NotContains(t, text, "cvv")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "enable js")
}
