package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAddressCandidates(t *testing.T) {
	text := `Send payment to 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa or
		bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4 within 15 minutes.
		Repeated: 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa`

	candidates := ExtractAddressCandidates(text)

	assert.Len(t, candidates, 2)
	assert.Contains(t, candidates, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	assert.Contains(t, candidates, "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
}

func TestValidateAddress(t *testing.T) {
	cases := []struct {
		addr  string
		valid bool
	}{
		// Genesis block P2PKH.
		{"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", true},
		// P2SH.
		{"3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", true},
		// Native segwit, BIP-173 reference vector.
		{"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", true},
		// Last character flipped breaks the checksum.
		{"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb", false},
		{"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t5", false},
		// Shape-valid gibberish.
		{"1XXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX", false},
	}
	for _, tc := range cases {
		t.Run(tc.addr, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidateAddress(tc.addr))
		})
	}
}

func TestExtractThenValidate(t *testing.T) {
	// A checksum-broken candidate is extracted by shape but rejected by
	// validation; only the real address should survive the pipeline.
	text := "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb"

	var valid []string
	for _, c := range ExtractAddressCandidates(text) {
		if ValidateAddress(c) {
			valid = append(valid, c)
		}
	}
	assert.Equal(t, []string{"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"}, valid)
}
