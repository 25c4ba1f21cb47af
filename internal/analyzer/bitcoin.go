package analyzer

import (
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

var (
	// Legacy P2PKH/P2SH addresses.
	base58Pattern = regexp.MustCompile(`\b[13][a-km-zA-HJ-NP-Z1-9]{25,34}\b`)
	// Native segwit (bech32/bech32m) mainnet addresses.
	bech32Pattern = regexp.MustCompile(`\bbc1[ac-hj-np-z02-9]{11,71}\b`)
)

// ExtractAddressCandidates scans text for strings shaped like bitcoin
// addresses. Shape alone is not proof; callers must run ValidateAddress
// before persisting anything.
func ExtractAddressCandidates(text string) []string {
	candidates := base58Pattern.FindAllString(text, -1)
	candidates = append(candidates, bech32Pattern.FindAllString(text, -1)...)
	return dedupe(candidates)
}

// ValidateAddress checks the candidate's checksum. Legacy addresses go
// through Base58Check, bc1 addresses through full bech32 decoding with a
// mainnet human-readable part.
func ValidateAddress(addr string) bool {
	if strings.HasPrefix(strings.ToLower(addr), "bc1") {
		hrp, _, _, err := bech32.DecodeGeneric(addr)
		return err == nil && strings.EqualFold(hrp, "bc")
	}
	_, _, err := base58.CheckDecode(addr)
	return err == nil
}
