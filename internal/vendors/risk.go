package vendors

import "github.com/oniontracex/oniontracex/internal/db"

// Risk scoring weights. Each signal marks operational sophistication or
// cross-site presence; the cap keeps the scale bounded at 100.
const (
	riskMultipleBTC   = 30 // two or more distinct payment addresses
	riskHasPGP        = 20
	riskHasXMR        = 20
	riskMultipleSites = 25
	riskCap           = 100
)

// RiskScore derives a 0-100 score from a vendor's artifact statistics.
func RiskScore(st db.VendorStats) int {
	score := 0
	if st.BTCCount >= 2 {
		score += riskMultipleBTC
	}
	if st.PGPCount >= 1 {
		score += riskHasPGP
	}
	if st.XMRCount >= 1 {
		score += riskHasXMR
	}
	if st.SiteCount >= 2 {
		score += riskMultipleSites
	}
	if score > riskCap {
		score = riskCap
	}
	return score
}
