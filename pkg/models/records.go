package models

import "time"

// SiteStatus is the liveness classification for a site root.
type SiteStatus string

const (
	StatusAlive   SiteStatus = "Alive"
	StatusDead    SiteStatus = "Dead"
	StatusTimeout SiteStatus = "Timeout"
	StatusError   SiteStatus = "Error"
	StatusUnknown SiteStatus = "Unknown"
)

// SiteRecord is one discovered onion site root. site_id is the SHA-256 hex
// digest of the site root URL, so the same site discovered twice collapses
// into a single row.
type SiteRecord struct {
	SiteID        string     `json:"siteId"`
	URL           string     `json:"url"`
	Source        string     `json:"source"`
	Keyword       string     `json:"keyword,omitempty"`
	CurrentStatus SiteStatus `json:"currentStatus"`
	FirstSeen     time.Time  `json:"firstSeen"`
	LastSeen      *time.Time `json:"lastSeen,omitempty"`
}

// PageRecord is one fetched HTML document. page_id is the digest of the full
// canonical URL; html_hash is the digest of the raw bytes at crawl time.
type PageRecord struct {
	PageID    string    `json:"pageId"`
	SiteID    string    `json:"siteId"`
	URL       string    `json:"url"`
	HTMLHash  string    `json:"htmlHash"`
	RawHTML   []byte    `json:"-"`
	CrawlDate time.Time `json:"crawlDate"`
}

// PageMetadata holds everything the analyzer extracted from a page.
// The set-valued fields are persisted as JSONB.
type PageMetadata struct {
	MetadataID      string            `json:"metadataId"`
	PageID          string            `json:"pageId"`
	Title           string            `json:"title,omitempty"`
	MetaTags        map[string]string `json:"metaTags,omitempty"`
	Emails          []string          `json:"emails,omitempty"`
	PGPKeys         []string          `json:"pgpKeys,omitempty"`
	PGPFingerprints []string          `json:"pgpFingerprints,omitempty"`
	XMRAddresses    []string          `json:"xmrAddresses,omitempty"`
	VendorHandles   []string          `json:"vendorHandles,omitempty"`
	Language        string            `json:"language"`
}

// BitcoinAddress is a validated on-chain address sighted on a page.
type BitcoinAddress struct {
	AddressID  string    `json:"addressId"`
	Address    string    `json:"address"`
	SiteID     string    `json:"siteId"`
	PageID     string    `json:"pageId"`
	Valid      bool      `json:"valid"`
	DetectedAt time.Time `json:"detectedAt"`
	TxAnalyzed bool      `json:"txAnalyzed"`
}

// TxDirection marks whether the watched address received or spent funds.
type TxDirection string

const (
	DirectionInbound  TxDirection = "Inbound"
	DirectionOutbound TxDirection = "Outbound"
)

// TransactionSummary is one observed transaction touching a watched address,
// with the fan-in/fan-out topology metrics and the mixer flag.
type TransactionSummary struct {
	TxID      string      `json:"txId"`
	AddressID string      `json:"addressId"`
	Direction TxDirection `json:"direction"`
	Amount    float64     `json:"amount"` // BTC
	Timestamp *time.Time  `json:"timestamp,omitempty"`
	FanIn     int         `json:"fanIn"`
	FanOut    int         `json:"fanOut"`
	IsMixer   bool        `json:"isMixer"`
}

// TransactionEdge is one input-address to output-address flow within a
// transaction. Unique on (tx_id, from_address, to_address).
type TransactionEdge struct {
	TxID        string     `json:"txId"`
	FromAddress string     `json:"fromAddress"`
	ToAddress   string     `json:"toAddress"`
	Amount      float64    `json:"amount"` // BTC
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

// Vendor is a synthetic identity aggregating artifacts believed to belong
// to one operator. vendor_id starts as the digest of the seeding address
// and survives merges as the lexicographically smallest participant.
type Vendor struct {
	VendorID   string    `json:"vendorId"`
	VendorName string    `json:"vendorName"`
	RiskScore  int       `json:"riskScore"`
	FirstSeen  time.Time `json:"firstSeen"`
	LastSeen   time.Time `json:"lastSeen"`
}

// ArtifactType tags a vendor artifact observation.
type ArtifactType string

const (
	ArtifactBTC    ArtifactType = "btc"
	ArtifactPGP    ArtifactType = "pgp"
	ArtifactXMR    ArtifactType = "xmr"
	ArtifactEmail  ArtifactType = "email"
	ArtifactHandle ArtifactType = "handle"
)

// VendorArtifact is a typed observation on a page attributed to a vendor.
type VendorArtifact struct {
	ArtifactID    string       `json:"artifactId"`
	VendorID      string       `json:"vendorId"`
	ArtifactType  ArtifactType `json:"artifactType"`
	ArtifactValue string       `json:"artifactValue"`
	ArtifactHash  string       `json:"artifactHash"`
	Confidence    int          `json:"confidence"`
	SiteID        string       `json:"siteId"`
	PageID        string       `json:"pageId"`
	FirstSeen     time.Time    `json:"firstSeen"`
	LastSeen      time.Time    `json:"lastSeen"`
}

// Liveness is one timestamped probe result for a site root.
// ResponseTime is seconds, nil when the probe did not complete.
type Liveness struct {
	LivenessID   string     `json:"livenessId"`
	SiteID       string     `json:"siteId"`
	Status       SiteStatus `json:"status"`
	ResponseTime *float64   `json:"responseTime,omitempty"`
	CheckTime    time.Time  `json:"checkTime"`
}

// SiteClassification records one classifier verdict for a site.
type SiteClassification struct {
	SiteID           string    `json:"siteId"`
	ModelName        string    `json:"modelName"`
	ModelVersion     string    `json:"modelVersion"`
	PredictedKeyword string    `json:"predictedKeyword"`
	Confidence       float64   `json:"confidence"`
	AnalysedAt       time.Time `json:"analysedAt"`
	Status           string    `json:"status"`
}
