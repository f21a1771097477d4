package models

import "time"

// RiskLevel grades how risky scraping a domain is
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ComplianceVerdict is the cached per-domain decision about whether
// scraping is permitted.
type ComplianceVerdict struct {
	Domain              string    `json:"domain" badgerhold:"key"`
	Allowed             bool      `json:"allowed"`
	Risk                RiskLevel `json:"risk"`
	RobotsCrawlDelayMS  int       `json:"robots_crawl_delay_ms,omitempty"`
	RequiredPrecautions []string  `json:"required_precautions,omitempty"`
	Recommendation      string    `json:"recommendation,omitempty"` // e.g. "use_api_instead"
	Reasons             []string  `json:"reasons,omitempty"`
	CheckedAt           time.Time `json:"checked_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// Expired reports whether the verdict is past its cache lifetime
func (v *ComplianceVerdict) Expired(now time.Time) bool {
	return v == nil || now.After(v.ExpiresAt)
}
