package domain

import "strings"

// VerdictRecord is one analyzed transaction as returned by the analyzer.
// Values are immutable once produced by the normalizer.
type VerdictRecord struct {
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	RiskScore float64 `json:"risk_score"`
	Flagged   bool    `json:"flagged"`
	Reasons   string  `json:"reasons"`
}

// RejectReason identifies why a raw analyzer record was excluded from a report
type RejectReason string

const (
	RejectNotAnObject      RejectReason = "NotAnObject"
	RejectMissingUserID    RejectReason = "MissingUserID"
	RejectInvalidAmount    RejectReason = "InvalidAmount"
	RejectInvalidRiskScore RejectReason = "InvalidRiskScore"
	RejectInvalidFlagged   RejectReason = "InvalidFlagged"
)

// RejectedRecord keeps the original position and payload of a record that failed validation
type RejectedRecord struct {
	Index  int          `json:"index"`
	Raw    any          `json:"raw"`
	Reason RejectReason `json:"reason"`
}

// RiskTier buckets a risk score for table highlighting
type RiskTier string

const (
	RiskTierLow    RiskTier = "LOW"
	RiskTierMedium RiskTier = "MEDIUM"
	RiskTierHigh   RiskTier = "HIGH"
)

// ParseRiskTier accepts the tier names case-insensitively
func ParseRiskTier(s string) (RiskTier, bool) {
	switch RiskTier(strings.ToUpper(strings.TrimSpace(s))) {
	case RiskTierLow:
		return RiskTierLow, true
	case RiskTierMedium:
		return RiskTierMedium, true
	case RiskTierHigh:
		return RiskTierHigh, true
	}
	return "", false
}

