package domain

import "time"

// Bucket names used by the two-bucket risk distribution
const (
	BucketFlagged    = "Flagged"
	BucketNotFlagged = "Not Flagged"
)

// ReportSummary holds the exact numeric aggregates of a record set.
// Display formatting is layered on top by the report package.
type ReportSummary struct {
	Total             int     `json:"total"`
	Flagged           int     `json:"flagged"`
	FlaggedPercentage float64 `json:"flagged_percentage"`
	TotalAmount       float64 `json:"total_amount"`
	AvgRisk           float64 `json:"avg_risk"`
	HighRisk          int     `json:"high_risk"`
}

// RiskDistribution is the flagged / not flagged split used by the pie and bar charts
type RiskDistribution struct {
	Flagged    int `json:"flagged"`
	NotFlagged int `json:"not_flagged"`
}

// DistributionBucket is one named slice of a RiskDistribution
type DistributionBucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Buckets returns the distribution as chart-ready named buckets, flagged first
func (d RiskDistribution) Buckets() []DistributionBucket {
	return []DistributionBucket{
		{Name: BucketFlagged, Value: d.Flagged},
		{Name: BucketNotFlagged, Value: d.NotFlagged},
	}
}

// Dominant returns the name of the larger bucket. Ties resolve to "Not Flagged".
func (d RiskDistribution) Dominant() string {
	if d.Flagged > d.NotFlagged {
		return BucketFlagged
	}
	return BucketNotFlagged
}

// UserGroup counts the transactions of a single user
type UserGroup struct {
	UserID  string `json:"user_id"`
	Total   int    `json:"total"`
	Flagged int    `json:"flagged"`
}

// UserGroupSeries is ordered by the first appearance of each user in the record list
type UserGroupSeries []UserGroup

// Lookup finds the group for a user
func (s UserGroupSeries) Lookup(userID string) (UserGroup, bool) {
	for _, g := range s {
		if g.UserID == userID {
			return g, true
		}
	}
	return UserGroup{}, false
}

// RiskPoint is a per-transaction point for the risk score chart
type RiskPoint struct {
	UserID    string   `json:"user_id"`
	RiskScore float64  `json:"risk_score"`
	Flagged   bool     `json:"flagged"`
	Tier      RiskTier `json:"tier"`
}

// Narrative holds the sentences rendered under the report charts
type Narrative struct {
	FlaggedSummary string `json:"flagged_summary"`
	RiskAssessment string `json:"risk_assessment"`
	Dominant       string `json:"dominant"`
	Rejected       string `json:"rejected,omitempty"`
}

// Report is an immutable snapshot of one analysis. All derived fields are
// computed from Records before the snapshot is handed out.
type Report struct {
	Records      []VerdictRecord  `json:"records"`
	Rejects      []RejectedRecord `json:"rejects"`
	Summary      ReportSummary    `json:"summary"`
	Distribution RiskDistribution `json:"distribution"`
	ByUser       UserGroupSeries  `json:"by_user"`
	RiskPoints   []RiskPoint      `json:"risk_points"`
	Narrative    Narrative        `json:"narrative"`
	GeneratedAt  time.Time        `json:"generated_at"`
}
