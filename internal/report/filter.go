package report

import "github.com/banking/fraud-dashboard/internal/domain"

// Filter selects a subset of records for the table and the export. Zero
// value fields do not constrain.
type Filter struct {
	Flagged *bool
	Tier    domain.RiskTier
	UserID  string
}

// IsZero reports whether the filter selects every record
func (f Filter) IsZero() bool {
	return f.Flagged == nil && f.Tier == "" && f.UserID == ""
}

// Apply returns the matching records in their original order. The input is
// never modified.
func (f Filter) Apply(records []domain.VerdictRecord, opts Options) []domain.VerdictRecord {
	if f.IsZero() {
		return records
	}

	out := make([]domain.VerdictRecord, 0, len(records))
	for _, r := range records {
		if f.Flagged != nil && r.Flagged != *f.Flagged {
			continue
		}
		if f.Tier != "" && Tier(r.RiskScore, opts) != f.Tier {
			continue
		}
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Row is a table row with presentation fields resolved
type Row struct {
	domain.VerdictRecord
	Status string          `json:"status"`
	Tier   domain.RiskTier `json:"tier"`
}

// Rows decorates records with their status label and risk tier
func Rows(records []domain.VerdictRecord, opts Options) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = Row{
			VerdictRecord: r,
			Status:        StatusLabel(r.Flagged),
			Tier:          Tier(r.RiskScore, opts),
		}
	}
	return rows
}
