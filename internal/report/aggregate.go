package report

import (
	"time"

	"github.com/banking/fraud-dashboard/internal/domain"
)

// Summarize computes every summary aggregate in a single pass. An empty
// record list yields the zero summary.
func Summarize(records []domain.VerdictRecord, opts Options) domain.ReportSummary {
	var (
		s       domain.ReportSummary
		riskSum float64
	)

	for _, r := range records {
		s.Total++
		if r.Flagged {
			s.Flagged++
		}
		s.TotalAmount += r.Amount
		riskSum += r.RiskScore
		if r.RiskScore >= opts.HighRiskThreshold {
			s.HighRisk++
		}
	}

	if s.Total > 0 {
		s.FlaggedPercentage = float64(s.Flagged) / float64(s.Total) * 100
		s.AvgRisk = riskSum / float64(s.Total)
	}

	return s
}

// Distribution splits records into the flagged and not flagged buckets
func Distribution(records []domain.VerdictRecord) domain.RiskDistribution {
	var d domain.RiskDistribution
	for _, r := range records {
		if r.Flagged {
			d.Flagged++
		} else {
			d.NotFlagged++
		}
	}
	return d
}

// GroupByUser counts transactions per user in first-seen order
func GroupByUser(records []domain.VerdictRecord) domain.UserGroupSeries {
	series := make(domain.UserGroupSeries, 0)
	index := make(map[string]int)

	for _, r := range records {
		i, seen := index[r.UserID]
		if !seen {
			i = len(series)
			index[r.UserID] = i
			series = append(series, domain.UserGroup{UserID: r.UserID})
		}
		series[i].Total++
		if r.Flagged {
			series[i].Flagged++
		}
	}

	return series
}

// Tier classifies a risk score against the configured thresholds
func Tier(score float64, opts Options) domain.RiskTier {
	switch {
	case score >= opts.HighRiskThreshold:
		return domain.RiskTierHigh
	case score >= opts.MediumRiskThreshold:
		return domain.RiskTierMedium
	default:
		return domain.RiskTierLow
	}
}

// RiskPoints returns the per-transaction risk series in record order
func RiskPoints(records []domain.VerdictRecord, opts Options) []domain.RiskPoint {
	points := make([]domain.RiskPoint, len(records))
	for i, r := range records {
		points[i] = domain.RiskPoint{
			UserID:    r.UserID,
			RiskScore: r.RiskScore,
			Flagged:   r.Flagged,
			Tier:      Tier(r.RiskScore, opts),
		}
	}
	return points
}

// Build derives every report view from records and returns them as one
// snapshot. The records slice is copied so later mutation by the caller
// cannot leak into the report.
func Build(records []domain.VerdictRecord, rejects []domain.RejectedRecord, opts Options, now time.Time) *domain.Report {
	owned := make([]domain.VerdictRecord, len(records))
	copy(owned, records)

	summary := Summarize(owned, opts)
	dist := Distribution(owned)

	return &domain.Report{
		Records:      owned,
		Rejects:      append([]domain.RejectedRecord(nil), rejects...),
		Summary:      summary,
		Distribution: dist,
		ByUser:       GroupByUser(owned),
		RiskPoints:   RiskPoints(owned, opts),
		Narrative:    Narrate(summary, dist, len(rejects), opts),
		GeneratedAt:  now.UTC(),
	}
}
