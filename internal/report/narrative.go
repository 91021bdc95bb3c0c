package report

import (
	"fmt"

	"github.com/banking/fraud-dashboard/internal/domain"
)

// Narrate produces the report sentences for a summary
func Narrate(s domain.ReportSummary, d domain.RiskDistribution, rejected int, opts Options) domain.Narrative {
	n := domain.Narrative{
		FlaggedSummary: "No suspicious transactions were flagged in this analysis.",
		RiskAssessment: "The overall risk score is within a safe range for most users.",
		Dominant:       fmt.Sprintf("Most transactions are %s.", d.Dominant()),
	}

	if s.Flagged > 0 {
		n.FlaggedSummary = fmt.Sprintf(
			"A total of %d transactions were flagged as suspicious, representing %s%% of all transactions.",
			s.Flagged, Percentage(s.FlaggedPercentage),
		)
	}
	if s.AvgRisk > opts.ElevatedAvgRiskThreshold {
		n.RiskAssessment = "The average risk score is high, indicating potential fraud patterns among users."
	}

	switch {
	case rejected == 1:
		n.Rejected = "1 record could not be processed."
	case rejected > 1:
		n.Rejected = fmt.Sprintf("%d records could not be processed.", rejected)
	}

	return n
}
