package report

// Default thresholds. They mirror the values the dashboard has always used and
// are overridable through configuration.
const (
	DefaultHighRiskThreshold        = 30.0
	DefaultMediumRiskThreshold      = 15.0
	DefaultElevatedAvgRiskThreshold = 30.0
)

// Options configures the aggregation and presentation thresholds
type Options struct {
	// HighRiskThreshold is the inclusive lower bound counted by ReportSummary.HighRisk
	HighRiskThreshold float64
	// MediumRiskThreshold is the inclusive lower bound of the medium tier
	MediumRiskThreshold float64
	// ElevatedAvgRiskThreshold is the average risk above which the narrative warns
	ElevatedAvgRiskThreshold float64
}

// DefaultOptions returns the stock thresholds
func DefaultOptions() Options {
	return Options{
		HighRiskThreshold:        DefaultHighRiskThreshold,
		MediumRiskThreshold:      DefaultMediumRiskThreshold,
		ElevatedAvgRiskThreshold: DefaultElevatedAvgRiskThreshold,
	}
}
