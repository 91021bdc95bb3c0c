package cli

import (
	"fmt"
	"strings"

	"github.com/banking/fraud-dashboard/internal/domain"
	"github.com/banking/fraud-dashboard/internal/report"
	"github.com/pterm/pterm"
)

const barWidth = 40

// RenderSummary lays out the summary cards as a two column table
func RenderSummary(d report.SummaryDisplay) string {
	data := pterm.TableData{
		{"Metric", "Value"},
		{"Total Transactions", d.Total},
		{"Flagged Transactions", d.Flagged},
		{"Flagged %", d.FlaggedPercentage + "%"},
		{"Total Amount", d.TotalAmount},
		{"Avg. Risk Score", d.AvgRisk},
		{"High Risk", d.HighRisk},
	}

	table, _ := pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan)).
		WithData(data).
		Srender()
	return pterm.DefaultBox.WithTitle("Summary").Sprint(table)
}

// RenderDistribution draws one bar per bucket scaled to the larger bucket
func RenderDistribution(dist domain.RiskDistribution) string {
	buckets := dist.Buckets()

	maxValue := 0
	for _, b := range buckets {
		if b.Value > maxValue {
			maxValue = b.Value
		}
	}

	data := pterm.TableData{{"Bucket", "Count", ""}}
	for _, b := range buckets {
		length := 0
		if maxValue > 0 {
			length = b.Value * barWidth / maxValue
		}
		bar := strings.Repeat("█", length)
		if b.Name == domain.BucketFlagged {
			bar = pterm.FgRed.Sprint(bar)
		} else {
			bar = pterm.FgGreen.Sprint(bar)
		}
		data = append(data, []string{b.Name, fmt.Sprint(b.Value), bar})
	}

	table, _ := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	return pterm.DefaultBox.WithTitle("Risk Distribution").Sprint(table)
}

// RenderUsers lists per-user totals in first-seen order
func RenderUsers(series domain.UserGroupSeries) string {
	if len(series) == 0 {
		return pterm.Warning.Sprint("No transactions to group")
	}

	data := pterm.TableData{{"User", "Transactions", "Flagged"}}
	for _, g := range series {
		flagged := fmt.Sprint(g.Flagged)
		if g.Flagged > 0 {
			flagged = pterm.FgRed.Sprint(flagged)
		}
		data = append(data, []string{g.UserID, fmt.Sprint(g.Total), flagged})
	}

	table, _ := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	return table
}

// RenderRecords renders the transaction table, highlighting flagged rows
func RenderRecords(rows []report.Row, f *report.Formatter) string {
	data := pterm.TableData{{"User ID", "Amount", "Risk Score", "Tier", "Status", "Reasons"}}
	for _, r := range rows {
		status := pterm.FgGreen.Sprint(r.Status)
		if r.Flagged {
			status = pterm.FgRed.Sprint(r.Status)
		}
		data = append(data, []string{
			r.UserID,
			f.Amount(r.Amount),
			report.AvgRisk(r.RiskScore),
			string(r.Tier),
			status,
			r.Reasons,
		})
	}

	table, _ := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	return table
}

// RenderNarrative prints the insight sentences inside a box
func RenderNarrative(n domain.Narrative) string {
	lines := []string{n.FlaggedSummary, n.RiskAssessment, n.Dominant}
	if n.Rejected != "" {
		lines = append(lines, pterm.FgYellow.Sprint(n.Rejected))
	}
	return pterm.DefaultBox.WithTitle("Insights").Sprint(strings.Join(lines, "\n"))
}
