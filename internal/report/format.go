package report

import (
	"strconv"

	"github.com/banking/fraud-dashboard/internal/domain"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultLocale matches the currency formatting the dashboard has shipped with
const DefaultLocale = "en-IN"

// Status labels shown in the transaction table
const (
	StatusFlagged = "FLAGGED"
	StatusClear   = "Clear"
)

// SummaryDisplay is the presentation form of a ReportSummary
type SummaryDisplay struct {
	Total             string `json:"total"`
	Flagged           string `json:"flagged"`
	FlaggedPercentage string `json:"flagged_percentage"`
	TotalAmount       string `json:"total_amount"`
	AvgRisk           string `json:"avg_risk"`
	HighRisk          string `json:"high_risk"`
}

// Formatter renders numbers for a locale
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a formatter for a BCP 47 locale, falling back to DefaultLocale
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.MustParse(DefaultLocale)
	}
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Amount groups thousands and keeps at most two fraction digits
func (f *Formatter) Amount(v float64) string {
	return f.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// Count groups thousands of an integer count
func (f *Formatter) Count(n int) string {
	return f.printer.Sprint(number.Decimal(n))
}

// Summary renders every field of s
func (f *Formatter) Summary(s domain.ReportSummary) SummaryDisplay {
	return SummaryDisplay{
		Total:             f.Count(s.Total),
		Flagged:           f.Count(s.Flagged),
		FlaggedPercentage: Percentage(s.FlaggedPercentage),
		TotalAmount:       f.Amount(s.TotalAmount),
		AvgRisk:           AvgRisk(s.AvgRisk),
		HighRisk:          f.Count(s.HighRisk),
	}
}

// Percentage renders with one decimal place
func Percentage(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// AvgRisk renders with two decimal places
func AvgRisk(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// StatusLabel returns the table label for a verdict
func StatusLabel(flagged bool) string {
	if flagged {
		return StatusFlagged
	}
	return StatusClear
}
