package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/banking/fraud-dashboard/internal/domain"
)

// ExportFileName is the download name of the CSV export
const ExportFileName = "fraud_report.csv"

// ExportHeader is the fixed column order of the export
var ExportHeader = []string{"user_id", "amount", "flagged", "risk_score", "reasons"}

// ToCSV serializes records with the export header
func ToCSV(records []domain.VerdictRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV streams records as CSV to w
func WriteCSV(w io.Writer, records []domain.VerdictRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(ExportHeader); err != nil {
		return fmt.Errorf("error writing CSV header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.UserID,
			formatNumber(r.Amount),
			strconv.FormatBool(r.Flagged),
			formatNumber(r.RiskScore),
			r.Reasons,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("error writing CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ErrCSVSyntax is returned by ParseCSV for unbalanced or stray quotes
var ErrCSVSyntax = errors.New("malformed CSV")

// ParseCSV reads an export back into raw records keyed by header name, ready
// for Normalize. Quoted fields are kept byte for byte, so a CRLF inside
// reasons survives; record separators may be LF or CRLF. Blank lines are
// skipped.
func ParseCSV(r io.Reader) ([]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading CSV: %w", err)
	}

	lines, err := splitRecords(data)
	if err != nil {
		return nil, err
	}

	rows := []any{}
	if len(lines) == 0 {
		return rows, nil
	}

	header := lines[0]
	for _, fields := range lines[1:] {
		raw := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(fields) {
				raw[name] = fields[i]
			}
		}
		rows = append(rows, raw)
	}

	return rows, nil
}

func splitRecords(data []byte) ([][]string, error) {
	var (
		records [][]string
		fields  []string
		field   bytes.Buffer
		line    = 1
	)

	i := 0
	for i < len(data) {
		// Blank line between records
		if len(fields) == 0 {
			if n := newlineAt(data, i); n > 0 {
				i += n
				line++
				continue
			}
		}

		field.Reset()
		if data[i] == '"' {
			i++
			closed := false
			for i < len(data) {
				c := data[i]
				if c == '"' {
					if i+1 < len(data) && data[i+1] == '"' {
						field.WriteByte('"')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				if c == '\n' {
					line++
				}
				field.WriteByte(c)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated quoted field on line %d", ErrCSVSyntax, line)
			}
			if i < len(data) && data[i] != ',' && newlineAt(data, i) == 0 {
				return nil, fmt.Errorf("%w: unexpected %q after quoted field on line %d", ErrCSVSyntax, data[i], line)
			}
		} else {
			for i < len(data) && data[i] != ',' && newlineAt(data, i) == 0 {
				if data[i] == '"' {
					return nil, fmt.Errorf("%w: bare quote in unquoted field on line %d", ErrCSVSyntax, line)
				}
				field.WriteByte(data[i])
				i++
			}
		}
		fields = append(fields, field.String())

		if i < len(data) && data[i] == ',' {
			i++
			if i == len(data) {
				fields = append(fields, "")
			}
			continue
		}
		if n := newlineAt(data, i); n > 0 {
			i += n
			line++
		}
		records = append(records, fields)
		fields = nil
	}

	if len(fields) > 0 {
		records = append(records, fields)
	}
	return records, nil
}

// newlineAt returns the length of the record separator starting at i, or 0
func newlineAt(data []byte, i int) int {
	switch {
	case i >= len(data):
		return 0
	case data[i] == '\n':
		return 1
	case data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n':
		return 2
	}
	return 0
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
