package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/banking/fraud-dashboard/internal/domain"
	"github.com/spf13/cast"
)

// ReasonSeparator joins list-shaped reasons into the single string carried by a record
const ReasonSeparator = "; "

// DecodeBatch decodes an analyzer response body. Anything other than a JSON
// array is a malformed response.
func DecodeBatch(payload []byte) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var batch any
	if err := dec.Decode(&batch); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after array", domain.ErrMalformedResponse)
	}

	list, ok := batch.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list, got %T", domain.ErrMalformedResponse, batch)
	}
	return list, nil
}

// Normalize validates and coerces raw analyzer records. Valid records keep
// their relative input order; every other entry is reported in rejects with
// its original index.
func Normalize(raw []any) ([]domain.VerdictRecord, []domain.RejectedRecord) {
	records := make([]domain.VerdictRecord, 0, len(raw))
	var rejects []domain.RejectedRecord

	for i, entry := range raw {
		rec, reason, ok := normalizeOne(entry)
		if !ok {
			rejects = append(rejects, domain.RejectedRecord{Index: i, Raw: entry, Reason: reason})
			continue
		}
		records = append(records, rec)
	}

	return records, rejects
}

func normalizeOne(entry any) (domain.VerdictRecord, domain.RejectReason, bool) {
	obj, ok := entry.(map[string]any)
	if !ok {
		return domain.VerdictRecord{}, domain.RejectNotAnObject, false
	}

	userID, ok := coerceUserID(obj["user_id"])
	if !ok {
		return domain.VerdictRecord{}, domain.RejectMissingUserID, false
	}

	amount, ok := coerceNumber(obj["amount"])
	if !ok || amount < 0 {
		return domain.VerdictRecord{}, domain.RejectInvalidAmount, false
	}

	risk, ok := coerceNumber(obj["risk_score"])
	if !ok {
		return domain.VerdictRecord{}, domain.RejectInvalidRiskScore, false
	}

	flagged, ok := coerceFlag(obj["flagged"])
	if !ok {
		return domain.VerdictRecord{}, domain.RejectInvalidFlagged, false
	}

	return domain.VerdictRecord{
		UserID:    userID,
		Amount:    amount,
		RiskScore: risk,
		Flagged:   flagged,
		Reasons:   coerceReasons(obj["reasons"]),
	}, "", true
}

func coerceUserID(v any) (string, bool) {
	switch id := v.(type) {
	case nil, bool, map[string]any, []any:
		return "", false
	case json.Number:
		return id.String(), id != ""
	}

	s, err := cast.ToStringE(v)
	if err != nil || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// coerceNumber accepts numbers and numeric strings only. Booleans and nulls
// are not numbers here even though cast would convert them.
func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case nil, bool, map[string]any, []any:
		return 0, false
	case json.Number:
		v = n.String()
	case string:
		v = strings.TrimSpace(n)
	}

	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func coerceFlag(v any) (bool, bool) {
	switch b := v.(type) {
	case nil:
		return false, true
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	case json.Number:
		f, err := b.Float64()
		if err != nil {
			return false, false
		}
		return f != 0, true
	case string:
		v = strings.TrimSpace(b)
	case map[string]any, []any:
		return false, false
	}

	flag, err := cast.ToBoolE(v)
	if err != nil {
		return false, false
	}
	return flag, true
}

func coerceReasons(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case []any:
		parts := make([]string, 0, len(r))
		for _, p := range r {
			parts = append(parts, cast.ToString(p))
		}
		return strings.Join(parts, ReasonSeparator)
	case json.Number:
		return r.String()
	}
	return cast.ToString(v)
}
