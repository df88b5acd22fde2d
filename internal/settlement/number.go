package settlement

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"settleflow/models"
)

// ParseError reports a numeric field that could not be normalised.
type ParseError struct {
	Raw  string
	Rule models.NumberRule
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q with rule %s: %v", e.Raw, e.Rule, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseDecimal normalises raw according to rule. Malformed input returns
// zero together with a *ParseError.
func ParseDecimal(raw string, rule models.NumberRule) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	switch rule {
	case models.RuleComma:
		if strings.Contains(s, ",") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
	case models.RuleApostrophe:
		s = strings.ReplaceAll(s, "'", ".")
	case models.RuleNone, "":
	default:
		return decimal.Zero, &ParseError{Raw: raw, Rule: rule, Err: fmt.Errorf("unknown number rule")}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ParseError{Raw: raw, Rule: rule, Err: err}
	}
	return d, nil
}

// ParseSettle parses the settle price of a row with the profile's rule.
func ParseSettle(raw string, p models.SourceProfile) (decimal.Decimal, error) {
	return ParseDecimal(raw, p.SettleRule)
}

// ParseVolume parses the volume of a row with the profile's rule.
func ParseVolume(raw string, p models.SourceProfile) (decimal.Decimal, error) {
	return ParseDecimal(raw, p.VolumeRule)
}
