// Package tradedate validates and shifts the MM/DD/YYYY trade dates used by
// the settlements source.
package tradedate

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the external trade date representation (MM/DD/YYYY).
const Layout = "01/02/2006"

// LineLayout is the run date written into report lines (DD/MM/YYYY).
const LineLayout = "02/01/2006"

// ErrInvalidDate is returned for strings that are not a real MM/DD/YYYY date.
var ErrInvalidDate = errors.New("wrong date format, expected MM/DD/YYYY")

// Validate reports whether s is a real calendar date written as MM/DD/YYYY.
func Validate(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Parse returns the date s denotes.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil || t.Year() < 1 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// Format writes t as MM/DD/YYYY.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// PreviousDay returns the calendar day before s in the same format.
func PreviousDay(s string) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Format(t.AddDate(0, 0, -1)), nil
}

// Yesterday returns the day before now as MM/DD/YYYY.
func Yesterday(now time.Time) string {
	return Format(now.AddDate(0, 0, -1))
}

// FormatLine writes t as DD/MM/YYYY for report lines.
func FormatLine(t time.Time) string {
	return t.Format(LineLayout)
}
