package models

import (
	"encoding/json"
	"strconv"
)

// Summary amount sentinels.
const (
	AmountError          = "ERROR"
	AmountNotImplemented = "NI"
	AmountSkipped        = "SKIPPED"
)

// SummaryTimeLayout formats RunSummary.Date.
const SummaryTimeLayout = "2006-01-02 15:04:05"

// Amount is either the number of settlements of a source or a sentinel.
type Amount struct {
	Count    int
	Sentinel string
}

// CountAmount returns an amount holding n settlements.
func CountAmount(n int) Amount { return Amount{Count: n} }

// SentinelAmount returns an amount holding one of the sentinels.
func SentinelAmount(s string) Amount { return Amount{Sentinel: s} }

// Value returns the cell value of the amount.
func (a Amount) Value() any {
	if a.Sentinel != "" {
		return a.Sentinel
	}
	return a.Count
}

func (a Amount) String() string {
	if a.Sentinel != "" {
		return a.Sentinel
	}
	return strconv.Itoa(a.Count)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Value())
}

// RunSummary is the one-line account of a source in a run. It is never
// modified after it has been built.
type RunSummary struct {
	Date      string
	TradeDate string
	Origin    string
	Amount    Amount
}

var summaryFields = []string{FieldDate, FieldTradeDate, FieldOrigin, FieldAmount}

func (s RunSummary) Fields() []string { return summaryFields }

func (s RunSummary) Value(field string) (any, bool) {
	switch field {
	case FieldDate:
		return s.Date, true
	case FieldTradeDate:
		return s.TradeDate, true
	case FieldOrigin:
		return s.Origin, true
	case FieldAmount:
		return s.Amount.Value(), true
	}
	return nil, false
}

func (s RunSummary) MarshalJSON() ([]byte, error) {
	return marshalRow(s)
}

// SummaryPlaceholder is the trailing marker row of the summary template.
type SummaryPlaceholder struct{}

func (SummaryPlaceholder) Fields() []string { return summaryFields }

func (SummaryPlaceholder) Value(field string) (any, bool) {
	for _, f := range summaryFields {
		if f == field {
			return Marker(SummaryKey, field), true
		}
	}
	return nil, false
}
