package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Field names shared by concrete and placeholder rows.
const (
	FieldDate      = "date"
	FieldVolume    = "volume"
	FieldTradeDate = "tradeDate"
	FieldOrigin    = "origin"
	FieldAmount    = "amount"
)

// SummaryKey is the placeholder key and sheet name of the run summary.
const SummaryKey = "resumeData"

// DefaultVolume is reported when the source returns no TOTAL row.
var DefaultVolume = decimal.NewFromInt(9999)

// MonthField returns the field name of the i-th (1 based) contract month.
func MonthField(i int) string {
	return "month" + strconv.Itoa(i)
}

// Marker returns the carry-forward placeholder for key and field.
func Marker(key, field string) string {
	return "${table:" + key + "." + field + "}"
}

// Row is anything the workbook engine can write into a template row. Rows
// are either concrete (live values) or placeholders (markers for the next
// cycle) and share the same field names.
type Row interface {
	Fields() []string
	Value(field string) (any, bool)
}

// ConcreteLine holds the normalised values of one source for one run.
type ConcreteLine struct {
	Date   string
	Volume decimal.Decimal
	Months []decimal.Decimal
}

func (l ConcreteLine) Fields() []string {
	return lineFields(len(l.Months))
}

func (l ConcreteLine) Value(field string) (any, bool) {
	switch field {
	case FieldDate:
		return l.Date, true
	case FieldVolume:
		return l.Volume.InexactFloat64(), true
	}
	if i, ok := monthIndex(field); ok && i <= len(l.Months) {
		return l.Months[i-1].InexactFloat64(), true
	}
	return nil, false
}

func (l ConcreteLine) MarshalJSON() ([]byte, error) {
	return marshalRow(l)
}

// PlaceholderLine mirrors a ConcreteLine with markers instead of values.
type PlaceholderLine struct {
	Key    string
	Months int
}

func (l PlaceholderLine) Fields() []string {
	return lineFields(l.Months)
}

func (l PlaceholderLine) Value(field string) (any, bool) {
	switch field {
	case FieldDate, FieldVolume:
		return Marker(l.Key, field), true
	}
	if i, ok := monthIndex(field); ok && i <= l.Months {
		return Marker(l.Key, field), true
	}
	return nil, false
}

func (l PlaceholderLine) MarshalJSON() ([]byte, error) {
	return marshalRow(l)
}

func lineFields(months int) []string {
	fields := make([]string, 0, months+2)
	fields = append(fields, FieldDate, FieldVolume)
	for i := 1; i <= months; i++ {
		fields = append(fields, MonthField(i))
	}
	return fields
}

func monthIndex(field string) (int, bool) {
	rest, ok := strings.CutPrefix(field, "month")
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 1 {
		return 0, false
	}
	return i, true
}

// marshalRow encodes a row as a JSON object keeping the field order.
func marshalRow(r Row) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range r.Fields() {
		v, _ := r.Value(field)
		key, err := json.Marshal(field)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
