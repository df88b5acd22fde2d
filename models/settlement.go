package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TotalMonth is the label the source uses for the aggregate volume row.
const TotalMonth = "TOTAL"

// NumberRule selects how a locale formatted numeric string is normalised
// before it is parsed as a decimal.
type NumberRule string

const (
	// RuleComma treats ',' as the decimal separator. When a comma is present
	// any '.' is read as a thousands separator.
	RuleComma NumberRule = "comma"
	// RuleApostrophe treats '\'' as the decimal separator.
	RuleApostrophe NumberRule = "apostrophe"
	// RuleNone parses the value as is.
	RuleNone NumberRule = "none"
)

// Valid reports whether r is one of the known rules.
func (r NumberRule) Valid() bool {
	switch r {
	case RuleComma, RuleApostrophe, RuleNone:
		return true
	default:
		return false
	}
}

// SettlementResponse is the body returned by the settlements endpoint.
type SettlementResponse struct {
	Empty       bool            `json:"empty"`
	TradeDate   string          `json:"tradeDate"`
	Settlements []RawSettlement `json:"settlements"`
}

// RawSettlement is one contract month as returned by the source.
type RawSettlement struct {
	Month           string `json:"month"`
	SettlementMonth string `json:"settlementMonth"`
	Settle          string `json:"settle"`
	Volume          string `json:"volume"`
}

// IsTotal reports whether the row is the aggregate TOTAL row.
func (s RawSettlement) IsTotal() bool {
	return strings.EqualFold(strings.TrimSpace(s.Month), TotalMonth)
}

// Settlement is a RawSettlement with its numbers normalised.
type Settlement struct {
	Month           string
	SettlementMonth string
	Settle          decimal.Decimal
	Volume          decimal.Decimal
	Total           bool
}

// SourceProfile is the static configuration of one market.
type SourceProfile struct {
	Provider        string     `yaml:"provider" json:"provider"`
	ID              string     `yaml:"id" json:"id"`
	Origin          string     `yaml:"origin" json:"origin"`
	Key             string     `yaml:"key" json:"key"`
	SnapshotName    string     `yaml:"snapshot_name" json:"snapshotName"`
	SettleRule      NumberRule `yaml:"settle_rule" json:"settleRule"`
	VolumeRule      NumberRule `yaml:"volume_rule" json:"volumeRule"`
	TradingDaysOnly bool       `yaml:"trading_days_only" json:"tradingDaysOnly"`
}

// SheetName is the worksheet that holds the profile's rows. Underscores in
// the key stand for spaces in the sheet name (Sugar_11 -> "Sugar 11").
func (p SourceProfile) SheetName() string {
	return strings.ReplaceAll(p.Key, "_", " ")
}

// SnapshotFile is the base name of the diagnostic snapshot for the profile.
func (p SourceProfile) SnapshotFile() string {
	name := p.SnapshotName
	if name == "" {
		name = strings.ToLower(strings.ReplaceAll(p.Key, " ", "-"))
	}
	return p.Provider + "-" + name + ".json"
}
