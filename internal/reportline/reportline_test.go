package reportline

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"settleflow/internal/settlement"
	"settleflow/models"
)

var cuProfile = models.SourceProfile{
	Provider:   "cmegroup",
	ID:         "4708",
	Origin:     "CMEGroup Chicago-CU",
	Key:        "CU",
	SettleRule: models.RuleComma,
	VolumeRule: models.RuleComma,
}

func TestBuildCU(t *testing.T) {
	runAt := time.Date(2024, 6, 2, 7, 30, 0, 0, time.UTC)
	line := Build(Input{
		Rows: []models.RawSettlement{
			{Month: "JUL 24", SettlementMonth: "2024-07-01", Settle: "1,75", Volume: "12"},
			{Month: "TOTAL", Settle: "-", Volume: "9.999,5"},
		},
		Profile:   cuProfile,
		RunAt:     runAt,
		TradeDate: "05/31/2024",
	})

	if len(line.ParseErrors) != 0 {
		t.Fatalf("unexpected parse errors: %v", line.ParseErrors)
	}
	if line.Concrete.Date != "02/06/2024" {
		t.Errorf("date = %q", line.Concrete.Date)
	}
	if got := line.Concrete.Volume.String(); got != "9999.5" {
		t.Errorf("volume = %s", got)
	}
	if len(line.Concrete.Months) != 1 || line.Concrete.Months[0].String() != "1.75" {
		t.Errorf("months = %v", line.Concrete.Months)
	}
	if line.Summary.Amount.String() != "1" {
		t.Errorf("amount = %s", line.Summary.Amount)
	}
	if line.Summary.Date != "2024-06-02 07:30:00" || line.Summary.TradeDate != "05/31/2024" || line.Summary.Origin != cuProfile.Origin {
		t.Errorf("unexpected summary: %+v", line.Summary)
	}
	if len(line.Settlements) != 2 || !line.Settlements[1].Total {
		t.Errorf("settlements = %+v", line.Settlements)
	}

	data, err := json.Marshal(line.Concrete)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"date":"02/06/2024","volume":9999.5,"month1":1.75}` {
		t.Errorf("json = %s", data)
	}
}

func TestBuildPlaceholderMirrorsConcrete(t *testing.T) {
	line := Build(Input{
		Rows: []models.RawSettlement{
			{Month: "JUL 24", SettlementMonth: "2024-07-01", Settle: "1,75"},
			{Month: "AUG 24", SettlementMonth: "2024-08-01", Settle: "1,80"},
			{Month: "SEP 24", SettlementMonth: "2024-09-01", Settle: "1,85"},
		},
		Profile: cuProfile,
	})

	concrete := line.Concrete.Fields()
	placeholder := line.Placeholder.Fields()
	if len(concrete) != len(placeholder) {
		t.Fatalf("fields differ: %v vs %v", concrete, placeholder)
	}
	for i := range concrete {
		if concrete[i] != placeholder[i] {
			t.Fatalf("field %d: %s vs %s", i, concrete[i], placeholder[i])
		}
	}
	v, _ := line.Placeholder.Value("month3")
	if v != "${table:CU.month3}" {
		t.Errorf("month3 marker = %v", v)
	}
	if _, ok := line.Placeholder.Value("month4"); ok {
		t.Errorf("month4 should not exist")
	}
}

func TestBuildWithoutTotal(t *testing.T) {
	line := Build(Input{
		Rows:    []models.RawSettlement{{Month: "MAR 25", SettlementMonth: "2025-03-01", Settle: "445'6", Volume: "3"}},
		Profile: models.SourceProfile{Key: "CORN", SettleRule: models.RuleApostrophe, VolumeRule: models.RuleComma},
	})
	if !line.Concrete.Volume.Equal(models.DefaultVolume) {
		t.Errorf("volume = %s, want default", line.Concrete.Volume)
	}
	if line.Concrete.Months[0].String() != "445.6" {
		t.Errorf("month1 = %s", line.Concrete.Months[0])
	}
}

func TestBuildMalformedSettleDefaultsToZero(t *testing.T) {
	line := Build(Input{
		Rows: []models.RawSettlement{
			{Month: "JUL 24", Settle: "n/a"},
			{Month: "AUG 24", Settle: "2,5"},
		},
		Profile: cuProfile,
	})
	if len(line.ParseErrors) != 1 {
		t.Fatalf("parse errors = %v", line.ParseErrors)
	}
	var pe *settlement.ParseError
	if !errors.As(line.ParseErrors[0], &pe) || pe.Raw != "n/a" {
		t.Errorf("unexpected error: %v", line.ParseErrors[0])
	}
	if !line.Concrete.Months[0].IsZero() || line.Concrete.Months[1].String() != "2.5" {
		t.Errorf("months = %v", line.Concrete.Months)
	}
	if line.Summary.Amount.Count != 2 {
		t.Errorf("amount = %v", line.Summary.Amount)
	}
}

func TestErrorSummary(t *testing.T) {
	s := ErrorSummary(cuProfile, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), "06/01/2024", models.AmountError)
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"date":"2024-06-02 00:00:00","tradeDate":"06/01/2024","origin":"CMEGroup Chicago-CU","amount":"ERROR"}`
	if string(data) != want {
		t.Errorf("json = %s", data)
	}
}
