package workbook

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"settleflow/models"
)

// writeDataTemplate creates a workbook with a CU sheet holding a header row,
// a table row of markers and a direct volume cell.
func writeDataTemplate(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", "CU"); err != nil {
		t.Fatalf("rename sheet: %v", err)
	}
	cells := map[string]string{
		"A1": "Date", "B1": "Volume", "C1": "M1", "D1": "M2", "F1": "${CU.volume}",
		"A2": "${table:CU.date}", "B2": "${table:CU.volume}", "C2": "${table:CU.month1}", "D2": "${table:CU.month2}",
		"A4": "${table:NYH.date}",
	}
	for cell, v := range cells {
		if err := f.SetCellValue("CU", cell, v); err != nil {
			t.Fatalf("set %s: %v", cell, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save template: %v", err)
	}
}

func writeSummaryTemplate(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", models.SummaryKey); err != nil {
		t.Fatalf("rename sheet: %v", err)
	}
	for i, field := range []string{"date", "tradeDate", "origin", "amount"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(models.SummaryKey, cell, models.Marker(models.SummaryKey, field)); err != nil {
			t.Fatalf("set %s: %v", cell, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save template: %v", err)
	}
}

func cuLine() models.ConcreteLine {
	return models.ConcreteLine{
		Date:   "01/06/2024",
		Volume: decimal.RequireFromString("9999.5"),
		Months: []decimal.Decimal{decimal.RequireFromString("1.75")},
	}
}

func dataJob(dir string) Job {
	line := cuLine()
	return Job{
		Name:         "data",
		TemplatePath: filepath.Join(dir, "template.xlsx"),
		OutputPath:   filepath.Join(dir, "out", "report.xlsx"),
		Output:       []Payload{{Sheet: "CU", Key: "CU", Rows: []models.Row{line}}},
		CarryForward: []Payload{{Sheet: "CU", Key: "CU", Rows: []models.Row{line, models.PlaceholderLine{Key: "CU", Months: 1}}}},
	}
}

func cell(t *testing.T, path, sheet, axis string) string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	v, err := f.GetCellValue(sheet, axis)
	if err != nil {
		t.Fatalf("get %s: %v", axis, err)
	}
	return v
}

func TestRenderOutputPass(t *testing.T) {
	dir := t.TempDir()
	job := dataJob(dir)
	writeDataTemplate(t, job.TemplatePath)

	if err := NewEngine(Options{}).Render(job); err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := map[string]string{
		"A2": "01/06/2024",
		"B2": "9999.5",
		"C2": "1.75",
		"D2": "${table:CU.month2}",
		"F1": "9999.5",
		"A4": "${table:NYH.date}",
	}
	for axis, v := range want {
		if got := cell(t, job.OutputPath, "CU", axis); got != v {
			t.Errorf("output %s = %q, want %q", axis, got, v)
		}
	}
}

func TestRenderCarryForward(t *testing.T) {
	dir := t.TempDir()
	job := dataJob(dir)
	writeDataTemplate(t, job.TemplatePath)

	if err := NewEngine(Options{BackupTemplates: true}).Render(job); err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := map[string]string{
		"A2": "01/06/2024",
		"C2": "1.75",
		"D2": "",
		"A3": "${table:CU.date}",
		"B3": "${table:CU.volume}",
		"C3": "${table:CU.month1}",
		"D3": "${table:CU.month2}",
		"A5": "${table:NYH.date}",
	}
	for axis, v := range want {
		if got := cell(t, job.TemplatePath, "CU", axis); got != v {
			t.Errorf("template %s = %q, want %q", axis, got, v)
		}
	}

	if got := cell(t, job.TemplatePath+".bak", "CU", "A2"); got != "${table:CU.date}" {
		t.Errorf("backup A2 = %q, want the original marker", got)
	}
}

func TestRenderSecondCycleUsesPlaceholderRow(t *testing.T) {
	dir := t.TempDir()
	job := dataJob(dir)
	writeDataTemplate(t, job.TemplatePath)
	engine := NewEngine(Options{})

	if err := engine.Render(job); err != nil {
		t.Fatalf("first Render: %v", err)
	}

	next := models.ConcreteLine{
		Date:   "02/06/2024",
		Volume: decimal.NewFromInt(10),
		Months: []decimal.Decimal{decimal.RequireFromString("1.8"), decimal.RequireFromString("1.9")},
	}
	job.Output = []Payload{{Sheet: "CU", Key: "CU", Rows: []models.Row{next}}}
	job.CarryForward = []Payload{{Sheet: "CU", Key: "CU", Rows: []models.Row{next, models.PlaceholderLine{Key: "CU", Months: 2}}}}
	if err := engine.Render(job); err != nil {
		t.Fatalf("second Render: %v", err)
	}

	want := map[string]string{
		"A2": "01/06/2024",
		"A3": "02/06/2024",
		"D3": "1.9",
	}
	for axis, v := range want {
		if got := cell(t, job.OutputPath, "CU", axis); got != v {
			t.Errorf("output %s = %q, want %q", axis, got, v)
		}
	}
	if got := cell(t, job.TemplatePath, "CU", "A4"); got != "${table:CU.date}" {
		t.Errorf("template A4 = %q", got)
	}
}

func TestRenderSummaryRows(t *testing.T) {
	dir := t.TempDir()
	job := Job{
		Name:         "summary",
		TemplatePath: filepath.Join(dir, "resume_template.xlsx"),
		OutputPath:   filepath.Join(dir, "resume.xlsx"),
	}
	writeSummaryTemplate(t, job.TemplatePath)

	summaries := []models.Row{
		models.RunSummary{Date: "2024-06-02 07:00:00", TradeDate: "05/31/2024", Origin: "CMEGroup Chicago-CU", Amount: models.CountAmount(1)},
		models.RunSummary{Date: "2024-06-02 07:00:00", TradeDate: "06/01/2024", Origin: "CMEGroup Corn", Amount: models.SentinelAmount(models.AmountError)},
	}
	job.Output = []Payload{{Sheet: models.SummaryKey, Key: models.SummaryKey, Rows: summaries}}
	job.CarryForward = []Payload{{Sheet: models.SummaryKey, Key: models.SummaryKey, Rows: append(append([]models.Row{}, summaries...), models.SummaryPlaceholder{})}}

	if err := NewEngine(Options{}).Render(job); err != nil {
		t.Fatalf("Render: %v", err)
	}

	if got := cell(t, job.OutputPath, models.SummaryKey, "D2"); got != "1" {
		t.Errorf("output D2 = %q", got)
	}
	if got := cell(t, job.OutputPath, models.SummaryKey, "D3"); got != "ERROR" {
		t.Errorf("output D3 = %q", got)
	}
	if got := cell(t, job.OutputPath, models.SummaryKey, "A4"); got != "" {
		t.Errorf("output A4 = %q, want no placeholder row", got)
	}
	if got := cell(t, job.TemplatePath, models.SummaryKey, "C3"); got != "CMEGroup Corn" {
		t.Errorf("template C3 = %q", got)
	}
	if got := cell(t, job.TemplatePath, models.SummaryKey, "D4"); got != "${table:resumeData.amount}" {
		t.Errorf("template D4 = %q", got)
	}
}

func TestRenderMissingTemplate(t *testing.T) {
	dir := t.TempDir()
	good := dataJob(dir)
	writeDataTemplate(t, good.TemplatePath)
	original, err := os.ReadFile(good.TemplatePath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	missing := Job{
		Name:         "summary",
		TemplatePath: filepath.Join(dir, "absent.xlsx"),
		OutputPath:   filepath.Join(dir, "resume.xlsx"),
	}

	err = NewEngine(Options{}).Render(good, missing)
	var te *TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("expected TemplateError, got %v", err)
	}
	if te.Path != missing.TemplatePath {
		t.Errorf("path = %q", te.Path)
	}

	for _, p := range []string{good.OutputPath, missing.OutputPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist: %v", p, err)
		}
	}
	after, _ := os.ReadFile(good.TemplatePath)
	if !reflect.DeepEqual(original, after) {
		t.Errorf("template was modified despite the failure")
	}
}

func TestRenderCorruptTemplate(t *testing.T) {
	dir := t.TempDir()
	job := dataJob(dir)
	if err := os.WriteFile(job.TemplatePath, []byte("not a workbook"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := NewEngine(Options{}).Render(job)
	var te *TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("expected TemplateError, got %v", err)
	}
}

func TestRenderMissingSheetIsSkipped(t *testing.T) {
	dir := t.TempDir()
	job := dataJob(dir)
	writeDataTemplate(t, job.TemplatePath)
	sugar := Payload{Sheet: "Sugar 11", Key: "Sugar_11", Rows: []models.Row{cuLine()}}
	job.Output = append(job.Output, sugar)
	job.CarryForward = append(job.CarryForward, sugar)

	if err := NewEngine(Options{}).Render(job); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := cell(t, job.OutputPath, "CU", "A2"); got != "01/06/2024" {
		t.Errorf("CU sheet not filled: %q", got)
	}
}

func TestRenderOutputIsIdempotent(t *testing.T) {
	rowsOf := func(dir string) [][]string {
		job := dataJob(dir)
		writeDataTemplate(t, job.TemplatePath)
		if err := NewEngine(Options{}).Render(job); err != nil {
			t.Fatalf("Render: %v", err)
		}
		f, err := excelize.OpenFile(job.OutputPath)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer f.Close()
		rows, err := f.GetRows("CU")
		if err != nil {
			t.Fatalf("rows: %v", err)
		}
		return rows
	}

	first := rowsOf(t.TempDir())
	second := rowsOf(t.TempDir())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("outputs differ:\n%v\n%v", first, second)
	}
}

func TestParsePlaceholder(t *testing.T) {
	tests := []struct {
		in   string
		want placeholder
		ok   bool
	}{
		{"${CU.volume}", placeholder{Key: "CU", Field: "volume"}, true},
		{"${table:Sugar_11.month3}", placeholder{Table: true, Key: "Sugar_11", Field: "month3"}, true},
		{"${table:resumeData.tradeDate}", placeholder{Table: true, Key: "resumeData", Field: "tradeDate"}, true},
		{"prefix ${CU.volume}", placeholder{}, false},
		{"${CU}", placeholder{}, false},
		{"${CU.}", placeholder{}, false},
		{"${CU.volume", placeholder{}, false},
	}
	for _, tt := range tests {
		got, ok := parsePlaceholder(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parsePlaceholder(%q) = %+v, %v", tt.in, got, ok)
		}
	}
}
