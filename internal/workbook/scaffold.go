package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"settleflow/internal/fileutil"
	"settleflow/models"
)

// Sheet describes one worksheet of a starter template.
type Sheet struct {
	Name string
	Key  string
	// Fields are written as a header row and a row of table markers.
	Fields []string
}

// DataSheet returns the starter sheet of a source with months contract
// month columns.
func DataSheet(p models.SourceProfile, months int) Sheet {
	fields := []string{models.FieldDate, models.FieldVolume}
	for i := 1; i <= months; i++ {
		fields = append(fields, models.MonthField(i))
	}
	return Sheet{Name: p.SheetName(), Key: p.Key, Fields: fields}
}

// SummarySheet returns the starter sheet of the run summary.
func SummarySheet() Sheet {
	return Sheet{
		Name:   models.SummaryKey,
		Key:    models.SummaryKey,
		Fields: models.RunSummary{}.Fields(),
	}
}

// Scaffold writes a workbook holding sheets to path. An existing file is
// only replaced when overwrite is set.
func Scaffold(path string, sheets []Sheet, overwrite bool) error {
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets to scaffold")
	}
	if !overwrite && fileutil.Exists(path) {
		return fmt.Errorf("%s already exists", path)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return err
		}
		for c, field := range s.Fields {
			header, err := excelize.CoordinatesToCellName(c+1, 1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(s.Name, header, field); err != nil {
				return err
			}
			marker, _ := excelize.CoordinatesToCellName(c+1, 2)
			if err := f.SetCellValue(s.Name, marker, models.Marker(s.Key, field)); err != nil {
				return err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}
