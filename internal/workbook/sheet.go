package workbook

import (
	"github.com/xuri/excelize/v2"

	"settleflow/models"
)

type markerCell struct {
	col   int
	field string
}

// fillSheet substitutes p into its sheet. Direct ${key.field} cells take the
// first row of the payload. The first row holding ${table:key.*} markers is
// repeated once per payload row and row i receives p.Rows[i]. Fields a row
// does not carry are left as they are, except that carry-forward clears them
// in concrete rows so only the placeholder row keeps markers.
func fillSheet(f *excelize.File, p Payload, carryForward bool) error {
	if len(p.Rows) == 0 {
		return nil
	}

	rows, err := f.GetRows(p.Sheet)
	if err != nil {
		return err
	}

	tableRow := 0
	var markers []markerCell
	for r, row := range rows {
		for c, value := range row {
			ph, ok := parsePlaceholder(value)
			if !ok || ph.Key != p.Key {
				continue
			}
			if !ph.Table {
				if v, ok := p.Rows[0].Value(ph.Field); ok {
					if err := setCell(f, p.Sheet, c+1, r+1, v); err != nil {
						return err
					}
				}
				continue
			}
			if tableRow == 0 {
				tableRow = r + 1
			}
			if tableRow == r+1 {
				markers = append(markers, markerCell{col: c + 1, field: ph.Field})
			}
		}
	}
	if tableRow == 0 {
		return nil
	}

	for i := 1; i < len(p.Rows); i++ {
		if err := f.DuplicateRow(p.Sheet, tableRow); err != nil {
			return err
		}
	}

	for i, row := range p.Rows {
		clearStale := carryForward && !isPlaceholder(row)
		for _, m := range markers {
			v, ok := row.Value(m.field)
			if !ok {
				if !clearStale {
					continue
				}
				v = ""
			}
			if err := setCell(f, p.Sheet, m.col, tableRow+i, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, v)
}

func isPlaceholder(r models.Row) bool {
	switch r.(type) {
	case models.PlaceholderLine, models.SummaryPlaceholder:
		return true
	default:
		return false
	}
}
