package reader

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/drm-lab/urbanrisk/internal/table"
)

// maxSheetName is the Excel limit on sheet name length.
const maxSheetName = 31

// EncodeXLSX writes the frame as a single-sheet workbook named after the
// frame's dataset. Numeric columns are written as numbers; missing values
// are left blank.
func EncodeXLSX(w io.Writer, f *table.Frame) error {
	sheet := f.DatasetName()
	if sheet == "" {
		sheet = "data"
	}
	if len(sheet) > maxSheetName {
		sheet = sheet[:maxSheetName]
	}

	x := excelize.NewFile()
	defer x.Close() //nolint:errcheck
	if err := x.SetSheetName("Sheet1", sheet); err != nil {
		return eris.Wrap(err, "xlsx: name sheet")
	}

	sw, err := x.NewStreamWriter(sheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: stream writer")
	}
	names := f.Names()
	header := make([]any, len(names))
	for j, n := range names {
		header[j] = n
	}
	if err := sw.SetRow("A1", header); err != nil {
		return eris.Wrap(err, "xlsx: write header")
	}

	cols := make([]*table.Column, len(names))
	for j, n := range names {
		cols[j], _ = f.Col(n)
	}
	row := make([]any, len(names))
	for i := range f.Len() {
		for j, c := range cols {
			switch {
			case c.IsMissing(i):
				row[j] = nil
			case c.Kind() == table.Float:
				row[j] = c.Float(i)
			default:
				row[j] = c.String(i)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return eris.Wrap(err, "xlsx: cell name")
		}
		if err := sw.SetRow(cell, row); err != nil {
			return eris.Wrapf(err, "xlsx: write row %d", i+2)
		}
	}
	if err := sw.Flush(); err != nil {
		return eris.Wrap(err, "xlsx: flush")
	}
	if _, err := x.WriteTo(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}
