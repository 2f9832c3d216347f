package reader

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// XLSXOptions selects a sheet and the header row within it.
type XLSXOptions struct {
	SheetName string
	SkipRows  int // preamble rows before the header
}

// Workbook is an opened XLSX file. Opening once and reading several sheets
// avoids re-parsing large workbooks.
type Workbook struct {
	path string
	file *xlsx.File
}

// OpenXLSX opens the workbook at path.
func OpenXLSX(path, what string) (*Workbook, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.MissingFile(what, path, err)
	}
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}
	return &Workbook{path: path, file: f}, nil
}

// SheetNames returns the sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.file.Sheets))
	for i, s := range w.file.Sheets {
		names[i] = s.Name
	}
	return names
}

// Frame reads a sheet as a frame whose header is the first row after SkipRows.
// Cells are read as displayed text and typed by table.FromRecords.
func (w *Workbook) Frame(opts XLSXOptions) (*table.Frame, error) {
	sheet, ok := w.file.Sheet[opts.SheetName]
	if !ok {
		return nil, apperr.Newf(apperr.KindSchema, "sheet %q not found in %s (sheets: %s)",
			opts.SheetName, w.path, strings.Join(w.SheetNames(), ", "))
	}
	if len(sheet.Rows) <= opts.SkipRows {
		return nil, apperr.Newf(apperr.KindSchema, "sheet %q in %s has no header row", opts.SheetName, w.path)
	}

	body := sheet.Rows[opts.SkipRows:]
	records := make([][]string, 0, len(body))
	for _, row := range body {
		if row == nil {
			records = append(records, nil)
			continue
		}
		rec := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			rec[j] = strings.TrimSpace(cell.String())
		}
		records = append(records, rec)
	}

	f, err := table.FromRecords(records[0], records[1:])
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindSchema, "malformed sheet header")
	}
	return f.Named(opts.SheetName), nil
}
