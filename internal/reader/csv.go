// Package reader loads the raw and processed inputs of the pipeline: CSV
// tables, Excel workbooks, GeoPackage layers and shapefiles.
package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// streamRecords reads CSV records on a goroutine and sends them, header
// included, to the returned channel. Fields are trimmed and quotes are read
// leniently. Both channels are closed when reading stops; at most one error
// is sent.
func streamRecords(ctx context.Context, r io.Reader) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		cr := csv.NewReader(r)
		cr.LazyQuotes = true
		cr.FieldsPerRecord = -1

		for {
			record, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ParseCSV reads a whole CSV stream with a header row into a frame.
func ParseCSV(ctx context.Context, r io.Reader) (*table.Frame, error) {
	rowCh, errCh := streamRecords(ctx, r)

	var records [][]string
	for rec := range rowCh {
		records = append(records, rec)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.New(apperr.KindSchema, "CSV file has no header row")
	}

	f, err := table.FromRecords(records[0], records[1:])
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindSchema, "malformed CSV header")
	}
	return f, nil
}

// ReadCSV loads the CSV file at path. what names the dataset in errors; a
// missing file is a NotFound error naming the path.
func ReadCSV(ctx context.Context, path, what string) (*table.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.MissingFile(what, path, err)
		}
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer fh.Close() //nolint:errcheck

	f, err := ParseCSV(ctx, fh)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: parse %s", path)
	}
	return f.Named(what), nil
}

// EncodeCSV writes the frame with a header row.
func EncodeCSV(w io.Writer, f *table.Frame) error {
	header, records := f.Records()
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	if err := cw.WriteAll(records); err != nil {
		return eris.Wrap(err, "csv: write rows")
	}
	return nil
}

// WriteCSV writes the frame to path atomically.
func WriteCSV(path string, f *table.Frame) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		return EncodeCSV(w, f)
	})
}
