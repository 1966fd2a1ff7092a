// Package ingest reads incident exports and cleans them into typed
// records the feature deriver can consume.
package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"
)

// FileOptions configure export parsing.
type FileOptions struct {
	SheetIndex int    // xlsx sheet, default 0
	SheetName  string // if set, overrides SheetIndex
	Delimiter  rune   // csv delimiter, default ','
	Charset    string // IANA charset label for csv decoding, "" = utf-8
}

// ReadFile loads a CSV or XLSX export and returns the header row and
// the data rows. The format is picked by file extension.
func ReadFile(path string, opts FileOptions) ([]string, [][]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return readXLSX(path, opts)
	}
	return readCSV(path, opts)
}

func readCSV(path string, opts FileOptions) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: open export")
	}
	defer f.Close()

	var r io.Reader = f
	if opts.Charset != "" {
		enc, err := htmlindex.Get(opts.Charset)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "ingest: unsupported charset %q", opts.Charset)
		}
		r = enc.NewDecoder().Reader(f)
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: read csv")
	}
	if len(rows) == 0 {
		return nil, nil, eris.Errorf("ingest: %s has no rows", path)
	}
	return rows[0], rows[1:], nil
}

func readXLSX(path string, opts FileOptions) ([]string, [][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: open xlsx")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, nil, eris.Errorf("ingest: sheet %q has no rows", sheet.Name)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows[0], rows[1:], nil
}

func pickSheet(f *xlsx.File, opts FileOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("ingest: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}
