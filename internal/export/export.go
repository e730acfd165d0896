// Package export renders the collection files as downloadable archives:
// a zip of the raw CSVs and an xlsx workbook with one sheet per collection.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/storage"
)

// MIME types and the sheet layout of the workbook.
const (
	ZipContentType  = "application/zip"
	XlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// sheets pairs collection specs with their workbook sheet names, in order.
var sheets = []struct {
	spec  storage.Spec
	sheet string
}{
	{storage.TransactionsSpec, "Transactions"},
	{storage.CategoriesSpec, "Categories"},
	{storage.BudgetsSpec, "Budgets"},
}

// Exporter reads the collection files from the data directory.
type Exporter struct {
	writer *storage.Writer
}

// New creates an exporter over the given data directory.
func New(w *storage.Writer) *Exporter {
	return &Exporter{writer: w}
}

// Filename returns a timestamped attachment name with the given extension.
func Filename(ext string, now time.Time) string {
	return fmt.Sprintf("budget-export-%s.%s", storage.TimestampCompact(now), ext)
}

// Zip bundles the raw collection CSVs. Missing files are omitted rather
// than failing the export.
func (e *Exporter) Zip() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, s := range sheets {
		path := e.writer.CollectionPath(s.spec)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, apperr.IO("could not read "+s.spec.Filename, err)
		}
		f, err := zw.Create(s.spec.Filename)
		if err != nil {
			return nil, apperr.IO("could not add "+s.spec.Filename+" to archive", err)
		}
		if _, err := f.Write(data); err != nil {
			return nil, apperr.IO("could not write "+s.spec.Filename+" to archive", err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, apperr.IO("could not finalize archive", err)
	}
	return buf.Bytes(), nil
}

// Xlsx renders one sheet per collection, cells kept as text so ids and
// months survive untouched.
func (e *Exporter) Xlsx() ([]byte, error) {
	wb := excelize.NewFile()
	defer wb.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := wb.SetSheetName(wb.GetSheetName(0), s.sheet); err != nil {
				return nil, apperr.IO("could not name sheet "+s.sheet, err)
			}
		} else {
			if _, err := wb.NewSheet(s.sheet); err != nil {
				return nil, apperr.IO("could not create sheet "+s.sheet, err)
			}
		}

		records, err := e.readRecords(s.spec)
		if err != nil {
			return nil, err
		}
		for rowIdx, rec := range records {
			cells := make([]interface{}, len(rec))
			for i, v := range rec {
				cells[i] = v
			}
			addr, err := excelize.CoordinatesToCellName(1, rowIdx+1)
			if err != nil {
				return nil, apperr.IO("could not address workbook cell", err)
			}
			if err := wb.SetSheetRow(s.sheet, addr, &cells); err != nil {
				return nil, apperr.IO("could not write row to sheet "+s.sheet, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		return nil, apperr.IO("could not render workbook", err)
	}
	return buf.Bytes(), nil
}

// readRecords returns the raw CSV records of one collection, header first.
// A missing file yields just the canonical header.
func (e *Exporter) readRecords(spec storage.Spec) ([][]string, error) {
	path := e.writer.CollectionPath(spec)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return [][]string{spec.Columns}, nil
		}
		return nil, apperr.IO("could not read "+spec.Filename, err)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, apperr.CorruptCollection("could not parse " + spec.Filename).WithCause(err)
	}
	if len(records) == 0 {
		return [][]string{spec.Columns}, nil
	}
	return records, nil
}
