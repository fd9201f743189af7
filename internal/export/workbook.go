// Package export renders completed jobs as XLSX workbooks.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"docparse-backend/internal/jobs"
)

const (
	fieldsSheet = "Fields"
	rawSheet    = "Raw OCR"
)

// ErrNotCompleted is returned for jobs that have no result yet.
var ErrNotCompleted = errors.New("job not completed")

// Workbook builds an XLSX file with the job's fields in request order and the
// raw OCR text one line per row.
func Workbook(job jobs.Job) ([]byte, error) {
	if job.Status != jobs.StatusCompleted {
		return nil, ErrNotCompleted
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), fieldsSheet); err != nil {
		return nil, fmt.Errorf("xlsx rename sheet: %w", err)
	}
	if err := writeFields(f, job); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(rawSheet); err != nil {
		return nil, fmt.Errorf("xlsx new sheet: %w", err)
	}
	if err := writeRawOCR(f, job.RawOCR); err != nil {
		return nil, err
	}
	if idx, err := f.GetSheetIndex(fieldsSheet); err == nil {
		f.SetActiveSheet(idx)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFields(f *excelize.File, job jobs.Job) error {
	headers := []any{"Key", "Name", "Type", "Value"}
	if err := setRow(f, fieldsSheet, 1, headers); err != nil {
		return err
	}
	mismatched := map[string]bool{}
	for _, key := range job.TypeMismatches {
		mismatched[key] = true
	}
	if len(mismatched) > 0 {
		if err := f.SetCellValue(fieldsSheet, "E1", "Type mismatch"); err != nil {
			return fmt.Errorf("xlsx header: %w", err)
		}
	}

	row := 2
	for _, field := range job.Fields.Fields() {
		value, _ := job.Result.Get(field.Key)
		cells := []any{field.Key, field.Name, field.Type, cellValue(value)}
		if mismatched[field.Key] {
			cells = append(cells, "yes")
		}
		if err := setRow(f, fieldsSheet, row, cells); err != nil {
			return err
		}
		row++
	}

	_ = f.SetColWidth(fieldsSheet, "A", "A", 20)
	_ = f.SetColWidth(fieldsSheet, "B", "B", 28)
	_ = f.SetColWidth(fieldsSheet, "C", "C", 12)
	_ = f.SetColWidth(fieldsSheet, "D", "D", 40)
	return nil
}

func writeRawOCR(f *excelize.File, raw string) error {
	if raw == "" {
		return nil
	}
	for i, line := range strings.Split(raw, "\n") {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("xlsx cell: %w", err)
		}
		if err := f.SetCellStr(rawSheet, cell, line); err != nil {
			return fmt.Errorf("xlsx raw line %d: %w", i+1, err)
		}
	}
	_ = f.SetColWidth(rawSheet, "A", "A", 100)
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("xlsx cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("xlsx set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

// cellValue renders numbers as numbers and nested JSON as compact text.
func cellValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case string, bool:
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if fl, err := val.Float64(); err == nil {
			return fl
		}
		return val.String()
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}
