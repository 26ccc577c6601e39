// Package sink appends rows to named sheets of an xlsx workbook on disk.
package sink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

const (
	VideoSheet   = "Results"
	CommentSheet = "Comments"

	defaultSheet = "Sheet1"
)

// Workbook is a spreadsheet file that grows by appending rows. Every call
// reopens the file from disk, so nothing accumulates in memory between calls,
// and every successful call leaves the file saved.
type Workbook struct {
	path string
}

// NewWorkbook returns a sink writing to path. The file is created on the
// first Append.
func NewWorkbook(path string) *Workbook {
	return &Workbook{path: path}
}

// Path is the workbook location.
func (w *Workbook) Path() string { return w.path }

// Append adds rows to sheet after any rows it already holds. A missing file or
// sheet is created, with header as its first row. Other sheets are left as
// they are. A nil cell is written empty.
func (w *Workbook) Append(sheet string, header []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	f, created, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	next, err := prepareSheet(f, sheet, header, created)
	if err != nil {
		return err
	}

	for _, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, next)
		if err != nil {
			return fmt.Errorf("sheet %s: %w", sheet, err)
		}
		values := make([]any, len(row))
		for i, v := range row {
			if v == nil {
				v = ""
			}
			values[i] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, next, err)
		}
		next++
	}

	return w.save(f)
}

// Rows returns the data rows of sheet, without the header. A missing file or
// sheet yields no rows.
func (w *Workbook) Rows(sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheet, err)
	}
	if idx == -1 {
		return nil, nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	return rows[1:], nil
}

func (w *Workbook) open() (*excelize.File, bool, error) {
	f, err := excelize.OpenFile(w.path)
	if err == nil {
		return f, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("open workbook: %w", err)
	}
	return excelize.NewFile(), true, nil
}

// prepareSheet makes sure sheet exists and returns the first free row.
func prepareSheet(f *excelize.File, sheet string, header []string, created bool) (int, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return 0, fmt.Errorf("sheet %s: %w", sheet, err)
	}
	if idx != -1 {
		existing, err := f.GetRows(sheet)
		if err != nil {
			return 0, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		return len(existing) + 1, nil
	}

	if created {
		// A new file comes with an empty default sheet; reuse it.
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return 0, fmt.Errorf("rename default sheet: %w", err)
		}
	} else if _, err := f.NewSheet(sheet); err != nil {
		return 0, fmt.Errorf("create sheet %s: %w", sheet, err)
	}

	if len(header) == 0 {
		return 1, nil
	}
	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &cells); err != nil {
		return 0, fmt.Errorf("sheet %s header: %w", sheet, err)
	}
	return 2, nil
}

// save writes the workbook next to its destination and renames it into place.
func (w *Workbook) save(f *excelize.File) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".workbook-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}
