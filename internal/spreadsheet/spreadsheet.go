// Package spreadsheet writes and reads the xlsx files used for exports and
// bulk prospect import.
package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var ErrEmpty = errors.New("spreadsheet has no rows")

// Sheet is one worksheet: a bold header row followed by data rows.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]interface{}
}

// Write renders sheets into a workbook and writes it to w.
func Write(w io.Writer, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return errors.New("no sheets to write")
	}
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return err
	}
	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			return err
		}
		if err := writeSheet(f, sh, bold); err != nil {
			return fmt.Errorf("sheet %s: %w", sh.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeSheet(f *excelize.File, sh Sheet, headerStyle int) error {
	header := make([]interface{}, len(sh.Header))
	for i, h := range sh.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sh.Name, "A1", &header); err != nil {
		return err
	}
	if len(sh.Header) > 0 {
		last, err := excelize.CoordinatesToCellName(len(sh.Header), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sh.Name, "A1", last, headerStyle); err != nil {
			return err
		}
		lastCol, err := excelize.ColumnNumberToName(len(sh.Header))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sh.Name, "A", lastCol, 20); err != nil {
			return err
		}
	}
	for i, row := range sh.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sh.Name, cell, &r); err != nil {
			return err
		}
	}
	return nil
}

// Record is one data row keyed by lower-cased header name.
type Record struct {
	Line   int
	Values map[string]string
}

func (r Record) Get(key string) string {
	return strings.TrimSpace(r.Values[key])
}

// ReadRecords reads the first worksheet. The first row is the header; blank
// rows are skipped. Line numbers are 1-based as shown in spreadsheet apps.
func ReadRecords(r io.Reader) ([]Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	out := []Record{}
	for i, row := range rows[1:] {
		rec := Record{Line: i + 2, Values: map[string]string{}}
		blank := true
		for j, v := range row {
			if j >= len(header) || header[j] == "" {
				continue
			}
			if strings.TrimSpace(v) != "" {
				blank = false
			}
			rec.Values[header[j]] = v
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out, nil
}
