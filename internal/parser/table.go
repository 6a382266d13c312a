// Package parser loads tabular input files and extracts entity columns.
package parser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/raphaelgruber/enrichr/internal/models"
	"github.com/xuri/excelize/v2"
)

// TextColumn is the single column name of a .txt table.
const TextColumn = "text"

// ErrUnsupportedFormat is returned for file extensions Load cannot read.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Table is a header row plus data rows. Every row has len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Load reads path based on its extension: .csv, .tsv, .xlsx or .txt.
// sheet selects the workbook sheet for .xlsx and is ignored otherwise.
func Load(path, sheet string) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		return ParseXLSX(path, sheet)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch ext {
	case ".csv":
		return ParseDelimited(f, ',')
	case ".tsv":
		return ParseDelimited(f, '\t')
	case ".txt":
		return ParseText(f)
	default:
		return nil, fmt.Errorf("%w: %q (want .csv, .tsv, .xlsx or .txt)", ErrUnsupportedFormat, ext)
	}
}

// ParseDelimited reads a delimited table whose first record is the header.
func ParseDelimited(r io.Reader, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read delimited input: %w", err)
	}
	return newTable(records)
}

// ParseXLSX reads one sheet of a workbook. An empty sheet name selects the first sheet.
func ParseXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if !slices.Contains(sheets, sheet) {
		return nil, fmt.Errorf("sheet %q not found (available: %s)", sheet, strings.Join(sheets, ", "))
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return newTable(rows)
}

// Sheets lists the sheet names of a workbook.
func Sheets(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	return f.GetSheetList(), nil
}

// ParseText reads one value per non-blank line into a single TextColumn column.
func ParseText(r io.Reader) (*Table, error) {
	t := &Table{Columns: []string{TextColumn}}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		t.Rows = append(t.Rows, []string{line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read text input: %w", err)
	}
	return t, nil
}

func newTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.New("input has no header row")
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = strings.TrimSpace(h)
	}

	t := &Table{Columns: header, Rows: make([][]string, 0, len(records)-1)}
	for _, rec := range records[1:] {
		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Column returns the index of name, matching exactly first and then case-insensitively.
func (t *Table) Column(name string) (int, error) {
	for i, c := range t.Columns {
		if c == name {
			return i, nil
		}
	}
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column %q not found (available: %s)", name, strings.Join(t.Columns, ", "))
}

// Values returns every cell of column in row order.
func (t *Table) Values(column string) ([]string, error) {
	idx, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// DistinctValues returns the trimmed, non-null values of column in first-occurrence order.
func (t *Table) DistinctValues(column string) ([]string, error) {
	values, err := t.Values(column)
	if err != nil {
		return nil, err
	}
	return models.DistinctEntities(values), nil
}
