// Package export writes enrichment results for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/raphaelgruber/enrichr/internal/models"
)

// Format is an output serialization.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
	FormatJSONL Format = "jsonl"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatTSV, FormatJSONL:
		return f, nil
	case "json", "ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want csv, tsv or jsonl)", s)
	}
}

// FormatFor picks the format from the file extension, defaulting to CSV.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		return FormatTSV
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL
	default:
		return FormatCSV
	}
}

// Options controls how rows are written.
type Options struct {
	Format Format

	// EntityColumn is the header of the first delimited column.
	EntityColumn string

	// Template is the header of the answer column.
	Template models.PromptTemplate

	// WithStatus adds status, stage, error and evidence columns to delimited output.
	WithStatus bool
}

// Write serializes rows to w in opts.Format.
func Write(w io.Writer, rows []models.ResultRow, opts Options) error {
	switch opts.Format {
	case FormatTSV:
		return WriteDelimited(w, rows, opts.EntityColumn, opts.Template, '\t', opts.WithStatus)
	case FormatJSONL:
		return WriteJSONLines(w, rows)
	case FormatCSV, "":
		return WriteDelimited(w, rows, opts.EntityColumn, opts.Template, ',', opts.WithStatus)
	default:
		return fmt.Errorf("unknown output format %q", opts.Format)
	}
}

// WriteFile writes rows to path, creating or truncating it.
func WriteFile(path string, rows []models.ResultRow, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := Write(f, rows, opts); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

// WriteDelimited writes a header of entityColumn and the template text followed by
// one record per row.
func WriteDelimited(w io.Writer, rows []models.ResultRow, entityColumn string, tmpl models.PromptTemplate, comma rune, withStatus bool) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma

	header := []string{entityColumn, tmpl.String()}
	if withStatus {
		header = append(header, "status", "stage", "error", "evidence")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, row := range rows {
		record := []string{row.Entity, row.Answer}
		if withStatus {
			record = append(record, string(row.Status), string(row.Stage), row.Error, strconv.Itoa(row.Evidence))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %q: %w", row.Entity, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// WriteJSONLines writes one JSON object per row.
func WriteJSONLines(w io.Writer, rows []models.ResultRow) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encode row %q: %w", row.Entity, err)
		}
	}
	return nil
}
