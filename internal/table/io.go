package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tbourn/go-outreach-batch/internal/domain"
)

// ErrEmpty is returned when an input file has no header row.
var ErrEmpty = errors.New("table has no header row")

var bom = []byte("\ufeff")

// candidate delimiters, in tie-break order
var delimiters = []rune{',', '\t', ';', '|'}

// ReadFile loads a table from path. Excel workbooks (.xlsx, .xlsm) are
// read from sheet, or from the first sheet when sheet is empty. Anything
// else is treated as delimited text with the delimiter sniffed from the
// header line.
func ReadFile(path, sheet string) (*Table, error) {
	if IsWorkbook(path) {
		return readWorkbook(path, sheet)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadDelimited(f)
}

// ReadDelimited parses delimited text, sniffing the delimiter.
func ReadDelimited(r io.Reader) (*Table, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, err := br.Peek(64 * 1024)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	if bytes.HasPrefix(head, bom) {
		_, _ = br.Discard(len(bom))
		head = head[len(bom):]
	}
	if len(bytes.TrimSpace(head)) == 0 {
		return nil, ErrEmpty
	}

	cr := csv.NewReader(br)
	cr.Comma = SniffDelimiter(firstLine(head))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}
	t := New(trimAll(records[0])...)
	for i, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		if err := t.appendRecord(i+1, rec); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// SniffDelimiter picks the candidate delimiter occurring most often in the
// header line, defaulting to a comma.
func SniffDelimiter(header string) rune {
	best, bestN := ',', 0
	for _, d := range delimiters {
		if n := strings.Count(header, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

// WriteFile writes t to path. Workbook extensions produce an .xlsx with a
// single sheet; .tsv is tab-separated; everything else is comma-separated.
func WriteFile(path string, t *Table) error {
	if IsWorkbook(path) {
		return writeWorkbook(path, t)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteDelimited(f, t, delimiterFor(path)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteDelimited writes t as delimited text.
func WriteDelimited(w io.Writer, t *Table, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(t.pad(append([]string(nil), row...), len(t.Columns))); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readWorkbook(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found in %s", sheet, filepath.Base(path))
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	t := New(trimAll(rows[0])...)
	for i, rec := range rows[1:] {
		if isBlank(rec) {
			continue
		}
		if err := t.appendRecord(i+1, rec); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func writeWorkbook(path string, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	write := func(r int, cells []string) error {
		cell, err := excelize.CoordinatesToCellName(1, r)
		if err != nil {
			return err
		}
		vals := make([]any, len(cells))
		for i, c := range cells {
			vals[i] = c
		}
		return f.SetSheetRow(sheet, cell, &vals)
	}
	if err := write(1, t.Columns); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err := write(i+2, row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// IsWorkbook reports whether path names an Excel workbook.
func IsWorkbook(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}

func delimiterFor(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}
	return ','
}

// appendRecord adds a data row read from a file. Empty cells past the
// header are dropped; a non-empty one is a SchemaError.
func (t *Table) appendRecord(row int, rec []string) error {
	if w := len(t.Columns); len(rec) > w {
		if !isBlank(rec[w:]) {
			return domain.NewSchemaError(domain.ErrRaggedRow, "row %d has %d fields, header has %d", row, len(rec), w)
		}
		rec = rec[:w]
	}
	t.Append(rec...)
	return nil
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
