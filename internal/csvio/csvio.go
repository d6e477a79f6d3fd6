// Package csvio reads and writes delimited files with a header row. Columns
// are addressed by header name, matched case-insensitively.
package csvio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// MissingColumnError reports required columns absent from the header.
type MissingColumnError struct {
	Columns []string
	Header  []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column(s) %s — header has: %s",
		strings.Join(e.Columns, ", "), strings.Join(e.Header, ", "))
}

// Delimiter parses a one-character delimiter. Empty means comma; `\t` and
// "tab" mean a tab.
func Delimiter(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter %q must be a single character", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("delimiter %q is not allowed", s)
	}
	return r, nil
}

// Row is one data record.
type Row struct {
	Line   int
	values []string
	index  map[string]int
}

// Get returns the trimmed value of column name, or "" when the column is
// absent or the row is short.
func (r Row) Get(name string) string {
	i, ok := r.index[normalize(name)]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

// Map returns every column of the row keyed by header name as written.
func (r Row) Map(header []string) map[string]string {
	out := make(map[string]string, len(header))
	for _, h := range header {
		out[h] = r.Get(h)
	}
	return out
}

// Reader reads rows after a header line.
type Reader struct {
	csv    *csv.Reader
	header []string
	index  map[string]int
}

// NewReader reads the header from r. A leading UTF-8 byte order mark is
// dropped.
func NewReader(r io.Reader, delim string) (*Reader, error) {
	comma, err := Delimiter(delim)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, bom) {
		_, _ = br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading header: file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		header[i] = h
		key := normalize(h)
		if _, dup := index[key]; dup {
			return nil, fmt.Errorf("duplicate column %q in header", h)
		}
		index[key] = i
	}
	return &Reader{csv: cr, header: header, index: index}, nil
}

// Header returns the column names.
func (r *Reader) Header() []string { return r.header }

// Has reports whether column name is present.
func (r *Reader) Has(name string) bool {
	_, ok := r.index[normalize(name)]
	return ok
}

// Require fails with a MissingColumnError unless every name is present.
// Empty names are ignored.
func (r *Reader) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if n != "" && !r.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnError{Columns: missing, Header: r.header}
	}
	return nil
}

// Next returns the next non-blank row, or io.EOF.
func (r *Reader) Next() (Row, error) {
	for {
		rec, err := r.csv.Read()
		if err != nil {
			return Row{}, err
		}
		if blank(rec) {
			continue
		}
		line, _ := r.csv.FieldPos(0)
		return Row{Line: line, values: rec, index: r.index}, nil
	}
}

// ReadAll returns every remaining row.
func (r *Reader) ReadAll() ([]Row, error) {
	var rows []Row
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// Writer writes a header followed by rows.
type Writer struct {
	csv  *csv.Writer
	cols int
}

// NewWriter writes header to w.
func NewWriter(w io.Writer, delim string, header []string) (*Writer, error) {
	comma, err := Delimiter(delim)
	if err != nil {
		return nil, err
	}
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return &Writer{csv: cw, cols: len(header)}, nil
}

// Write writes one row. It must have as many values as the header.
func (w *Writer) Write(values ...string) error {
	if len(values) != w.cols {
		return fmt.Errorf("row has %d values, header has %d", len(values), w.cols)
	}
	return w.csv.Write(values)
}

// Flush writes buffered rows and reports any write error.
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
