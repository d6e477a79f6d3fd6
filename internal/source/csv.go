package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bianoble/vaultsync/internal/config"
	"github.com/bianoble/vaultsync/internal/csvio"
	"github.com/bianoble/vaultsync/internal/entry"
	"github.com/bianoble/vaultsync/internal/pathkey"
)

// Column roles understood by the CSV source. source.columns maps a role to
// the header name holding it; unmapped roles use the role name itself.
const (
	ColumnName        = "name"
	ColumnPath        = "path"
	ColumnHost        = "host"
	ColumnPort        = "port"
	ColumnUsername    = "username"
	ColumnPassword    = "password"
	ColumnDomain      = "domain"
	ColumnURL         = "url"
	ColumnDescription = "description"
)

// ColumnRoles lists every role, name first.
var ColumnRoles = []string{
	ColumnName, ColumnPath, ColumnHost, ColumnPort, ColumnUsername,
	ColumnPassword, ColumnDomain, ColumnURL, ColumnDescription,
}

// CSV reads records from a delimited file with a header row. The path
// column is a category string split on source.path_delimiter.
type CSV struct {
	// BaseDir anchors relative paths.
	BaseDir string
}

func (c *CSV) Enumerate(ctx context.Context, src config.Source) ([]Record, error) {
	if src.Path == "" {
		return nil, &SourceError{Source: "csv", Operation: "open", Err: fmt.Errorf("path is required")}
	}
	p := src.Path
	if !filepath.IsAbs(p) && c.BaseDir != "" {
		p = filepath.Join(c.BaseDir, p)
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, &SourceError{Source: "csv", Operation: "open", Err: err, Hint: "check that the path exists"}
	}
	defer f.Close()

	r, err := csvio.NewReader(f, src.Delimiter)
	if err != nil {
		return nil, &SourceError{Source: "csv", Operation: "read", Err: fmt.Errorf("%s: %w", src.Path, err)}
	}

	col := func(role string) string {
		if h, ok := src.Columns[role]; ok && h != "" {
			return h
		}
		return role
	}
	if err := r.Require(col(ColumnName)); err != nil {
		return nil, &SourceError{Source: "csv", Operation: "read", Err: fmt.Errorf("%s: %w", src.Path, err), Hint: "map it with source.columns.name"}
	}
	for role, h := range src.Columns {
		if err := r.Require(h); err != nil {
			return nil, &SourceError{Source: "csv", Operation: "read", Err: fmt.Errorf("%s: column for %s: %w", src.Path, role, err)}
		}
	}

	pathDelim := src.PathDelimiter
	if pathDelim == "" {
		pathDelim = pathkey.DefaultDelimiter
	}

	var records []Record
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &SourceError{Source: "csv", Operation: "read", Err: fmt.Errorf("%s: %w", src.Path, err)}
		}
		records = append(records, csvRecord(row, r.Header(), col, pathDelim))
	}
	return records, nil
}

func csvRecord(row csvio.Row, header []string, col func(string) string, pathDelim string) Record {
	name := row.Get(col(ColumnName))
	category := row.Get(col(ColumnPath))

	rec := Record{
		Name:       name,
		Hierarchy:  append(pathkey.ParseDelimited(category, pathDelim), name),
		Raw:        category,
		Host:       row.Get(col(ColumnHost)),
		Attributes: row.Map(header),
		Fields: entry.Fields{
			Host:        row.Get(col(ColumnHost)),
			Username:    row.Get(col(ColumnUsername)),
			Password:    row.Get(col(ColumnPassword)),
			Domain:      row.Get(col(ColumnDomain)),
			URL:         row.Get(col(ColumnURL)),
			Description: row.Get(col(ColumnDescription)),
		},
	}
	if name == "" {
		rec.Err = fmt.Errorf("line %d: empty %s", row.Line, col(ColumnName))
		return rec
	}
	if port := row.Get(col(ColumnPort)); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			rec.Err = fmt.Errorf("line %d: invalid port %q", row.Line, port)
			return rec
		}
		rec.Fields.Port = n
	}
	return rec
}
