package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DecodeError reports an input file that could not be turned into a Dataset.
type DecodeError struct {
	Filename string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Filename, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode turns raw file bytes into a Dataset, dispatching on the filename
// extension. Supported: .csv, .tsv, .xlsx. Header order is preserved and
// cells are kept as raw strings.
func Decode(data []byte, filename string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return decodeDelimited(data, filename, ',')
	case ".tsv":
		return decodeDelimited(data, filename, '\t')
	case ".xlsx":
		return decodeXLSX(data, filename)
	default:
		return nil, &DecodeError{Filename: filename, Err: errors.New("unsupported format")}
	}
}

func decodeDelimited(data []byte, filename string, delim rune) (*Dataset, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Dataset{Name: baseName(filename)}, nil
		}
		return nil, &DecodeError{Filename: filename, Err: fmt.Errorf("read header: %w", err)}
	}
	fields := make([]string, len(header))
	for i, h := range header {
		fields[i] = strings.TrimSpace(h)
	}

	ds := &Dataset{Name: baseName(filename), Fields: fields}
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &DecodeError{Filename: filename, Err: fmt.Errorf("read row %d: %w", len(ds.Rows)+1, err)}
		}
		ds.Rows = append(ds.Rows, recordToRow(fields, rec))
	}
	return ds, nil
}

func decodeXLSX(data []byte, filename string) (*Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Filename: filename, Err: fmt.Errorf("open workbook: %w", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Dataset{Name: baseName(filename)}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &DecodeError{Filename: filename, Err: fmt.Errorf("read sheet %s: %w", sheets[0], err)}
	}
	if len(rows) == 0 {
		return &Dataset{Name: baseName(filename)}, nil
	}

	fields := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		fields[i] = strings.TrimSpace(h)
	}
	ds := &Dataset{Name: baseName(filename), Fields: fields}
	for _, rec := range rows[1:] {
		ds.Rows = append(ds.Rows, recordToRow(fields, rec))
	}
	return ds, nil
}

func recordToRow(fields []string, rec []string) Row {
	row := make(Row, len(fields))
	for i, name := range fields {
		if i < len(rec) {
			row[name] = strings.TrimSpace(rec[i])
		} else {
			row[name] = ""
		}
	}
	return row
}

func baseName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
