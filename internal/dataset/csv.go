package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadCSV reads a delimited survey file of unknown encoding.
func LoadCSV(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return ParseCSV(data)
}

// ParseCSV detects the charset of data, transcodes it to UTF-8 and parses it
// with the first row as header. Duplicate header names get ".1", ".2"
// suffixes. Short rows are padded with empty cells; long rows are an error.
func ParseCSV(data []byte) (*Dataset, error) {
	charset, err := DetectEncoding(data)
	if err != nil {
		return nil, err
	}
	text, err := DecodeText(data, charset)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	columns := uniqueColumns(header)

	ds := &Dataset{Columns: columns, Encoding: charset}
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse row %d: %w", line, err)
		}
		if len(row) == 1 && row[0] == "" {
			continue
		}
		if len(row) > len(columns) {
			return nil, fmt.Errorf("parse row %d: %d fields, header has %d", line, len(row), len(columns))
		}
		rec := make(Record, len(columns))
		for i, col := range columns {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

func uniqueColumns(header []string) []string {
	cols := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		cols[i] = name
	}
	return cols
}
