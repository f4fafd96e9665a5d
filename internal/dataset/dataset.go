// Package dataset loads survey tables and interview documents and cuts the
// survey into fixed-size batches.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrEmptyDataset is returned when a table has no header row.
var ErrEmptyDataset = errors.New("dataset has no header row")

// Record is one survey row keyed by column name. Cells are kept as text.
type Record map[string]string

// Dataset is a parsed survey table.
type Dataset struct {
	Columns  []string
	Records  []Record
	Encoding string
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Document is the full text of one interview file.
type Document struct {
	Name string
	Text string
}

// Chunk is a contiguous slice of the dataset processed as one conversation.
type Chunk struct {
	Columns    []string
	Records    []Record
	StartIndex int
	Total      int

	// Document names the interview file a document-only chunk stands for.
	Document string
}

// Size returns how many dataset positions the chunk covers.
func (c Chunk) Size() int {
	if c.Document != "" {
		return 1
	}
	return len(c.Records)
}

// EndIndex is the inclusive index of the last record in the chunk.
func (c Chunk) EndIndex() int {
	return c.StartIndex + c.Size() - 1
}

// RecordsJSON renders the chunk's records as a JSON array of objects whose
// keys follow column order.
func (c Chunk) RecordsJSON() string {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, rec := range c.Records {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteByte('{')
		for j, col := range c.Columns {
			if j > 0 {
				buf.WriteString(", ")
			}
			writeJSONString(&buf, col)
			buf.WriteString(": ")
			writeJSONString(&buf, rec[col])
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.String()
}

func writeJSONString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
}
