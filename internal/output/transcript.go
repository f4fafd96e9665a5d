package output

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var transcriptHeader = []string{"batch_start", "batch_end", "source", "content", "type", "prompt_tokens", "completion_tokens"}

// WriteTranscript writes one CSV row per entry. The file starts with a UTF-8
// byte order mark so spreadsheet tools pick the right encoding.
func WriteTranscript(path string, entries []pipeline.TranscriptEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create transcript: %w", err)
	}
	if err := EncodeTranscript(f, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeTranscript writes the CSV form of entries to w.
func EncodeTranscript(w io.Writer, entries []pipeline.TranscriptEntry) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(utf8BOM); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	cw := csv.NewWriter(bw)
	if err := cw.Write(transcriptHeader); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	for _, e := range entries {
		row := []string{
			strconv.Itoa(e.BatchStart),
			strconv.Itoa(e.BatchEnd),
			e.Source,
			e.Content,
			e.Type,
			optionalInt(e.PromptTokens),
			optionalInt(e.CompletionTokens),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write transcript: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return bw.Flush()
}

// ReadTranscript parses a file written by WriteTranscript.
func ReadTranscript(r io.Reader) ([]pipeline.TranscriptEntry, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && string(head) == string(utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = len(transcriptHeader)
	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("read transcript header: %w", err)
	}

	var entries []pipeline.TranscriptEntry
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read transcript: %w", err)
		}
		e := pipeline.TranscriptEntry{Source: row[2], Content: row[3], Type: row[4]}
		if e.BatchStart, err = strconv.Atoi(row[0]); err != nil {
			return nil, fmt.Errorf("batch_start: %w", err)
		}
		if e.BatchEnd, err = strconv.Atoi(row[1]); err != nil {
			return nil, fmt.Errorf("batch_end: %w", err)
		}
		if e.PromptTokens, err = parseOptionalInt(row[5]); err != nil {
			return nil, fmt.Errorf("prompt_tokens: %w", err)
		}
		if e.CompletionTokens, err = parseOptionalInt(row[6]); err != nil {
			return nil, fmt.Errorf("completion_tokens: %w", err)
		}
		entries = append(entries, e)
	}
}

func optionalInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func parseOptionalInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
