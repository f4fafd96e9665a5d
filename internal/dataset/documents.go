package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var extraneousWhitespace = regexp.MustCompile(`\s+`)

// LoadDocuments reads every interview file in order. PDFs are reduced to
// their plain text; everything else is decoded as text.
func LoadDocuments(paths []string) ([]Document, error) {
	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		doc, err := LoadDocument(p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadDocument reads one interview file.
func LoadDocument(path string) (Document, error) {
	name := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err := pdfText(path)
		if err != nil {
			return Document{}, fmt.Errorf("read document %s: %w", name, err)
		}
		return Document{Name: name, Text: text}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read document %s: %w", name, err)
	}
	charset, err := DetectEncoding(data)
	if err != nil {
		return Document{}, fmt.Errorf("read document %s: %w", name, err)
	}
	text, err := DecodeText(data, charset)
	if err != nil {
		return Document{}, fmt.Errorf("read document %s: %w", name, err)
	}
	return Document{Name: name, Text: text}, nil
}

func pdfText(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	var builder strings.Builder
	if _, err := io.Copy(&builder, content); err != nil {
		return "", err
	}
	return strings.TrimSpace(extraneousWhitespace.ReplaceAllString(builder.String(), " ")), nil
}
