package dataset

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

// sampleSize is how many leading bytes are used to guess the charset.
const sampleSize = 10000

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// charsetAliases maps detector names that the WHATWG index spells differently.
var charsetAliases = map[string]string{
	"gb-18030":     "gb18030",
	"iso-8859-8-i": "iso-8859-8",
}

// DetectEncoding guesses the charset of data from its first bytes.
func DetectEncoding(data []byte) (string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		return "UTF-8", nil
	}
	sample := data
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}
	if len(sample) == 0 || utf8.Valid(trimPartialRune(sample)) {
		return "UTF-8", nil
	}

	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil {
		return "", fmt.Errorf("detect encoding: %w", err)
	}
	return res.Charset, nil
}

// DecodeText converts data from charset to UTF-8, dropping a UTF-8 BOM.
func DecodeText(data []byte, charset string) (string, error) {
	name := strings.ToLower(charset)
	if name == "utf-8" || name == "utf8" || name == "ascii" {
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", fmt.Errorf("decode %s: invalid utf-8", charset)
		}
		return string(data), nil
	}
	if alias, ok := charsetAliases[name]; ok {
		name = alias
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return "", fmt.Errorf("unsupported encoding %q: %w", charset, err)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", charset, err)
	}
	return string(bytes.TrimPrefix(out, utf8BOM)), nil
}

// trimPartialRune drops a multi-byte sequence cut off by the sample boundary.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			return b
		}
	}
	return b
}
