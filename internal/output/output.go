// Package output writes run results to disk: the conversation transcript as
// CSV and the personas as a JSON bundle, a ZIP of per-persona files, or a
// text dump. Personas read back only from the JSON and ZIP forms.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MikeSquared-Agency/cohort/internal/persona"
	"github.com/MikeSquared-Agency/cohort/internal/pipeline"
)

// File names used inside the output directory.
const (
	TranscriptFile = "all_conve_log.csv"
	PersonasBase   = "personas"
)

// Files are the paths Persist wrote.
type Files struct {
	Transcript string `json:"transcript"`
	Personas   string `json:"personas"`
}

// Persist writes the transcript and personas into dir.
func Persist(dir string, f Format, entries []pipeline.TranscriptEntry, ps []persona.Persona) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("mkdir: %w", err)
	}

	files := Files{
		Transcript: filepath.Join(dir, TranscriptFile),
		Personas:   filepath.Join(dir, PersonasBase+f.Ext()),
	}
	if err := WriteTranscript(files.Transcript, entries); err != nil {
		return Files{}, err
	}

	out, err := os.Create(files.Personas)
	if err != nil {
		return Files{}, fmt.Errorf("create personas: %w", err)
	}
	if err := EncodePersonas(out, f, ps); err != nil {
		out.Close()
		return Files{}, fmt.Errorf("write personas: %w", err)
	}
	if err := out.Close(); err != nil {
		return Files{}, fmt.Errorf("write personas: %w", err)
	}
	return files, nil
}

// ErrWriteOnly is returned when reading personas back from a text dump. Only
// the JSON and ZIP formats round-trip.
var ErrWriteOnly = errors.New("text dump is write-only")

// ReadPersonas loads personas back from a file Persist wrote in JSON or ZIP form.
func ReadPersonas(path string) ([]persona.Persona, error) {
	if strings.EqualFold(filepath.Ext(path), FormatText.Ext()) {
		return nil, fmt.Errorf("read personas %s: %w", path, ErrWriteOnly)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas: %w", err)
	}
	if filepath.Ext(path) == FormatZIP.Ext() {
		return DecodePersonasZIP(data)
	}
	return DecodePersonasJSON(data)
}
