package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/MikeSquared-Agency/cohort/internal/persona"
)

// FileSink appends each accepted persona to a file as soon as it arrives and
// syncs it to disk, so an interrupted run keeps what it found. Appends from
// concurrent batches are serialised.
type FileSink struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	format Format
}

// OpenFileSink truncates path and returns a sink writing in format, which
// must be FormatJSON or FormatText.
func OpenFileSink(path string, format Format) (*FileSink, error) {
	if format != FormatJSON && format != FormatText {
		return nil, fmt.Errorf("stream format must be json or text, got %q", format)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open stream file: %w", err)
	}
	return &FileSink{f: f, path: path, format: format}, nil
}

func (s *FileSink) Append(ctx context.Context, runID string, p persona.Persona) error {
	var buf bytes.Buffer
	if s.format == FormatText {
		buf.WriteString(TextRecord(p))
	} else if err := encodeJSON(&buf, p); err != nil {
		return fmt.Errorf("encode persona: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("stream file is closed")
	}
	if _, err := s.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append persona: %w", err)
	}
	return s.f.Sync()
}

// Name returns the file path.
func (s *FileSink) Name() string {
	return s.path
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// ReadJSONStream decodes the concatenated objects a JSON FileSink wrote.
func ReadJSONStream(r io.Reader) ([]persona.Persona, error) {
	dec := json.NewDecoder(r)
	var ps []persona.Persona
	for {
		var p persona.Persona
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			return ps, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode stream: %w", err)
		}
		ps = append(ps, p)
	}
}
