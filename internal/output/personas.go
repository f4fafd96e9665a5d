package output

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/cohort/internal/persona"
)

// Format selects how personas are written.
type Format string

const (
	FormatJSON Format = "json"
	FormatZIP  Format = "zip"
	FormatText Format = "text"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatZIP, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unknown persona format %q", s)
	}
}

// Ext is the file extension for the format.
func (f Format) Ext() string {
	if f == FormatText {
		return ".txt"
	}
	return "." + string(f)
}

const textRule = "--------------------------------------------------"

type personaBundle struct {
	Personas []persona.Persona `json:"personas"`
}

// EncodePersonas writes ps to w in format f.
func EncodePersonas(w io.Writer, f Format, ps []persona.Persona) error {
	switch f {
	case FormatJSON:
		if ps == nil {
			ps = []persona.Persona{}
		}
		return encodeJSON(w, personaBundle{Personas: ps})
	case FormatZIP:
		return encodeZIP(w, ps)
	case FormatText:
		for _, p := range ps {
			if _, err := io.WriteString(w, TextRecord(p)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown persona format %q", f)
	}
}

// encodeJSON writes v indented with four spaces, leaving non-ASCII text and
// HTML characters as they are.
func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}

func encodeZIP(w io.Writer, ps []persona.Persona) error {
	zw := zip.NewWriter(w)
	names := bundleNames(ps)
	for i, p := range ps {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: names[i], Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("zip %s: %w", names[i], err)
		}
		if err := encodeJSON(fw, p); err != nil {
			return fmt.Errorf("zip %s: %w", names[i], err)
		}
	}
	return zw.Close()
}

// bundleNames gives every persona a distinct PERSONA-{id}.json entry name.
// Ids repeat across batches, so later duplicates get a -2, -3 suffix.
func bundleNames(ps []persona.Persona) []string {
	names := make([]string, len(ps))
	used := make(map[string]bool, len(ps))
	for i, p := range ps {
		id := sanitizeID(p.PersonaID)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		name := "PERSONA-" + id + ".json"
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("PERSONA-%s-%d.json", id, n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == persona.Unknown {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, id)
}

// TextRecord renders p as labelled lines followed by a dashed rule.
func TextRecord(p persona.Persona) string {
	resources, _ := json.Marshal(p.SuggestedLearningResources)
	var b strings.Builder
	fmt.Fprintf(&b, "persona_id: %s\n", p.PersonaID)
	fmt.Fprintf(&b, "description: %s\n", p.Description)
	fmt.Fprintf(&b, "motivation: %s\n", p.Motivation)
	fmt.Fprintf(&b, "challenges: %s\n", p.Challenges)
	fmt.Fprintf(&b, "learning_goals: %s\n", p.LearningGoals)
	fmt.Fprintf(&b, "preferred_learning_methods: %s\n", p.PreferredLearningMethods)
	fmt.Fprintf(&b, "suggested_learning_resources: %s\n", resources)
	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, extraText(p.Extra[k]))
	}
	b.WriteString("\n" + textRule + "\n")
	return b.String()
}

// extraText shows a JSON string without quotes and anything else as JSON.
func extraText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// DecodePersonasJSON reads either a {"personas": [...]} bundle or a bare array.
func DecodePersonasJSON(data []byte) ([]persona.Persona, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var ps []persona.Persona
		if err := json.Unmarshal(trimmed, &ps); err != nil {
			return nil, fmt.Errorf("decode personas: %w", err)
		}
		return ps, nil
	}
	var bundle personaBundle
	if err := json.Unmarshal(trimmed, &bundle); err != nil {
		return nil, fmt.Errorf("decode personas: %w", err)
	}
	return bundle.Personas, nil
}

// DecodePersonasZIP reads every .json entry of an archive in entry order.
func DecodePersonasZIP(data []byte) ([]persona.Persona, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	var ps []persona.Persona
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".json") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		var p persona.Persona
		err = json.NewDecoder(rc).Decode(&p)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Name, err)
		}
		ps = append(ps, p)
	}
	return ps, nil
}

// DecodePersona reads a single persona object, as written into an archive or
// by the JSON stream sink.
func DecodePersona(data []byte) (persona.Persona, error) {
	var p persona.Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return persona.Persona{}, fmt.Errorf("decode persona: %w", err)
	}
	return p, nil
}
