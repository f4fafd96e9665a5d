package persona

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// fencePattern matches the smallest ```json ... ``` span; the closing fence
// must start its own line.
var fencePattern = regexp.MustCompile("(?s)```json\\r?\\n(.*?)\\r?\\n```")

// FindBlocks returns the body of every fenced JSON block in content, in order.
func FindBlocks(content string) []string {
	matches := fencePattern.FindAllStringSubmatch(content, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, m[1])
	}
	return blocks
}

// BlockKind is the shape a parsed block turned out to have.
type BlockKind int

const (
	SingleRecord BlockKind = iota
	RecordList
	Unrecognized
)

func (k BlockKind) String() string {
	switch k {
	case SingleRecord:
		return "single"
	case RecordList:
		return "list"
	default:
		return "unrecognized"
	}
}

// Block is a parsed fenced block. Stray counts list items that were not objects.
type Block struct {
	Kind    BlockKind
	Records []map[string]json.RawMessage
	Stray   int
}

// ParseBlock decodes one block body. Only invalid JSON is an error; valid JSON
// of the wrong shape comes back as Unrecognized.
func ParseBlock(body string) (Block, error) {
	raw := bytes.TrimSpace([]byte(body))
	if !json.Valid(raw) {
		var v any
		err := json.Unmarshal(raw, &v)
		if err == nil {
			err = fmt.Errorf("invalid json")
		}
		return Block{}, err
	}

	switch raw[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Block{}, err
		}
		return Block{Kind: SingleRecord, Records: []map[string]json.RawMessage{obj}}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return Block{}, err
		}
		b := Block{Kind: RecordList}
		for _, it := range items {
			var obj map[string]json.RawMessage
			if isObject(it) && json.Unmarshal(it, &obj) == nil {
				b.Records = append(b.Records, obj)
			} else {
				b.Stray++
			}
		}
		return b, nil
	default:
		return Block{Kind: Unrecognized}, nil
	}
}

// Rejection records a persona the validity filter dropped.
type Rejection struct {
	PersonaID string
	Reason    string
}

// ScanResult is what one or more messages yielded.
type ScanResult struct {
	Accepted      []Persona
	Rejected      []Rejection
	ParseFailures int
	Unrecognized  int
	Coerced       int
	// ExtraKeys counts keys kept in Persona.Extra; DroppedKeys counts model
	// values under keys the pipeline owns (batch range, source agent).
	ExtraKeys   int
	DroppedKeys int
}

// Add folds o into r, keeping order.
func (r *ScanResult) Add(o ScanResult) {
	r.Accepted = append(r.Accepted, o.Accepted...)
	r.Rejected = append(r.Rejected, o.Rejected...)
	r.ParseFailures += o.ParseFailures
	r.Unrecognized += o.Unrecognized
	r.Coerced += o.Coerced
	r.ExtraKeys += o.ExtraKeys
	r.DroppedKeys += o.DroppedKeys
}

// Extractor turns agent message text into validated personas.
type Extractor struct {
	mode   Mode
	logger *slog.Logger
}

func NewExtractor(mode Mode, logger *slog.Logger) *Extractor {
	return &Extractor{mode: mode, logger: logger}
}

// Mode returns the validity mode the extractor applies.
func (e *Extractor) Mode() Mode { return e.mode }

// Scan extracts personas from one message. It depends only on content and
// the validity mode; failures are counted and logged, never returned.
func (e *Extractor) Scan(content string) ScanResult {
	var res ScanResult
	for i, body := range FindBlocks(content) {
		block, err := ParseBlock(body)
		if err != nil {
			res.ParseFailures++
			e.logger.Warn("persona block is not valid JSON",
				"block", i,
				"block_len", len(body),
				"error", err,
			)
			continue
		}

		if block.Kind == Unrecognized {
			res.Unrecognized++
			e.logger.Warn("persona block is neither an object nor a list", "block", i)
			continue
		}
		if block.Stray > 0 {
			res.Unrecognized += block.Stray
			e.logger.Warn("persona list contains non-object items", "block", i, "items", block.Stray)
		}

		for _, obj := range block.Records {
			p, rep := normalize(obj)
			if rep.coerced {
				res.Coerced++
			}
			if len(p.Extra) > 0 {
				res.ExtraKeys += len(p.Extra)
				e.logger.Debug("persona carries extra keys", "persona_id", p.PersonaID, "keys", len(p.Extra))
			}
			if len(rep.dropped) > 0 {
				res.DroppedKeys += len(rep.dropped)
				e.logger.Warn("persona sets pipeline-owned keys, values dropped", "persona_id", p.PersonaID, "keys", rep.dropped)
			}
			if reason, ok := e.mode.check(p, rep.missing); !ok {
				res.Rejected = append(res.Rejected, Rejection{PersonaID: p.PersonaID, Reason: reason})
				e.logger.Debug("persona rejected", "persona_id", p.PersonaID, "reason", reason)
				continue
			}
			res.Accepted = append(res.Accepted, p)
		}
	}
	return res
}

type normalizeReport struct {
	missing []string
	dropped []string
	coerced bool
}

// normalize maps a raw object onto the persona schema. Absent keys become
// empty values; non-string values are rendered as text. Keys outside the
// schema are kept in Extra.
func normalize(obj map[string]json.RawMessage) (Persona, normalizeReport) {
	var p Persona
	var rep normalizeReport

	get := func(key string) (json.RawMessage, bool) {
		raw, ok := obj[key]
		if !ok {
			rep.missing = append(rep.missing, key)
		}
		return raw, ok
	}

	if raw, ok := get(KeyPersonaID); ok {
		p.PersonaID, _ = renderText(raw)
	}
	for _, f := range p.narrative() {
		if raw, ok := get(f.key); ok {
			var c bool
			*f.val, c = renderText(raw)
			rep.coerced = rep.coerced || c
		}
	}
	if raw, ok := get(KeySuggestedLearningResources); ok {
		var c bool
		p.SuggestedLearningResources, c = renderResources(raw)
		rep.coerced = rep.coerced || c
	}
	if p.SuggestedLearningResources == nil {
		p.SuggestedLearningResources = []Resource{}
	}

	for key, raw := range obj {
		switch {
		case key == keyBatchStart || key == keyBatchEnd || key == keySourceAgent:
			rep.dropped = append(rep.dropped, key)
		case !ownKey(key):
			if p.Extra == nil {
				p.Extra = make(map[string]json.RawMessage)
			}
			p.Extra[key] = json.RawMessage(compactJSON(raw))
		}
	}
	sort.Strings(rep.dropped)
	return p, rep
}

// renderText returns raw as plain text. coerced is true when raw was not a
// string or null: arrays of scalars are joined with "; ", anything else is
// kept as compact JSON.
func renderText(raw json.RawMessage) (string, bool) {
	if s, ok := scalarText(raw); ok {
		return s, len(raw) > 0 && raw[0] != '"' && !isNull(raw)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if json.Unmarshal(trimmed, &items) == nil {
			parts := make([]string, 0, len(items))
			for _, it := range items {
				s, ok := scalarText(it)
				if !ok {
					parts = nil
					break
				}
				parts = append(parts, s)
			}
			if parts != nil || len(items) == 0 {
				return strings.Join(parts, "; "), true
			}
		}
	}
	return compactJSON(trimmed), true
}

func renderResources(raw json.RawMessage) ([]Resource, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || isNull(trimmed) {
		return []Resource{}, false
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return []Resource{}, true
		}
		out := make([]Resource, 0, len(items))
		coerced := false
		for _, it := range items {
			r, c := renderResource(it)
			out = append(out, r)
			coerced = coerced || c
		}
		return out, coerced
	default:
		r, _ := renderResource(trimmed)
		return []Resource{r}, true
	}
}

func renderResource(raw json.RawMessage) (Resource, bool) {
	var r Resource
	if !isObject(raw) {
		s, _ := renderText(raw)
		r.FeatureName = s
		return r, true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		r.Description = compactJSON(raw)
		return r, true
	}
	coerced := false
	for _, f := range r.fields() {
		if v, ok := obj[f.key]; ok {
			var c bool
			*f.val, c = renderText(v)
			coerced = coerced || c
		}
	}
	return r, coerced
}

// scalarText renders strings, numbers, booleans and null.
func scalarText(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || isNull(trimmed) {
		return "", true
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false
		}
		return s, true
	case '{', '[':
		return "", false
	default:
		return string(trimmed), true
	}
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func compactJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
