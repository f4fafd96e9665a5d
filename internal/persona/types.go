// Package persona holds the persona schema and the protocol that pulls
// persona records out of free-text agent replies.
package persona

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Required keys every persona carries after validation.
const (
	KeyPersonaID                  = "persona_id"
	KeyDescription                = "description"
	KeyMotivation                 = "motivation"
	KeyChallenges                 = "challenges"
	KeyLearningGoals              = "learning_goals"
	KeyPreferredLearningMethods   = "preferred_learning_methods"
	KeySuggestedLearningResources = "suggested_learning_resources"
)

// Placeholder is the literal the prompt's example uses for every value.
const Placeholder = "..."

// Unknown replaces blank values when a persona is repaired for persistence.
const Unknown = "unknown"

// Persona is one synthesized audience segment.
//
// PersonaID is the sequence number the model assigned inside one batch. It is
// not unique across batches; BatchStart/BatchEnd tell same-id personas apart.
type Persona struct {
	PersonaID                  string     `json:"persona_id"`
	Description                string     `json:"description"`
	Motivation                 string     `json:"motivation"`
	Challenges                 string     `json:"challenges"`
	LearningGoals              string     `json:"learning_goals"`
	PreferredLearningMethods   string     `json:"preferred_learning_methods"`
	SuggestedLearningResources []Resource `json:"suggested_learning_resources"`

	BatchStart  int    `json:"batch_start"`
	BatchEnd    int    `json:"batch_end"`
	SourceAgent string `json:"source_agent,omitempty"`

	// Extra holds keys the model added beyond the schema, verbatim. They are
	// written back as top-level keys next to the schema fields.
	Extra map[string]json.RawMessage `json:"-"`
}

// Keys the pipeline sets itself. A model value under one of these is dropped.
const (
	keyBatchStart  = "batch_start"
	keyBatchEnd    = "batch_end"
	keySourceAgent = "source_agent"
)

// ownKey reports whether key is one of the fields Persona encodes itself.
func ownKey(key string) bool {
	switch key {
	case KeyPersonaID, KeyDescription, KeyMotivation, KeyChallenges, KeyLearningGoals,
		KeyPreferredLearningMethods, KeySuggestedLearningResources,
		keyBatchStart, keyBatchEnd, keySourceAgent:
		return true
	}
	return false
}

type personaFields Persona

func (p Persona) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(personaFields(p)); err != nil {
		return nil, err
	}
	out := bytes.TrimSpace(buf.Bytes())
	if len(p.Extra) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		if !ownKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	merged := append([]byte(nil), out[:len(out)-1]...)
	for _, k := range keys {
		buf.Reset()
		if err := enc.Encode(k); err != nil {
			return nil, err
		}
		merged = append(merged, ',')
		merged = append(merged, bytes.TrimSpace(buf.Bytes())...)
		merged = append(merged, ':')
		merged = append(merged, p.Extra[k]...)
	}
	return append(merged, '}'), nil
}

func (p *Persona) UnmarshalJSON(data []byte) error {
	var f personaFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, v := range all {
		if ownKey(k) {
			continue
		}
		if f.Extra == nil {
			f.Extra = make(map[string]json.RawMessage)
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return err
		}
		f.Extra[k] = buf.Bytes()
	}
	*p = Persona(f)
	return nil
}

// Resource is a recommended learning resource for a persona.
type Resource struct {
	FeatureName   string `json:"feature_name"`
	Description   string `json:"description"`
	Justification string `json:"justification"`
}

// narrative returns pointers to the free-text fields, keyed by JSON name.
func (p *Persona) narrative() []field {
	return []field{
		{KeyDescription, &p.Description},
		{KeyMotivation, &p.Motivation},
		{KeyChallenges, &p.Challenges},
		{KeyLearningGoals, &p.LearningGoals},
		{KeyPreferredLearningMethods, &p.PreferredLearningMethods},
	}
}

func (r *Resource) fields() []field {
	return []field{
		{"feature_name", &r.FeatureName},
		{"description", &r.Description},
		{"justification", &r.Justification},
	}
}

type field struct {
	key string
	val *string
}
