package persona

import (
	"fmt"
	"strings"
)

// Mode selects how strictly extracted records are filtered.
type Mode int

const (
	// Strict drops records that still carry the prompt's placeholder text or
	// that lack a required field.
	Strict Mode = iota
	// Lenient keeps every object and back-fills missing fields with empty values.
	Lenient
)

func (m Mode) String() string {
	if m == Lenient {
		return "lenient"
	}
	return "strict"
}

// ParseMode maps "strict" or "lenient" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	default:
		return Strict, fmt.Errorf("unknown validity mode %q", s)
	}
}

// check reports whether p passes the mode's filter and, if not, why.
// missing lists the schema keys absent from the source object.
func (m Mode) check(p Persona, missing []string) (string, bool) {
	if m == Lenient {
		return "", true
	}
	for _, key := range missing {
		if key != KeyPersonaID {
			return "missing " + key, false
		}
	}
	for _, f := range p.narrative() {
		if isPlaceholder(*f.val) {
			return "placeholder " + f.key, false
		}
	}
	for i := range p.SuggestedLearningResources {
		r := &p.SuggestedLearningResources[i]
		for _, f := range r.fields() {
			if isPlaceholder(*f.val) {
				return fmt.Sprintf("placeholder %s[%d].%s", KeySuggestedLearningResources, i, f.key), false
			}
		}
	}
	return "", true
}

func isPlaceholder(s string) bool {
	return strings.TrimSpace(s) == Placeholder
}
