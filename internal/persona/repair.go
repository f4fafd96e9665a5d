package persona

import "strings"

// Repair fills blank fields with Unknown so every persisted persona has a
// value for each key. It reports whether anything changed.
func Repair(p *Persona) bool {
	changed := false
	fill := func(s *string) {
		if strings.TrimSpace(*s) == "" {
			*s = Unknown
			changed = true
		}
	}

	fill(&p.PersonaID)
	for _, f := range p.narrative() {
		fill(f.val)
	}
	if p.SuggestedLearningResources == nil {
		p.SuggestedLearningResources = []Resource{}
		changed = true
	}
	for i := range p.SuggestedLearningResources {
		for _, f := range p.SuggestedLearningResources[i].fields() {
			fill(f.val)
		}
	}
	return changed
}

// RepairAll repairs ps in place and returns how many personas were touched.
func RepairAll(ps []Persona) int {
	n := 0
	for i := range ps {
		if Repair(&ps[i]) {
			n++
		}
	}
	return n
}
