// Package identity resolves owner names from the topic table to tracker
// roster members.
package identity

import (
	"strings"

	"feedbacktriage/internal/domain"
)

type Normalizer struct {
	variants  map[string]string
	overrides []Override
}

func NewNormalizer(t Tables) *Normalizer {
	n := &Normalizer{variants: make(map[string]string, len(t.NameVariants))}
	for raw, canonical := range t.NameVariants {
		n.variants[strings.TrimSpace(raw)] = strings.TrimSpace(canonical)
	}
	for _, o := range t.Overrides {
		n.overrides = append(n.overrides, Override{
			Keyword: strings.TrimSpace(o.Keyword),
			Owner:   strings.TrimSpace(o.Owner),
		})
	}
	return n
}

// NormalizeName returns the tracker spelling of name, or name itself when no
// variant is registered.
func (n *Normalizer) NormalizeName(name string) string {
	if canonical, ok := n.variants[name]; ok {
		return canonical
	}
	return name
}

// ResolveOverride returns the override whose keyword appears in title.
func (n *Normalizer) ResolveOverride(title string) (Override, bool) {
	lower := strings.ToLower(title)
	for _, o := range n.overrides {
		if o.Keyword == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(o.Keyword)) {
			return o, true
		}
	}
	return Override{}, false
}

func (n *Normalizer) Overrides() []Override {
	out := make([]Override, len(n.overrides))
	copy(out, n.overrides)
	return out
}

type Roster struct {
	members []domain.RosterMember
	byName  map[string]domain.RosterMember
}

// NewRoster indexes members by display name and by every registered variant
// that normalizes to that display name.
func (n *Normalizer) NewRoster(members []domain.RosterMember) *Roster {
	r := &Roster{
		members: append([]domain.RosterMember(nil), members...),
		byName:  make(map[string]domain.RosterMember, len(members)),
	}
	for _, m := range members {
		r.byName[lowerKey(m.Name)] = m
		for raw, canonical := range n.variants {
			if canonical == m.Name {
				r.byName[lowerKey(raw)] = m
			}
		}
	}
	return r
}

func (r *Roster) Len() int {
	return len(r.members)
}

func (r *Roster) lookup(name string) (domain.RosterMember, bool) {
	if r == nil {
		return domain.RosterMember{}, false
	}
	m, ok := r.byName[lowerKey(name)]
	return m, ok
}

// FindMember looks up owner by its raw spelling first, then by its
// normalized one.
func (n *Normalizer) FindMember(owner string, roster *Roster) (domain.RosterMember, bool) {
	if m, ok := roster.lookup(owner); ok {
		return m, true
	}
	return roster.lookup(n.NormalizeName(owner))
}

func lowerKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
