package persona

import "strings"

// Store exposes persona retrieval to handlers and the prompt builder.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore keeps personas in registration order, keyed by normalized id.
type MemoryStore struct {
	order []string
	byID  map[string]Persona
}

// NewMemoryStore returns a MemoryStore preloaded with items. Later entries
// with a duplicate id replace earlier ones.
func NewMemoryStore(items []Persona) *MemoryStore {
	s := &MemoryStore{byID: make(map[string]Persona, len(items))}
	for _, item := range items {
		key := normalizeID(item.ID)
		if key == "" {
			continue
		}
		if _, exists := s.byID[key]; !exists {
			s.order = append(s.order, key)
		}
		s.byID[key] = item
	}
	return s
}

// List returns personas in registration order.
func (s *MemoryStore) List() []Persona {
	out := make([]Persona, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byID[key])
	}
	return out
}

// FindByID looks up a persona; ids are case-insensitive.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	p, ok := s.byID[normalizeID(id)]
	return p, ok
}

// Lookup returns the persona for id, falling back to DefaultID and then to
// the first registered persona.
func Lookup(store Store, id string) (Persona, bool) {
	if p, ok := store.FindByID(id); ok {
		return p, true
	}
	if p, ok := store.FindByID(DefaultID); ok {
		return p, true
	}
	all := store.List()
	if len(all) == 0 {
		return Persona{}, false
	}
	return all[0], true
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
