package persona

import (
	"os"
	"path/filepath"
	"strings"
)

// Store exposes persona retrieval.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the persona list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier, case-insensitively.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	key := NormalizeID(id)
	for _, item := range s.items {
		if NormalizeID(item.ID) == key {
			return item, true
		}
	}
	return Persona{}, false
}

// Upsert replaces the persona with the same ID or appends a new one.
func (s *MemoryStore) Upsert(p Persona) {
	key := NormalizeID(p.ID)
	for i := range s.items {
		if NormalizeID(s.items[i].ID) == key {
			s.items[i] = p
			return
		}
	}
	s.items = append(s.items, p)
}

// LoadDir overlays personas from <dir>/<name>.txt files. The file content becomes
// the persona prompt. A missing directory is not an error.
func (s *MemoryStore) LoadDir(dir string) (int, error) {
	if strings.TrimSpace(dir) == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".txt" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, err
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".txt")
		p, ok := s.FindByID(name)
		if !ok {
			p = Persona{ID: NormalizeID(name), Name: name}
		}
		p.Prompt = text
		s.Upsert(p)
		loaded++
	}
	return loaded, nil
}

// Resolve returns the prompt for the named persona, falling back to the default one.
func Resolve(store Store, name string) Persona {
	if p, ok := store.FindByID(name); ok {
		return p
	}
	if p, ok := store.FindByID(DefaultID); ok {
		return p
	}
	return Seed()[0]
}
