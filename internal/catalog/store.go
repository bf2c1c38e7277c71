package catalog

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Store serves catalog lookups. Reads are cache-backed and safe for
// concurrent use; Reload atomically swaps in a freshly parsed catalog.
type Store struct {
	mu         sync.RWMutex
	sections   map[string][]*Item
	categories []Category
	cache      map[string]*Item
	path       string // source file; empty when built from bytes
	out        io.Writer
}

func newStore(doc *document, out io.Writer) *Store {
	if out == nil {
		out = os.Stdout
	}
	s := &Store{
		sections:   make(map[string][]*Item, 4),
		categories: doc.Categories,
		cache:      make(map[string]*Item),
		out:        out,
	}
	for section, items := range map[string][]Item{
		SectionMaterials: doc.Materials,
		SectionTemplates: doc.Templates,
		SectionWorks:     doc.Works,
		SectionOther:     doc.Other,
	} {
		ptrs := make([]*Item, len(items))
		for i := range items {
			item := items[i]
			ptrs[i] = &item
		}
		s.sections[section] = ptrs
	}
	return s
}

// Item looks up an item by exact name, optionally scoped to one section.
// With an empty section all item sections are scanned in the documented
// order (materials, templates, works, other) and the first match wins.
// The result is cached per (section, name); repeated lookups return the
// identical object. Absent items return (nil, false), never an error.
func (s *Store) Item(name, section string) (*Item, bool) {
	cacheKey := section + "\x00" + name

	s.mu.RLock()
	if item, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return item, true
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check: another goroutine may have filled the entry meanwhile.
	if item, ok := s.cache[cacheKey]; ok {
		return item, true
	}

	scan := sectionOrder
	if section != "" {
		scan = []string{section}
	}
	for _, sec := range scan {
		for _, item := range s.sections[sec] {
			if item.Name == name {
				s.cache[cacheKey] = item
				return item, true
			}
		}
	}
	return nil, false
}

// Items returns the ordered item sequence of one section. Unknown sections
// return nil.
func (s *Store) Items(section string) []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sections[section]
}

// AllItems returns the concatenation of every item section in scan order.
func (s *Store) AllItems() []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*Item
	for _, sec := range sectionOrder {
		all = append(all, s.sections[sec]...)
	}
	return all
}

// Categories returns all declared categories in catalog order.
func (s *Store) Categories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categories
}

// CategoryKey maps a category display name to its section key.
func (s *Store) CategoryKey(displayName string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.Name == displayName {
			return c.Key, true
		}
	}
	return "", false
}

// CategoriesByPhase returns the categories of one selection phase, in
// catalog order.
func (s *Store) CategoriesByPhase(phase Phase) []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Category
	for _, c := range s.categories {
		if c.Phase == phase {
			out = append(out, c)
		}
	}
	return out
}

// Phase returns the phase of a category display name. Categories with an
// undeclared phase count as material so they are never unreachable.
func (s *Store) Phase(displayName string) Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.Name == displayName {
			if c.Phase == PhaseNonMaterial {
				return PhaseNonMaterial
			}
			return PhaseMaterial
		}
	}
	return PhaseMaterial
}

// SectionCounts reports the number of items per section, for the status
// dashboard.
func (s *Store) SectionCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.sections))
	for sec, items := range s.sections {
		counts[sec] = len(items)
	}
	return counts
}

// ClearCache drops the lookup cache. Invoked at the start of a new session
// so a hot-reloaded catalog cannot serve stale objects.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Item)
}

// Reload re-reads the catalog from its source file and swaps the new
// content in atomically. Stores built from raw bytes cannot reload.
func (s *Store) Reload() error {
	s.mu.RLock()
	path := s.path
	out := s.out
	s.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("catalog: reload: store has no source file")
	}
	fresh, err := LoadWithOutput(path, out)
	if err != nil {
		return fmt.Errorf("catalog: reload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections = fresh.sections
	s.categories = fresh.categories
	s.cache = make(map[string]*Item)
	return nil
}
