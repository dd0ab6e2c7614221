package ident

import (
	"fmt"
	"regexp"

	"github.com/nucleus/tcga-import/pkg/table"
)

// TargetMap maps experimental identifiers (hybridization names, file names,
// extract names) to raw sample identifiers, in the order keys were first seen.
type TargetMap struct {
	values map[string]string
	order  []string
}

// NewTargetMap returns an empty map.
func NewTargetMap() *TargetMap {
	return &TargetMap{values: map[string]string{}}
}

// Set records raw for key. Later writes for the same key win.
func (m *TargetMap) Set(key, raw string) {
	if _, ok := m.values[key]; !ok {
		m.order = append(m.order, key)
	}
	m.values[key] = raw
}

// Get returns the raw identifier for key.
func (m *TargetMap) Get(key string) (string, bool) {
	raw, ok := m.values[key]
	return raw, ok
}

// Len is the number of distinct keys.
func (m *TargetMap) Len() int { return len(m.order) }

// Keys returns keys in first-seen order.
func (m *TargetMap) Keys() []string { return append([]string(nil), m.order...) }

// Resolve maps key through the target map and then through tr.
// found is false when key is unknown; ok is false when tr excluded the sample.
func (m *TargetMap) Resolve(key string, tr Translator) (id string, found bool, ok bool) {
	raw, found := m.values[key]
	if !found {
		return "", false, false
	}
	id, ok = tr.Translate(raw)
	return id, true, ok
}

// LoadTargetMap builds a TargetMap from a sorted targets table. When cleanup is
// non-nil its matches are removed from every raw value.
func LoadTargetMap(path string, cleanup *regexp.Regexp) (*TargetMap, error) {
	m := NewTargetMap()
	err := table.ForEach(path, func(rec table.Record) error {
		raw := rec.String()
		if cleanup != nil {
			raw = cleanup.ReplaceAllString(raw, "")
		}
		m.Set(rec.Key, raw)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load target map: %w", err)
	}
	return m, nil
}

// Columns is a stable assignment of canonical identifiers to dense column indices.
type Columns struct {
	index map[string]int
	names []string
}

// Enumerate assigns a column to every distinct translated value of m, in key
// order, skipping identifiers the translator excludes.
func Enumerate(m *TargetMap, tr Translator) *Columns {
	c := &Columns{index: map[string]int{}}
	for _, key := range m.order {
		id, ok := tr.Translate(m.values[key])
		if !ok {
			continue
		}
		c.Add(id)
	}
	return c
}

// Add returns the column of id, assigning the next index when id is new.
func (c *Columns) Add(id string) int {
	if idx, ok := c.index[id]; ok {
		return idx
	}
	idx := len(c.names)
	c.index[id] = idx
	c.names = append(c.names, id)
	return idx
}

// Index returns the column of id.
func (c *Columns) Index(id string) (int, bool) {
	idx, ok := c.index[id]
	return idx, ok
}

// Names returns column names in index order.
func (c *Columns) Names() []string { return append([]string(nil), c.names...) }

// Len is the number of columns.
func (c *Columns) Len() int { return len(c.names) }
