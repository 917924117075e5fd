package datasets

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownClass is returned when a class name has no entry in the mapping.
var ErrUnknownClass = errors.New("class name not in mapping")

// ClassMapping maps lower-cased class names to small non-negative ids.
// A nil mapping means class names in the annotations table are themselves
// integer ids.
type ClassMapping struct {
	ids   map[string]int
	names []string
}

// NewClassMapping builds a mapping from an ordered list of class names, id i
// being names[i]. Lookups are case-insensitive.
func NewClassMapping(names []string) *ClassMapping {
	m := &ClassMapping{
		ids:   make(map[string]int, len(names)),
		names: make([]string, len(names)),
	}
	for i, name := range names {
		m.ids[strings.ToLower(strings.TrimSpace(name))] = i
		m.names[i] = name
	}
	return m
}

// Len returns the number of classes.
func (m *ClassMapping) Len() int { return len(m.names) }

// Lookup resolves a class name to its id, ignoring case.
func (m *ClassMapping) Lookup(name string) (int, error) {
	id, ok := m.ids[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownClass, "%q", name)
	}
	return id, nil
}

// Name returns the class name for an id, or the empty string if the id is out
// of range.
func (m *ClassMapping) Name(id int) string {
	if id < 0 || id >= len(m.names) {
		return ""
	}
	return m.names[id]
}

// Names returns the class names indexed by id.
func (m *ClassMapping) Names() []string { return m.names }
