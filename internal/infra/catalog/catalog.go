// Package catalog provides the fixed table of task kinds with their
// display labels and nominal service durations.
// This is the single source of truth for durations: the concurrent
// scheduler sizes its timers from it and the delay service sizes its
// simulated latency from it.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/tutu-network/shapeq/internal/domain"
)

// Entry describes one task kind.
type Entry struct {
	Kind            domain.TaskKind `json:"kind" yaml:"kind"`
	Label           string          `json:"label" yaml:"label"`
	ServiceDuration time.Duration   `json:"service_duration" yaml:"service_duration"`
}

// Builtin is the default catalog. Order is the display order.
var Builtin = []Entry{
	{Kind: domain.KindRectangle, Label: "Rectangle", ServiceDuration: 4 * time.Second},
	{Kind: domain.KindCircle, Label: "Circle", ServiceDuration: 1 * time.Second},
	{Kind: domain.KindTriangle, Label: "Triangle", ServiceDuration: 3 * time.Second},
	{Kind: domain.KindLine, Label: "Line", ServiceDuration: 2 * time.Second},
}

// Catalog is a validated, read-only kind table.
type Catalog struct {
	entries []Entry
	byKind  map[domain.TaskKind]Entry
}

// New validates entries and freezes them into a Catalog.
func New(entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", domain.ErrInvalidCatalog)
	}

	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		byKind:  make(map[domain.TaskKind]Entry, len(entries)),
	}
	for _, e := range entries {
		e.Kind = domain.TaskKind(strings.TrimSpace(string(e.Kind)))
		switch {
		case e.Kind == "":
			return nil, fmt.Errorf("%w: empty kind", domain.ErrInvalidCatalog)
		case strings.ContainsAny(string(e.Kind), "/ "):
			return nil, fmt.Errorf("%w: kind %q is not a path segment", domain.ErrInvalidCatalog, e.Kind)
		case e.Label == "":
			return nil, fmt.Errorf("%w: kind %q has no label", domain.ErrInvalidCatalog, e.Kind)
		case e.ServiceDuration <= 0:
			return nil, fmt.Errorf("%w: kind %q has non-positive duration", domain.ErrInvalidCatalog, e.Kind)
		}
		if _, dup := c.byKind[e.Kind]; dup {
			return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateKind, e.Kind)
		}
		c.byKind[e.Kind] = e
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(Builtin)
	if err != nil {
		panic("catalog: builtin table invalid: " + err.Error())
	}
	return c
}

// Lookup finds the entry for kind.
func (c *Catalog) Lookup(kind domain.TaskKind) (Entry, error) {
	e, ok := c.byKind[kind]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	return e, nil
}

// ParseKind converts user input ("Circle", " line ") to a known kind.
func (c *Catalog) ParseKind(s string) (domain.TaskKind, error) {
	kind := domain.TaskKind(strings.ToLower(strings.TrimSpace(s)))
	if _, err := c.Lookup(kind); err != nil {
		return "", err
	}
	return kind, nil
}

// Entries returns a copy of the table in display order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Kinds returns the known kinds in display order.
func (c *Catalog) Kinds() []domain.TaskKind {
	kinds := make([]domain.TaskKind, len(c.entries))
	for i, e := range c.entries {
		kinds[i] = e.Kind
	}
	return kinds
}

// Len returns the number of kinds.
func (c *Catalog) Len() int { return len(c.entries) }
