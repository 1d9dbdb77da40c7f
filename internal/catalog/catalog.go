// Package catalog resolves the concept catalog: the valid P&L concept codes,
// their display names, sign conventions, and which of them are mandatory.
package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fin-import/internal/model"
)

// Reader loads the raw catalog entries from the reference store.
type Reader interface {
	LoadConcepts(ctx context.Context) ([]model.ConceptEntry, error)
}

// Catalog is an immutable, indexed view of the concept catalog.
// It is loaded once per job run and shared read-only by the validator and auditor.
type Catalog struct {
	entries   []model.ConceptEntry
	byCode    map[string]int
	mandatory []model.ConceptEntry
}

// New indexes entries by normalised code. Duplicate codes are rejected.
func New(entries []model.ConceptEntry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]model.ConceptEntry, 0, len(entries)),
		byCode:  make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		e.Code = NormalizeCode(e.Code)
		if e.Code == "" {
			return nil, eris.New("catalog: entry with empty code")
		}
		if _, dup := c.byCode[e.Code]; dup {
			return nil, eris.Errorf("catalog: duplicate code %q", e.Code)
		}
		if e.Sign == "" {
			e.Sign = model.SignAny
		}
		c.byCode[e.Code] = len(c.entries)
		c.entries = append(c.entries, e)
		if e.Mandatory {
			c.mandatory = append(c.mandatory, e)
		}
	}
	sort.Slice(c.mandatory, func(i, j int) bool { return c.mandatory[i].Code < c.mandatory[j].Code })
	return c, nil
}

// Load reads the catalog once through r and indexes it.
func Load(ctx context.Context, r Reader) (*Catalog, error) {
	entries, err := r.LoadConcepts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: load concepts")
	}
	return New(entries)
}

// Lookup returns the entry for code.
func (c *Catalog) Lookup(code string) (model.ConceptEntry, bool) {
	if c == nil {
		return model.ConceptEntry{}, false
	}
	i, ok := c.byCode[NormalizeCode(code)]
	if !ok {
		return model.ConceptEntry{}, false
	}
	return c.entries[i], true
}

// Mandatory returns the mandatory entries sorted by code.
func (c *Catalog) Mandatory() []model.ConceptEntry {
	if c == nil {
		return nil
	}
	return c.mandatory
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entries returns the entries in load order.
func (c *Catalog) Entries() []model.ConceptEntry {
	if c == nil {
		return nil
	}
	return c.entries
}

// NormalizeCode trims and upper-cases a concept code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
