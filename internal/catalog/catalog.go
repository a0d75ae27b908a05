package catalog

import (
	"fmt"
	"sort"
)

// Catalog maps product ids to pricing and packaging rules for one tenant.
// It is not safe for concurrent use; the owning workspace serialises access.
type Catalog struct {
	entries   map[int64]Entry
	highWater int64
}

// New builds a catalog from persisted entries. highWater is the largest id
// ever issued for the tenant, deleted entries included, so ids are never
// handed out twice.
func New(entries []Entry, highWater int64) *Catalog {
	c := &Catalog{entries: make(map[int64]Entry, len(entries)), highWater: highWater}
	for _, e := range entries {
		c.entries[e.ID] = e
		if e.ID > c.highWater {
			c.highWater = e.ID
		}
	}
	return c
}

// Len returns the number of live entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Get returns the entry with the given id.
func (c *Catalog) Get(id int64) (Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// List returns the entries ordered by id.
func (c *Catalog) List() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NextID returns the id the next added entry will receive.
func (c *Catalog) NextID() int64 {
	return c.highWater + 1
}

// Prepare validates a candidate and assigns it the next id without adding it.
func (c *Catalog) Prepare(candidate Entry) (Entry, error) {
	candidate.normalize()
	if err := candidate.Validate(); err != nil {
		return Entry{}, err
	}
	candidate.ID = c.NextID()
	return candidate, nil
}

// Put stores an already prepared entry, replacing any entry with the same id.
func (c *Catalog) Put(entry Entry) {
	c.entries[entry.ID] = entry
	if entry.ID > c.highWater {
		c.highWater = entry.ID
	}
}

// Add validates the candidate, assigns the next id and stores it.
func (c *Catalog) Add(candidate Entry) (Entry, error) {
	entry, err := c.Prepare(candidate)
	if err != nil {
		return Entry{}, err
	}
	c.Put(entry)
	return entry, nil
}

// ApplyPatch returns the patched entry without storing it.
func (c *Catalog) ApplyPatch(id int64, patch Patch) (Entry, error) {
	entry, ok := c.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
	}
	if patch.Name != nil {
		entry.Name = *patch.Name
	}
	if patch.UnitPrice != nil {
		entry.UnitPrice = *patch.UnitPrice
	}
	if patch.PackageSizes != nil {
		entry.PackageSizes = *patch.PackageSizes
	}
	if patch.Kind != nil {
		entry.Kind = *patch.Kind
	}
	if patch.Pricing != nil {
		entry.Pricing = *patch.Pricing
	}
	entry.normalize()
	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Update applies the patch and stores the result.
func (c *Catalog) Update(id int64, patch Patch) (Entry, error) {
	entry, err := c.ApplyPatch(id, patch)
	if err != nil {
		return Entry{}, err
	}
	c.entries[id] = entry
	return entry, nil
}

// Remove deletes the entry. Ledger lines that still reference it are
// reported as orphans on the next recompute.
func (c *Catalog) Remove(id int64) error {
	if _, ok := c.entries[id]; !ok {
		return fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
	}
	delete(c.entries, id)
	return nil
}

// Clone returns an independent copy.
func (c *Catalog) Clone() *Catalog {
	cp := &Catalog{entries: make(map[int64]Entry, len(c.entries)), highWater: c.highWater}
	for id, e := range c.entries {
		cp.entries[id] = e
	}
	return cp
}

// Restore replaces the contents with those of an earlier clone.
func (c *Catalog) Restore(from *Catalog) {
	cp := from.Clone()
	c.entries = cp.entries
	c.highWater = cp.highWater
}
