package catalog

import (
	"strings"

	"golang.org/x/text/cases"
)

// MatchKind records how a fuzzy lookup resolved.
type MatchKind string

const (
	// MatchExact means the names are equal ignoring case.
	MatchExact MatchKind = "exact"
	// MatchContains means the catalog name contains the query.
	MatchContains MatchKind = "contains"
	// MatchContained means the query contains the catalog name.
	MatchContained MatchKind = "contained"
)

// Match is the outcome of FindByFuzzyName.
type Match struct {
	Entry Entry     `json:"entry"`
	Kind  MatchKind `json:"kind"`
}

// FindByFuzzyName resolves a free-text product name. An exact case-folded
// match wins; otherwise the first entry in id order whose name contains the
// query, or is contained in it, is returned. Several entries may qualify and
// only the first is reported.
func (c *Catalog) FindByFuzzyName(query string) (Match, bool) {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))
	if q == "" {
		return Match{}, false
	}
	entries := c.List()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = fold.String(strings.TrimSpace(e.Name))
		if names[i] == q {
			return Match{Entry: e, Kind: MatchExact}, true
		}
	}
	for i, e := range entries {
		name := names[i]
		if name == "" {
			continue
		}
		if strings.Contains(name, q) {
			return Match{Entry: e, Kind: MatchContains}, true
		}
		if strings.Contains(q, name) {
			return Match{Entry: e, Kind: MatchContained}, true
		}
	}
	return Match{}, false
}
