package catalog

import (
	"sort"

	"cartpilot/internal"
)

// Index is a lookup view over a candidate set, keyed by source and category.
type Index struct {
	byKey      map[string]internal.CandidateItem
	byCategory map[string][]internal.CandidateItem
	bySource   map[string][]internal.CandidateItem
}

func key(source, id string) string { return source + "/" + id }

// BuildIndex indexes products in source order, keeping each source's order.
func BuildIndex(products map[string][]internal.CandidateItem) *Index {
	idx := &Index{
		byKey:      map[string]internal.CandidateItem{},
		byCategory: map[string][]internal.CandidateItem{},
		bySource:   map[string][]internal.CandidateItem{},
	}
	sources := make([]string, 0, len(products))
	for src := range products {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	for _, src := range sources {
		for _, p := range products[src] {
			k := key(p.SourceID, p.ID)
			if _, dup := idx.byKey[k]; dup {
				continue
			}
			idx.byKey[k] = p
			idx.byCategory[p.Category] = append(idx.byCategory[p.Category], p)
			idx.bySource[p.SourceID] = append(idx.bySource[p.SourceID], p)
		}
	}
	return idx
}

func (idx *Index) Lookup(source, id string) (internal.CandidateItem, bool) {
	p, ok := idx.byKey[key(source, id)]
	return p, ok
}

func (idx *Index) Len() int { return len(idx.byKey) }

func (idx *Index) Categories() []string {
	out := make([]string, 0, len(idx.byCategory))
	for c := range idx.byCategory {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Search lists products of a category ("" for all) cheapest first, at most
// limit of them when limit > 0.
func (idx *Index) Search(category string, limit int) []internal.CandidateItem {
	var out []internal.CandidateItem
	if category != "" {
		out = append(out, idx.byCategory[category]...)
	} else {
		for _, c := range idx.Categories() {
			out = append(out, idx.byCategory[c]...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (idx *Index) Source(source string) []internal.CandidateItem {
	return append([]internal.CandidateItem{}, idx.bySource[source]...)
}
