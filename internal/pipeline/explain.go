package pipeline

import (
	"errors"
	"fmt"

	"cartpilot/internal"
	"cartpilot/internal/catalog"
	"cartpilot/internal/ranking"
)

var (
	ErrNotRanked   = errors.New("item is not ranked")
	ErrFilteredOut = errors.New("item was filtered out before ranking")
)

// Explanation is the ranking rationale for one scored item.
type Explanation struct {
	Category string                    `json:"category"`
	Mode     internal.OptimizationMode `json:"mode"`
	Item     internal.ScoredItem       `json:"item"`
	Selected bool                      `json:"selected"`
	Text     string                    `json:"explanation"`
}

// Explain describes why itemID holds its rank in category. source narrows the
// match when several sources share an item id. A candidate that was sourced
// but removed by preference filters reports ErrFilteredOut.
func (pc *PipelineContext) Explain(category, itemID, source string) (Explanation, error) {
	if pc.State != StateComplete && pc.State != StateCheckedOut {
		return Explanation{}, ErrNotReady
	}
	for _, item := range pc.Ranked[category] {
		if item.ID != itemID || (source != "" && item.SourceID != source) {
			continue
		}
		return Explanation{
			Category: category,
			Mode:     pc.Mode,
			Item:     item,
			Selected: pc.inCart(item.SourceID, item.ID),
			Text:     ranking.Explain(item, pc.Mode),
		}, nil
	}

	idx := catalog.BuildIndex(pc.Candidates)
	sources := pc.Sources()
	if source != "" {
		sources = []string{source}
	}
	for _, src := range sources {
		if p, ok := idx.Lookup(src, itemID); ok && p.Category == category {
			return Explanation{}, fmt.Errorf("%s/%s: %w", src, itemID, ErrFilteredOut)
		}
	}
	return Explanation{}, fmt.Errorf("%s in %s: %w", itemID, category, ErrNotRanked)
}

func (pc *PipelineContext) inCart(source, id string) bool {
	for _, line := range pc.Cart.Lines {
		if line.Item.SourceID == source && line.Item.ID == id {
			return true
		}
	}
	return false
}
