package catalog

import (
	"context"

	"cartpilot/internal"
)

// Source is one retailer able to list candidates for categories.
type Source interface {
	ID() string
	Search(ctx context.Context, categories []string, maxResults int) ([]internal.CandidateItem, error)
}

// Fetcher is what the pipeline needs from the catalog: candidates keyed by source.
type Fetcher interface {
	FetchCandidates(ctx context.Context, categories []string) (map[string][]internal.CandidateItem, error)
}

// DefaultRateLimits are requests per second allowed per retailer API.
var DefaultRateLimits = map[string]int{
	"amazon":  1,
	"walmart": 5,
	"bestbuy": 5,
}
