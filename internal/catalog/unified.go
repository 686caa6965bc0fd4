package catalog

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"cartpilot/internal"
	"cartpilot/internal/config"
	"cartpilot/internal/observability"
	"cartpilot/internal/storage"
)

const (
	ModeSimulation = "simulation"
	ModeLive       = "live"
	ModeHybrid     = "hybrid"

	DefaultMaxResults = 15
)

var ErrNoSources = errors.New("catalog has no sources")

type SourceReport struct {
	SourceID string        `json:"sourceId"`
	Count    int           `json:"count"`
	FromLive bool          `json:"fromLive"`
	Latency  time.Duration `json:"latency"`
	Err      string        `json:"error,omitempty"`
}

type SearchResult struct {
	Products map[string][]internal.CandidateItem `json:"products"`
	Sources  []SourceReport                      `json:"sources"`
	Mode     string                              `json:"mode"`
	Latency  time.Duration                       `json:"latency"`
}

// Total counts candidates across every source.
func (r SearchResult) Total() int {
	n := 0
	for _, items := range r.Products {
		n += len(items)
	}
	return n
}

// Unified searches every known source concurrently. A live source that fails
// or returns nothing falls back to the simulated catalog of the same source
// when one exists.
type Unified struct {
	sim        *Simulation
	live       map[string]Source
	order      []string
	maxResults int
	logger     *zap.Logger
}

func NewUnified(sim *Simulation, live []Source, maxResults int, logger *zap.Logger) *Unified {
	u := &Unified{
		sim:        sim,
		live:       map[string]Source{},
		maxResults: maxResults,
		logger:     observability.OrNop(logger),
	}
	if u.maxResults <= 0 {
		u.maxResults = DefaultMaxResults
	}
	seen := map[string]bool{}
	if sim != nil {
		for _, id := range sim.SourceIDs() {
			u.order = append(u.order, id)
			seen[id] = true
		}
	}
	for _, s := range live {
		if s == nil {
			continue
		}
		u.live[s.ID()] = s
		if !seen[s.ID()] {
			u.order = append(u.order, s.ID())
			seen[s.ID()] = true
		}
	}
	return u
}

func (u *Unified) SourceIDs() []string {
	return append([]string{}, u.order...)
}

func (u *Unified) DisplayName(source string) string {
	if u.sim != nil {
		return u.sim.DisplayName(source)
	}
	return source
}

func (u *Unified) Search(ctx context.Context, categories []string) (SearchResult, error) {
	if len(u.order) == 0 {
		return SearchResult{}, ErrNoSources
	}
	start := time.Now()
	reports := make([]SourceReport, len(u.order))
	products := make([][]internal.CandidateItem, len(u.order))

	var wg sync.WaitGroup
	for i, id := range u.order {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			products[i], reports[i] = u.searchOne(ctx, id, categories)
		}(i, id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return SearchResult{}, err
	}

	result := SearchResult{
		Products: map[string][]internal.CandidateItem{},
		Sources:  reports,
		Latency:  time.Since(start),
	}
	live, fallback := 0, 0
	for i, id := range u.order {
		if len(products[i]) > 0 {
			result.Products[id] = products[i]
		}
		if reports[i].FromLive {
			live++
		} else {
			fallback++
		}
	}
	switch {
	case live == 0:
		result.Mode = ModeSimulation
	case fallback == 0:
		result.Mode = ModeLive
	default:
		result.Mode = ModeHybrid
	}
	return result, nil
}

func (u *Unified) searchOne(ctx context.Context, id string, categories []string) ([]internal.CandidateItem, SourceReport) {
	report := SourceReport{SourceID: id}
	start := time.Now()

	if src, ok := u.live[id]; ok {
		items, err := src.Search(ctx, categories, u.maxResults)
		switch {
		case err != nil:
			report.Err = err.Error()
			u.logger.Warn("live source failed", zap.String("source", id), zap.Error(err))
		case len(items) == 0:
			u.logger.Info("live source returned nothing", zap.String("source", id))
		default:
			items = limitPerCategory(inStock(items), u.maxResults)
			report.FromLive = true
			report.Count = len(items)
			report.Latency = time.Since(start)
			return items, report
		}
	}

	if u.sim == nil {
		report.Latency = time.Since(start)
		return nil, report
	}
	items := u.sim.Search(id, categories, u.maxResults)
	report.Count = len(items)
	report.Latency = time.Since(start)
	return items, report
}

// FetchCandidates implements Fetcher.
func (u *Unified) FetchCandidates(ctx context.Context, categories []string) (map[string][]internal.CandidateItem, error) {
	res, err := u.Search(ctx, categories)
	if err != nil {
		return nil, err
	}
	return res.Products, nil
}

func inStock(items []internal.CandidateItem) []internal.CandidateItem {
	out := items[:0:0]
	for _, it := range items {
		if it.InStock {
			out = append(out, it)
		}
	}
	return out
}

// FromConfig wires the catalog for cfg.CatalogMode. simulation uses only the
// YAML catalog; live uses only live sources; hybrid uses live sources with
// the YAML catalog as per-source fallback. Live sources are the retailer API
// when configured, otherwise the sqlite cache, plus any storefront pages.
func FromConfig(ctx context.Context, cfg config.Config, db *storage.DB, logger *zap.Logger) (*Unified, error) {
	sim, err := LoadSimulation(cfg.CatalogDir)
	if err != nil {
		return nil, err
	}
	if cfg.CatalogMode == ModeSimulation {
		return NewUnified(sim, nil, cfg.RetailerMaxResults, logger), nil
	}

	var live []Source
	client := NewClient(cfg)
	switch {
	case client.Configured():
		for _, id := range sim.SourceIDs() {
			live = append(live, NewAPISource(client, id))
		}
	case db != nil:
		ids, err := db.ProductSources(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			live = append(live, NewStoreSource(db, id))
		}
	}
	httpClient := &http.Client{Timeout: time.Duration(cfg.RetailerTimeoutMs) * time.Millisecond}
	for _, pageURL := range cfg.StorefrontURLs {
		live = append(live, NewHTMLSource("", pageURL, httpClient))
	}

	if cfg.CatalogMode == ModeLive {
		if len(live) == 0 {
			return nil, ErrNoSources
		}
		return NewUnified(nil, live, cfg.RetailerMaxResults, logger), nil
	}
	return NewUnified(sim, live, cfg.RetailerMaxResults, logger), nil
}
