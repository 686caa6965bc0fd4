package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cartpilot/internal"
	"cartpilot/internal/config"
	"cartpilot/internal/storage"
)

type fakeSource struct {
	id    string
	items []internal.CandidateItem
	err   error
}

func (f fakeSource) ID() string { return f.id }

func (f fakeSource) Search(_ context.Context, _ []string, _ int) ([]internal.CandidateItem, error) {
	return f.items, f.err
}

func TestUnifiedSimulationMode(t *testing.T) {
	sim, err := DefaultSimulation()
	require.NoError(t, err)

	res, err := NewUnified(sim, nil, 2, nil).Search(context.Background(), []string{"snacks"})
	require.NoError(t, err)
	require.Equal(t, ModeSimulation, res.Mode)
	require.Len(t, res.Sources, 3)
	for _, src := range sim.SourceIDs() {
		require.NotEmpty(t, res.Products[src])
		require.LessOrEqual(t, len(res.Products[src]), 2)
		for _, it := range res.Products[src] {
			require.Equal(t, "snacks", it.Category)
		}
	}
	require.Equal(t, res.Total(), len(res.Products["amazon"])+len(res.Products["walmart"])+len(res.Products["bestbuy"]))
}

func TestUnifiedHybridFallback(t *testing.T) {
	sim, err := DefaultSimulation()
	require.NoError(t, err)

	live := []Source{
		fakeSource{id: "amazon", items: []internal.CandidateItem{
			{ID: "live-1", SourceID: "amazon", Category: "snacks", Price: 1, InStock: true},
			{ID: "live-2", SourceID: "amazon", Category: "snacks", Price: 1, InStock: false},
		}},
		fakeSource{id: "walmart", err: errors.New("timeout")},
		fakeSource{id: "bestbuy"},
		fakeSource{id: "corner", items: []internal.CandidateItem{{ID: "c1", SourceID: "corner", Category: "snacks", Price: 2, InStock: true}}},
	}
	res, err := NewUnified(sim, live, 5, nil).Search(context.Background(), []string{"snacks"})
	require.NoError(t, err)
	require.Equal(t, ModeHybrid, res.Mode)

	require.Len(t, res.Products["amazon"], 1)
	require.Equal(t, "live-1", res.Products["amazon"][0].ID)
	require.NotEmpty(t, res.Products["walmart"])
	require.NotEmpty(t, res.Products["bestbuy"])
	require.Len(t, res.Products["corner"], 1)

	byID := map[string]SourceReport{}
	for _, r := range res.Sources {
		byID[r.SourceID] = r
	}
	require.True(t, byID["amazon"].FromLive)
	require.False(t, byID["walmart"].FromLive)
	require.Equal(t, "timeout", byID["walmart"].Err)
	require.True(t, byID["corner"].FromLive)
	require.Equal(t, []string{"amazon", "bestbuy", "walmart", "corner"}, []string{res.Sources[0].SourceID, res.Sources[1].SourceID, res.Sources[2].SourceID, res.Sources[3].SourceID})
}

func TestUnifiedLiveOnly(t *testing.T) {
	u := NewUnified(nil, []Source{
		fakeSource{id: "a", items: []internal.CandidateItem{{ID: "1", SourceID: "a", Category: "snacks", InStock: true}}},
	}, 0, nil)
	res, err := u.Search(context.Background(), []string{"snacks"})
	require.NoError(t, err)
	require.Equal(t, ModeLive, res.Mode)

	failing := NewUnified(nil, []Source{fakeSource{id: "a", err: errors.New("down")}}, 0, nil)
	products, err := failing.FetchCandidates(context.Background(), []string{"snacks"})
	require.NoError(t, err)
	require.Empty(t, products)

	_, err = NewUnified(nil, nil, 0, nil).Search(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoSources)
}

func TestUnifiedCanceledContext(t *testing.T) {
	sim, err := DefaultSimulation()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewUnified(sim, nil, 0, nil).Search(ctx, []string{"snacks"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFromConfigUsesStoreCacheWhenAPIUnset(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.UpsertProducts(ctx, []internal.CandidateItem{
		{ID: "cached-1", SourceID: "walmart", Name: "Cached Soda", Category: "snacks", Price: 0.3, InStock: true},
	}))

	u, err := FromConfig(ctx, config.Config{CatalogMode: ModeHybrid, RetailerMaxResults: 10}, db, nil)
	require.NoError(t, err)
	res, err := u.Search(ctx, []string{"snacks"})
	require.NoError(t, err)
	require.Equal(t, ModeHybrid, res.Mode)
	require.Equal(t, "cached-1", res.Products["walmart"][0].ID)

	sim, err := FromConfig(ctx, config.Config{CatalogMode: ModeSimulation}, db, nil)
	require.NoError(t, err)
	res, err = sim.Search(ctx, []string{"snacks"})
	require.NoError(t, err)
	require.Equal(t, ModeSimulation, res.Mode)

	_, err = FromConfig(ctx, config.Config{CatalogMode: ModeLive}, nil, nil)
	require.ErrorIs(t, err, ErrNoSources)
}
