package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestDefaultSimulationCoversEveryTemplateCategory(t *testing.T) {
	sim, err := DefaultSimulation()
	require.NoError(t, err)
	require.Equal(t, []string{"amazon", "bestbuy", "walmart"}, sim.SourceIDs())
	require.Equal(t, "Best Buy", sim.DisplayName("bestbuy"))
	require.Equal(t, "nowhere", sim.DisplayName("nowhere"))

	for _, cat := range []string{"snacks", "badges", "tech_accessories", "prizes", "decorations", "outerwear", "accessories", "base_layer", "office_supplies"} {
		found := 0
		for _, src := range sim.SourceIDs() {
			found += len(sim.Search(src, []string{cat}, 0))
		}
		require.Positive(t, found, cat)
	}
}

func TestSimulationSearchFiltersAndLimits(t *testing.T) {
	fsys := fstest.MapFS{
		"cat/shop.yaml": {Data: []byte(`
displayName: Shop
products:
  - {id: a, name: A, category: snacks, price: 1, inStock: true}
  - {id: b, name: B, category: snacks, price: 2, inStock: false}
  - {id: c, name: C, category: snacks, price: 3, inStock: true}
  - {id: d, name: D, category: snacks, price: 4, inStock: true}
  - {id: e, name: E, category: prizes, price: 5, inStock: true}
`)},
		"cat/readme.txt": {Data: []byte("ignored")},
	}
	sim, err := LoadSimulationFS(fsys, "cat")
	require.NoError(t, err)
	require.Equal(t, []string{"shop"}, sim.SourceIDs())

	items := sim.Search("shop", []string{"snacks"}, 2)
	require.Len(t, items, 2)
	require.Equal(t, "a", items[0].ID)
	require.Equal(t, "c", items[1].ID)
	require.Equal(t, "shop", items[0].SourceID)

	require.Len(t, sim.Search("shop", nil, 0), 4)
	require.Empty(t, sim.Search("other", nil, 0))
}

func TestLoadSimulationFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corner.yml"), []byte("source: Corner\nproducts:\n  - {id: x, name: X, category: snacks, price: 1, inStock: true}\n"), 0o644))

	sim, err := LoadSimulation(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"corner"}, sim.SourceIDs())

	_, err = LoadSimulation(t.TempDir())
	require.Error(t, err)
}
