package catalog

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"cartpilot/internal"
)

//go:embed data/*.yaml
var defaultCatalogFS embed.FS

type catalogFile struct {
	Source      string                   `yaml:"source"`
	DisplayName string                   `yaml:"displayName"`
	Products    []internal.CandidateItem `yaml:"products"`
}

// Simulation serves candidates from static per-source catalog files.
type Simulation struct {
	order    []string
	names    map[string]string
	products map[string][]internal.CandidateItem
}

// DefaultSimulation loads the catalog bundled with the binary.
func DefaultSimulation() (*Simulation, error) {
	return LoadSimulationFS(defaultCatalogFS, "data")
}

// LoadSimulation reads every *.yaml file in dir. An empty dir means the
// bundled catalog.
func LoadSimulation(dir string) (*Simulation, error) {
	if strings.TrimSpace(dir) == "" {
		return DefaultSimulation()
	}
	return LoadSimulationFS(os.DirFS(dir), ".")
}

func LoadSimulationFS(fsys fs.FS, dir string) (*Simulation, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	sim := &Simulation{names: map[string]string{}, products: map[string][]internal.CandidateItem{}}
	for _, e := range entries {
		if e.IsDir() || !(strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		blob, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var file catalogFile
		if err := yaml.Unmarshal(blob, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		src := strings.ToLower(strings.TrimSpace(file.Source))
		if src == "" {
			src = strings.TrimSuffix(strings.TrimSuffix(e.Name(), ".yaml"), ".yml")
		}
		if _, ok := sim.products[src]; !ok {
			sim.order = append(sim.order, src)
		}
		sim.names[src] = file.DisplayName
		for _, p := range file.Products {
			p.SourceID = src
			sim.products[src] = append(sim.products[src], p)
		}
	}
	if len(sim.order) == 0 {
		return nil, fmt.Errorf("no catalog files in %s", dir)
	}
	sort.Strings(sim.order)
	return sim, nil
}

func (s *Simulation) SourceIDs() []string {
	return append([]string{}, s.order...)
}

func (s *Simulation) DisplayName(source string) string {
	if name := s.names[source]; name != "" {
		return name
	}
	return source
}

// Search returns up to maxResults in-stock items of source in the given
// categories. maxResults <= 0 means no limit.
func (s *Simulation) Search(source string, categories []string, maxResults int) []internal.CandidateItem {
	want := map[string]bool{}
	for _, c := range categories {
		want[c] = true
	}
	out := []internal.CandidateItem{}
	for _, p := range s.products[source] {
		if len(want) > 0 && !want[p.Category] {
			continue
		}
		if !p.InStock {
			continue
		}
		out = append(out, p)
	}
	return limitPerCategory(out, maxResults)
}

// Source adapts one simulated retailer to the Source interface.
func (s *Simulation) Source(id string) Source {
	return simulatedSource{sim: s, id: id}
}

type simulatedSource struct {
	sim *Simulation
	id  string
}

func (s simulatedSource) ID() string { return s.id }

func (s simulatedSource) Search(_ context.Context, categories []string, maxResults int) ([]internal.CandidateItem, error) {
	return s.sim.Search(s.id, categories, maxResults), nil
}

func limitPerCategory(items []internal.CandidateItem, maxResults int) []internal.CandidateItem {
	if maxResults <= 0 {
		return items
	}
	seen := map[string]int{}
	out := items[:0:0]
	for _, it := range items {
		if seen[it.Category] >= maxResults {
			continue
		}
		seen[it.Category]++
		out = append(out, it)
	}
	return out
}
