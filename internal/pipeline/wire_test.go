package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cartpilot/internal"
	"cartpilot/internal/catalog"
	"cartpilot/internal/config"
	"cartpilot/internal/events"
	"cartpilot/internal/storage"
)

func TestFromConfig(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "w.db"))
	require.NoError(t, err)
	defer db.Close()

	cfg := config.Config{CatalogMode: catalog.ModeSimulation, SingleSourceMarkup: 1.5, OptionalBudgetFloor: 10}
	svc, unified, err := FromConfig(ctx, cfg, db, nil)
	require.NoError(t, err)
	require.NotEmpty(t, unified.SourceIDs())

	res, err := svc.Run(ctx, "Party for 20 people, budget $200", internal.ModeBalanced, events.Discard{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Cart.Lines)

	_, _, err = FromConfig(ctx, config.Config{CatalogMode: catalog.ModeLive}, nil, nil)
	require.ErrorIs(t, err, catalog.ErrNoSources)
}
