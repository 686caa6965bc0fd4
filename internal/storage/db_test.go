package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cartpilot/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPreferencesDefaultAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	prefs, err := db.LoadPreferences(ctx)
	require.NoError(t, err)
	require.Equal(t, internal.DefaultPreferences(), prefs)

	prefs.PreferredSource = "walmart"
	prefs.MaxDeliveryDays = 3
	prefs.EcoFriendly = true
	prefs.BundleOrders = false
	require.NoError(t, db.SavePreferences(ctx, prefs))

	loaded, err := db.LoadPreferences(ctx)
	require.NoError(t, err)
	require.Equal(t, prefs, loaded)

	require.NoError(t, db.SavePreferences(ctx, internal.Preferences{MaxDeliveryDays: 7}))
	loaded, err = db.LoadPreferences(ctx)
	require.NoError(t, err)
	require.Equal(t, internal.AnySource, loaded.PreferredSource)
	require.Equal(t, 7, loaded.MaxDeliveryDays)
}

func TestProductsCache(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	items := []internal.CandidateItem{
		{ID: "1", SourceID: "amazon", Name: "Chips", Category: "snacks", Price: 0.6, Rating: 4.5, InStock: true},
		{ID: "2", SourceID: "amazon", Name: "Badges", Category: "badges", Price: 0.1, Rating: 4.8, InStock: true},
		{ID: "1", SourceID: "walmart", Name: "Soda", Category: "snacks", Price: 0.45, Rating: 4.4, InStock: false},
	}
	require.NoError(t, db.UpsertProducts(ctx, items))

	items[0].Price = 0.55
	require.NoError(t, db.UpsertProducts(ctx, items[:1]))

	snacks, err := db.ListProducts(ctx, "", []string{"snacks"})
	require.NoError(t, err)
	require.Len(t, snacks, 2)
	require.Equal(t, 0.55, snacks[0].Price)
	require.False(t, snacks[1].InStock)

	amazon, err := db.ListProducts(ctx, "amazon", nil)
	require.NoError(t, err)
	require.Len(t, amazon, 2)

	sources, err := db.ProductSources(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"amazon", "walmart"}, sources)

	require.Error(t, db.UpsertProducts(ctx, []internal.CandidateItem{{Name: "orphan"}}))
}

func TestGoalRequests(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	row, err := db.UpsertGoalRequest(ctx, "imap", "<a@b>", "Hackathon supplies", "ops@example.com", "2025-03-01T10:00:00Z", "h1", "/raw/a.eml", "fetched")
	require.NoError(t, err)
	require.NotZero(t, row.ID)

	again, err := db.UpsertGoalRequest(ctx, "imap", "<a@b>", "Hackathon supplies v2", "ops@example.com", "2025-03-01T10:00:00Z", "h2", "/raw/a.eml", "fetched")
	require.NoError(t, err)
	require.Equal(t, row.ID, again.ID)
	require.Equal(t, "Hackathon supplies v2", again.Subject)

	pending, err := db.ListGoalRequestsByStatus(ctx, "fetched", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, db.UpdateGoalRequestStatus(ctx, row.ID, "processed"))
	got, err := db.GetGoalRequestByID(ctx, row.ID)
	require.NoError(t, err)
	require.Equal(t, "processed", got.Status)

	missing, err := db.GetGoalRequestByID(ctx, 999)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRunsAndCheckoutLog(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	req, err := db.UpsertGoalRequest(ctx, "gmail", "m1", "s", "f", "", "h", "/raw/m1.eml", "fetched")
	require.NoError(t, err)

	runID, err := db.InsertRun(ctx, internal.RunRecord{
		TraceID: "01J0TRACE", RequestID: &req.ID, Goal: "party", Mode: internal.ModeBalanced, Status: "planned",
		PlanJSON: "{}", CartJSON: "{}", SavingsJSON: "{}", MetricsJSON: "{}", CandidateJSON: "[]",
	})
	require.NoError(t, err)

	require.NoError(t, db.UpdateRunCart(ctx, runID, internal.ModeCheapest, `{"totalCost":1}`, `{}`))
	require.NoError(t, db.UpdateRunStatus(ctx, runID, "checked_out"))

	run, err := db.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, internal.ModeCheapest, run.Mode)
	require.Equal(t, "checked_out", run.Status)
	require.Equal(t, req.ID, *run.RequestID)

	latest, err := db.LatestRunForRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, runID, latest.ID)

	require.NoError(t, db.InsertCheckoutOrder(ctx, runID, "amazon", "01ORDER"))
	orders, err := db.ListCheckoutOrders(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, []CheckoutOrderRow{{SourceID: "amazon", OrderNumber: "01ORDER"}}, orders)

	snaps := []internal.CheckoutProgress{
		{State: internal.CheckoutCollectingInfo, ProgressPct: 5, CompletedSources: []string{}, Message: "a"},
		{State: internal.CheckoutComplete, ProgressPct: 100, CompletedSources: []string{"amazon"}, Message: "b"},
	}
	for i, s := range snaps {
		require.NoError(t, db.InsertCheckoutProgress(ctx, runID, i, s))
	}
	loaded, err := db.ListCheckoutProgress(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, snaps, loaded)

	runs, err := db.ListRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	v, err := db.GetMetadata(ctx, "catalog.last_sync")
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, db.SetMetadata(ctx, "catalog.last_sync", "2025-03-01T00:00:00Z"))
	require.NoError(t, db.SetMetadata(ctx, "catalog.last_sync", "2025-03-02T00:00:00Z"))
	v, err = db.GetMetadata(ctx, "catalog.last_sync")
	require.NoError(t, err)
	require.Equal(t, "2025-03-02T00:00:00Z", *v)
}
