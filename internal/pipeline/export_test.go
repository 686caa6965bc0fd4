package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"cartpilot/internal"
)

func TestExportCartToXLSX(t *testing.T) {
	svc := NewService(partyCatalog(), WithClock(clock))
	res, err := svc.Run(context.Background(), partyGoal, internal.ModeBalanced, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "cart.xlsx")
	require.NoError(t, ExportCartToXLSX(res, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	require.ElementsMatch(t, []string{"Cart", "Savings", "Delivery", "Plan"}, f.GetSheetList())

	cartRows, err := f.GetRows("Cart")
	require.NoError(t, err)
	require.Equal(t, "category", cartRows[0][1])
	require.Len(t, cartRows, len(res.Cart.Lines)+2)
	require.Equal(t, res.Cart.Lines[0].Item.Name, cartRows[1][2])

	deliveryRows, err := f.GetRows("Delivery")
	require.NoError(t, err)
	require.Len(t, deliveryRows, len(res.Cart.DeliverySchedule)+1)

	planRows, err := f.GetRows("Plan")
	require.NoError(t, err)
	require.Len(t, planRows, len(res.Plan.Categories)+1)
	require.Equal(t, "snacks", planRows[1][0])
}
